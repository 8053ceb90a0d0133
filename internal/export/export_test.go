package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

func readExport(t *testing.T, path string) ([]byte, string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, utf8BOM), "file must start with a UTF-8 BOM")
	return raw, string(bytes.TrimPrefix(raw, utf8BOM))
}

func TestNewRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}

func TestWriteSalaries(t *testing.T) {
	t.Parallel()

	e, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := e.WriteSalaries("exact", []jobs.SalaryRecord{
		{JobID: "a1", SalaryMin: 50000, SalaryMax: 80000},
		{JobID: "a2", SalaryMin: 60000, SalaryMax: 9999999},
	})
	require.NoError(t, err)
	assert.Equal(t, "salary_exact.csv", filepath.Base(path))

	_, body := readExport(t, path)
	assert.Equal(t, "job_id,salary_min,salary_max\na1,50000,80000\na2,60000,9999999\n", body)
}

func TestWriteClassifications(t *testing.T) {
	t.Parallel()

	e, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := e.WriteClassifications([]jobs.Classification{
		{JobID: "a1", JobName: "資深後端工程師", RoleCategory: "Backend Engineer"},
	})
	require.NoError(t, err)

	_, body := readExport(t, path)
	assert.Contains(t, body, "a1,資深後端工程師,Backend Engineer")
}

func TestWriteJobsFormatsDateAndNilWorkType(t *testing.T) {
	t.Parallel()

	e, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := e.WriteJobs([]jobs.JobRow{
		{
			JobID:      "a1",
			JobName:    "Backend Engineer",
			SalaryType: 50,
			SalaryMin:  50000,
			SalaryMax:  80000,
			CustNo:     "c100",
			AppearDate: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	_, body := readExport(t, path)
	assert.Contains(t, body, "2026-08-30")
	// Nil work type renders as an empty field, not a literal "nil".
	assert.Contains(t, body, "a1,Backend Engineer,,50,")
}

func TestWriteTags(t *testing.T) {
	t.Parallel()

	e, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := e.WriteTags("skills", []jobs.TagRecord{
		{JobID: "a1", Description: "Golang"},
		{JobID: "a1", Description: "PostgreSQL"},
	})
	require.NoError(t, err)
	assert.Equal(t, "skills.csv", filepath.Base(path))

	_, body := readExport(t, path)
	assert.Equal(t, "job_id,description\na1,Golang\na1,PostgreSQL\n", body)
}

func TestWriteCompanies(t *testing.T) {
	t.Parallel()

	e, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := e.WriteCompanies([]jobs.CompanyRow{
		{CustNo: "c100", CustName: "測試科技", Industry: "軟體服務", Employees: 120},
	})
	require.NoError(t, err)

	_, body := readExport(t, path)
	assert.Contains(t, body, "c100,測試科技,軟體服務,120")
}

func TestNewCreatesNestedDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
