package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

func newMockedStore(t *testing.T) (*SilverStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, nil)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, nil)
	require.Error(t, err)
}

func TestEnsureSchemaAppliesAllStatements(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaStopsOnFirstFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("CREATE").WillReturnError(fmt.Errorf("permission denied"))

	err := store.EnsureSchema(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedSalaryTypesUpsertsEveryCode(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	for _, st := range salaryTypeNames {
		mock.ExpectExec("INSERT INTO salary_type").
			WithArgs(st.code, st.name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.SeedSalaryTypes(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCompanies(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO cust_info").
		WithArgs("13000000", "Acme Corp", "軟體網路", 120).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertCompanies(context.Background(), []jobs.CompanyRow{
		{CustNo: "13000000", CustName: "Acme Corp", Industry: "軟體網路", Employees: 120},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCompaniesEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	require.NoError(t, store.UpsertCompanies(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	workType := "全職"
	appear := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO dim_job").
		WithArgs(
			"a1", "Backend Engineer", &workType, jobs.SalaryMonthly,
			int64(50000), int64(80000), "台北市", "內湖區",
			"2年以上", "大學", "日班", "週休二日", "13000000", appear,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertJobs(context.Background(), []jobs.JobRow{{
		JobID:          "a1",
		JobName:        "Backend Engineer",
		WorkType:       &workType,
		SalaryType:     jobs.SalaryMonthly,
		SalaryMin:      50000,
		SalaryMax:      80000,
		AddressArea:    "台北市",
		AddressRegion:  "內湖區",
		WorkExp:        "2年以上",
		Edu:            "大學",
		WorkPeriod:     "日班",
		VacationPolicy: "週休二日",
		CustNo:         "13000000",
		AppearDate:     appear,
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertJobsPropagatesFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO dim_job").WillReturnError(fmt.Errorf("constraint violated"))

	err := store.UpsertJobs(context.Background(), []jobs.JobRow{{JobID: "a1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a1")
}

func TestJobKeyMap(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	rows := pgxmock.NewRows([]string{"id", "job_id"}).
		AddRow(int64(11), "a1").
		AddRow(int64(12), "a2")
	mock.ExpectQuery("SELECT id, job_id FROM dim_job").
		WithArgs([]string{"a1", "a2"}).
		WillReturnRows(rows)

	keyMap, err := store.JobKeyMap(context.Background(), []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, jobs.KeyMap{"a1": 11, "a2": 12}, keyMap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobKeyMapEmptyInputSkipsQuery(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	keyMap, err := store.JobKeyMap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, keyMap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWelfareMarshalsTagsAsJSON(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO welfare").
		WithArgs(int64(11), []byte(`["年終獎金"]`), []byte(`["勞保","健保"]`), "彈性上下班").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertWelfare(context.Background(), []jobs.WelfareRow{{
		JobUID:             11,
		Tags:               []string{"年終獎金"},
		LegalTags:          []string{"勞保", "健保"},
		WelfareDescription: "彈性上下班",
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWelfareNilTagsBecomeEmptyArrays(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO welfare").
		WithArgs(int64(11), []byte(`[]`), []byte(`[]`), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertWelfare(context.Background(), []jobs.WelfareRow{{JobUID: 11}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertJobDetails(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectExec("INSERT INTO job_detail").
		WithArgs(int64(11), "1~2人", "不需負擔管理責任", "無需出差外派", "部分遠端", "build things").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertJobDetails(context.Background(), []jobs.JobDetailRow{{
		JobUID:         11,
		NeedEmp:        "1~2人",
		ManageResp:     "不需負擔管理責任",
		BusinessTrip:   "無需出差外派",
		RemoteWork:     "部分遠端",
		JobDescription: "build things",
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBridgeRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectExec("INSERT INTO bridge_skills").
		WithArgs(int64(11), "Go").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bridge_specialties").
		WithArgs(int64(11), "後端開發").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bridge_major").
		WithArgs(int64(11), "資訊工程相關").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bridge_category").
		WithArgs(int64(11), "軟體工程師").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bridge_language").
		WithArgs(int64(11), "英文", "中等", "中等", "精通", "中等").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := context.Background()
	require.NoError(t, store.UpsertSkills(ctx, []jobs.SkillRow{{JobUID: 11, SkillName: "Go"}}))
	require.NoError(t, store.UpsertSpecialties(ctx, []jobs.SpecialtyRow{{JobUID: 11, SpecialtyName: "後端開發"}}))
	require.NoError(t, store.UpsertMajors(ctx, []jobs.MajorRow{{JobUID: 11, MajorName: "資訊工程相關"}}))
	require.NoError(t, store.UpsertCategories(ctx, []jobs.CategoryRow{{JobUID: 11, CategoryName: "軟體工程師"}}))
	require.NoError(t, store.UpsertLanguages(ctx, []jobs.LanguageRow{{
		JobUID: 11, Language: "英文",
		Listening: "中等", Speaking: "中等", Reading: "精通", Writing: "中等",
	}}))
	require.NoError(t, mock.ExpectationsWereMet())
}
