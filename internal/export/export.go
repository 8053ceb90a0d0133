// Package export serializes normalizer outputs to CSV, one file per entity.
// Files are written UTF-8 with a BOM so spreadsheet tools render the Chinese
// text correctly.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Exporter writes entity CSV files into a target directory.
type Exporter struct {
	dir string
}

// New creates an Exporter rooted at dir, creating the directory if needed.
func New(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// WriteSalaries writes one salary partition, named by the partition label
// ("exact" or "negotiable").
func (e *Exporter) WriteSalaries(label string, records []jobs.SalaryRecord) (string, error) {
	path := filepath.Join(e.dir, fmt.Sprintf("salary_%s.csv", label))
	err := writeFile(path, []string{"job_id", "salary_min", "salary_max"}, len(records), func(i int) []string {
		r := records[i]
		return []string{r.JobID, strconv.FormatInt(r.SalaryMin, 10), strconv.FormatInt(r.SalaryMax, 10)}
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// WriteClassifications writes the job-title classification table.
func (e *Exporter) WriteClassifications(records []jobs.Classification) (string, error) {
	path := filepath.Join(e.dir, "job_classification.csv")
	err := writeFile(path, []string{"job_id", "job_name", "role_category"}, len(records), func(i int) []string {
		r := records[i]
		return []string{r.JobID, r.JobName, r.RoleCategory}
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// WriteTags writes one exploded tag table (skills or specialties), named by
// the entity label.
func (e *Exporter) WriteTags(label string, records []jobs.TagRecord) (string, error) {
	path := filepath.Join(e.dir, fmt.Sprintf("%s.csv", label))
	err := writeFile(path, []string{"job_id", "description"}, len(records), func(i int) []string {
		r := records[i]
		return []string{r.JobID, r.Description}
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// WriteCompanies writes the company dimension.
func (e *Exporter) WriteCompanies(rows []jobs.CompanyRow) (string, error) {
	path := filepath.Join(e.dir, "cust_info.csv")
	err := writeFile(path, []string{"cust_no", "cust_name", "industry", "employees"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.CustNo, r.CustName, r.Industry, strconv.Itoa(r.Employees)}
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// WriteJobs writes the job dimension.
func (e *Exporter) WriteJobs(rows []jobs.JobRow) (string, error) {
	path := filepath.Join(e.dir, "dim_job.csv")
	header := []string{
		"job_id", "job_name", "work_type", "salary_type", "salary_min",
		"salary_max", "address_area", "address_region", "work_exp", "edu",
		"work_period", "vacation_policy", "cust_no", "appear_date",
	}
	err := writeFile(path, header, len(rows), func(i int) []string {
		r := rows[i]
		workType := ""
		if r.WorkType != nil {
			workType = *r.WorkType
		}
		return []string{
			r.JobID, r.JobName, workType, strconv.Itoa(r.SalaryType),
			strconv.FormatInt(r.SalaryMin, 10), strconv.FormatInt(r.SalaryMax, 10),
			r.AddressArea, r.AddressRegion, r.WorkExp, r.Edu,
			r.WorkPeriod, r.VacationPolicy, r.CustNo,
			r.AppearDate.Format("2006-01-02"),
		}
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, header []string, count int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM to %s: %w", path, err)
	}
	if err := writeCSV(f, header, count, row); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, header []string, count int, row func(int) []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
