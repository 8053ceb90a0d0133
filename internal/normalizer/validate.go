package normalizer

import (
	"errors"
	"fmt"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

// ErrKeyMapRequired is returned by dependent-table transforms invoked before
// the surrogate-key mapping has been fetched from the silver store.
var ErrKeyMapRequired = errors.New("job_id to surrogate-id mapping is required before dependent tables can be built")

// ValidationError reports one out-of-contract value. Transforms fail fast on
// the first violation instead of coercing silently.
type ValidationError struct {
	Table  string
	JobID  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: job %q field %s: %s", e.Table, e.JobID, e.Field, e.Reason)
}

var validSalaryTypes = map[int]struct{}{
	jobs.SalaryNegotiable: {},
	jobs.SalaryHourly:     {},
	jobs.SalaryPiecework:  {},
	jobs.SalaryDaily:      {},
	jobs.SalaryMonthly:    {},
	jobs.SalaryAnnual:     {},
	jobs.SalaryPartTime:   {},
}

func validateJobRow(row jobs.JobRow) error {
	if row.JobID == "" {
		return &ValidationError{Table: "dim_job", JobID: row.JobID, Field: "job_id", Reason: "must not be empty"}
	}
	if row.JobName == "" {
		return &ValidationError{Table: "dim_job", JobID: row.JobID, Field: "job_name", Reason: "must not be empty"}
	}
	if _, ok := validSalaryTypes[row.SalaryType]; !ok {
		return &ValidationError{
			Table:  "dim_job",
			JobID:  row.JobID,
			Field:  "salary_type",
			Reason: fmt.Sprintf("%d is not a known salary type code", row.SalaryType),
		}
	}
	if row.SalaryMin < 0 || row.SalaryMax < 0 {
		return &ValidationError{Table: "dim_job", JobID: row.JobID, Field: "salary_min", Reason: "salary bounds must be >= 0"}
	}
	if row.SalaryMax != jobs.UncappedSalary && row.SalaryMin > row.SalaryMax {
		return &ValidationError{
			Table:  "dim_job",
			JobID:  row.JobID,
			Field:  "salary_max",
			Reason: fmt.Sprintf("min %d exceeds max %d", row.SalaryMin, row.SalaryMax),
		}
	}
	return nil
}

func validateCompanyRow(row jobs.CompanyRow) error {
	if row.CustNo == "" {
		return &ValidationError{Table: "cust_info", Field: "cust_no", Reason: "must not be empty"}
	}
	if row.Employees < 0 {
		return &ValidationError{Table: "cust_info", Field: "employees", Reason: "must be >= 0"}
	}
	return nil
}

// resolveUID looks a job id up in the surrogate-key mapping, failing loudly so
// stale mappings cannot silently produce mis-linked bridge rows.
func resolveUID(table string, keyMap jobs.KeyMap, jobID string) (int64, error) {
	uid, ok := keyMap[jobID]
	if !ok {
		return 0, &ValidationError{
			Table:  table,
			JobID:  jobID,
			Field:  "job_uid",
			Reason: "job_id missing from the surrogate-key mapping; re-fetch it after the dim_job insert",
		}
	}
	return uid, nil
}
