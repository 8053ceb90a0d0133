package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the read-only database surface the dashboard needs. Satisfied by
// pgxpool.Pool and by pgxmock in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TrendPoint is one day of the posting trend.
type TrendPoint struct {
	Date      string  `json:"date"`
	JobCount  int64   `json:"jobCount"`
	AvgSalary float64 `json:"avgSalary"`
}

// LabelValue is one slice of a categorical distribution.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Repository runs the aggregate queries behind the dashboard endpoints. Every
// query accepts an optional job-name substring filter, always bound as a
// parameter.
type Repository struct {
	db Querier
}

// NewRepository wraps a Querier.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// nameFilter renders the optional job-name condition. prefix is "WHERE" or
// "AND" depending on the surrounding query.
func nameFilter(prefix, column, name string, args []any) (string, []any) {
	if name == "" {
		return "", args
	}
	args = append(args, name)
	return fmt.Sprintf(" %s %s ILIKE '%%' || $%d || '%%'", prefix, column, len(args)), args
}

// Trend returns the last 30 days of job counts and average salaries.
func (r *Repository) Trend(ctx context.Context, name string) ([]TrendPoint, error) {
	query := `
SELECT appear_date::text AS date,
	COUNT(*) AS job_count,
	COALESCE(AVG((salary_min + salary_max) / 2.0), 0) AS avg_salary
FROM dim_job`
	clause, args := nameFilter("WHERE", "job_name", name, nil)
	query += clause + `
GROUP BY appear_date
ORDER BY appear_date DESC
LIMIT 30`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.JobCount, &p.AvgSalary); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return points, nil
}

// TopSkills returns the most-demanded skills by job count.
func (r *Repository) TopSkills(ctx context.Context, name string, limit int) ([]LabelValue, error) {
	if limit <= 0 {
		limit = 10
	}
	args := []any{limit}
	query := `
SELECT bs.skill_name AS label, COUNT(*) AS value
FROM bridge_skills bs
JOIN dim_job dj ON dj.id = bs.job_uid`
	clause, args := nameFilter("WHERE", "dj.job_name", name, args)
	query += clause + `
GROUP BY bs.skill_name
ORDER BY value DESC
LIMIT $1`

	return r.labelValues(ctx, "top skills", query, args)
}

// Regions returns the job count per address area.
func (r *Repository) Regions(ctx context.Context, name string) ([]LabelValue, error) {
	query := `
SELECT address_area AS label, COUNT(*) AS value
FROM dim_job`
	clause, args := nameFilter("WHERE", "job_name", name, nil)
	query += clause + `
GROUP BY address_area
ORDER BY value DESC`

	return r.labelValues(ctx, "regions", query, args)
}

// Industries returns the job count per company industry.
func (r *Repository) Industries(ctx context.Context, name string) ([]LabelValue, error) {
	query := `
SELECT ci.industry AS label, COUNT(*) AS value
FROM dim_job dj
JOIN cust_info ci ON dj.cust_no = ci.cust_no`
	clause, args := nameFilter("WHERE", "dj.job_name", name, nil)
	query += clause + `
GROUP BY ci.industry
ORDER BY value DESC`

	return r.labelValues(ctx, "industries", query, args)
}

// SalaryDistribution buckets jobs by midpoint salary. Rows without a stated
// range are excluded.
func (r *Repository) SalaryDistribution(ctx context.Context, name string) ([]LabelValue, error) {
	query := `
SELECT CASE
	WHEN (salary_min + salary_max) / 2 < 30000 THEN '< 30K'
	WHEN (salary_min + salary_max) / 2 < 40000 THEN '30K-40K'
	WHEN (salary_min + salary_max) / 2 < 50000 THEN '40K-50K'
	WHEN (salary_min + salary_max) / 2 < 60000 THEN '50K-60K'
	WHEN (salary_min + salary_max) / 2 < 80000 THEN '60K-80K'
	WHEN (salary_min + salary_max) / 2 < 100000 THEN '80K-100K'
	ELSE '> 100K'
END AS label,
COUNT(*) AS value
FROM dim_job
WHERE salary_min > 0 AND salary_max > 0 AND salary_max <> 9999999`
	clause, args := nameFilter("AND", "job_name", name, nil)
	query += clause + `
GROUP BY label
ORDER BY MIN((salary_min + salary_max) / 2)`

	return r.labelValues(ctx, "salary distribution", query, args)
}

// TotalJobs returns the total job count.
func (r *Repository) TotalJobs(ctx context.Context, name string) (int64, error) {
	query := `SELECT COUNT(*) FROM dim_job`
	clause, args := nameFilter("WHERE", "job_name", name, nil)
	query += clause

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query total jobs: %w", err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("scan total jobs: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate total jobs: %w", err)
	}
	return total, nil
}

func (r *Repository) labelValues(ctx context.Context, what, query string, args []any) ([]LabelValue, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	var out []LabelValue
	for rows.Next() {
		var lv LabelValue
		if err := rows.Scan(&lv.Label, &lv.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, lv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}
