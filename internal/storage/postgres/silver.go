// Package postgres implements the silver curated repository on PostgreSQL.
// Every write is an upsert on the primary key; empty row sets are no-ops so
// the orchestrator never has to special-case sparse batches.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/jobs"
	"github.com/tjma/job-market-pipeline/internal/metrics"
)

// SilverStoreConfig controls the Postgres connection pool.
type SilverStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// SilverStore implements jobs.SilverStore.
type SilverStore struct {
	pool   pgxPool
	logger *zap.Logger
}

// New creates a Postgres-backed SilverStore using the provided config.
func New(ctx context.Context, cfg SilverStoreConfig, logger *zap.Logger) (*SilverStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("silver.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SilverStore{pool: pool, logger: logger}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, logger *zap.Logger) (*SilverStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SilverStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *SilverStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// schemaStatements are applied in dependency order. All DDL is create-if-absent
// so EnsureSchema is safe to run before every silver stage.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS salary_type (
	type INTEGER PRIMARY KEY,
	name VARCHAR(16)
)`,
	`CREATE TABLE IF NOT EXISTS cust_info (
	cust_no VARCHAR(24) PRIMARY KEY,
	cust_name VARCHAR(250),
	industry VARCHAR(100),
	employees INTEGER
)`,
	`CREATE TABLE IF NOT EXISTS dim_job (
	id BIGSERIAL PRIMARY KEY,
	job_id VARCHAR(40) NOT NULL UNIQUE,
	job_name VARCHAR(250),
	work_type VARCHAR(100),
	salary_type INTEGER REFERENCES salary_type(type) DEFAULT 30,
	salary_min BIGINT DEFAULT 0,
	salary_max BIGINT DEFAULT 0,
	address_area VARCHAR(20),
	address_region VARCHAR(30),
	work_exp VARCHAR(100),
	edu VARCHAR(100),
	work_period VARCHAR(200),
	vacation_policy VARCHAR(200),
	cust_no VARCHAR(24),
	appear_date DATE,
	updated_date DATE DEFAULT CURRENT_DATE
)`,
	`CREATE INDEX IF NOT EXISTS idx_salary ON dim_job (salary_min)`,
	`CREATE INDEX IF NOT EXISTS idx_location ON dim_job (address_area, address_region)`,
	`CREATE INDEX IF NOT EXISTS idx_job_id ON dim_job (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cust ON dim_job (cust_no)`,
	`CREATE TABLE IF NOT EXISTS job_detail (
	job_uid BIGINT PRIMARY KEY REFERENCES dim_job(id) ON DELETE CASCADE,
	need_emp VARCHAR(20),
	manage_resp VARCHAR(50),
	business_trip VARCHAR(50),
	remote_work VARCHAR(40),
	job_description TEXT
)`,
	`CREATE TABLE IF NOT EXISTS welfare (
	job_uid BIGINT PRIMARY KEY REFERENCES dim_job(id) ON DELETE CASCADE,
	tags JSONB,
	legal_tags JSONB,
	welfare_description TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_welfare_tags ON welfare USING GIN (tags)`,
	`CREATE INDEX IF NOT EXISTS idx_legal_tags ON welfare USING GIN (legal_tags)`,
	`CREATE TABLE IF NOT EXISTS bridge_skills (
	job_uid BIGINT REFERENCES dim_job(id) ON DELETE CASCADE,
	skill_name VARCHAR(250),
	PRIMARY KEY (job_uid, skill_name)
)`,
	`CREATE TABLE IF NOT EXISTS bridge_specialties (
	job_uid BIGINT REFERENCES dim_job(id) ON DELETE CASCADE,
	specialty_name VARCHAR(250),
	PRIMARY KEY (job_uid, specialty_name)
)`,
	`CREATE TABLE IF NOT EXISTS bridge_major (
	job_uid BIGINT REFERENCES dim_job(id) ON DELETE CASCADE,
	major_name VARCHAR(50),
	PRIMARY KEY (job_uid, major_name)
)`,
	`CREATE TABLE IF NOT EXISTS bridge_category (
	job_uid BIGINT REFERENCES dim_job(id) ON DELETE CASCADE,
	category_name VARCHAR(100),
	PRIMARY KEY (job_uid, category_name)
)`,
	`CREATE TABLE IF NOT EXISTS bridge_language (
	job_uid BIGINT REFERENCES dim_job(id) ON DELETE CASCADE,
	language VARCHAR(50),
	listening VARCHAR(30),
	speaking VARCHAR(30),
	reading VARCHAR(30),
	writing VARCHAR(30),
	PRIMARY KEY (job_uid, language)
)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func (s *SilverStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Debug("silver schema ensured")
	return nil
}

var salaryTypeNames = []struct {
	code int
	name string
}{
	{jobs.SalaryNegotiable, "面議"},
	{jobs.SalaryHourly, "時薪"},
	{jobs.SalaryPiecework, "論件計酬"},
	{jobs.SalaryDaily, "日薪"},
	{jobs.SalaryMonthly, "月薪"},
	{jobs.SalaryAnnual, "年薪"},
	{jobs.SalaryPartTime, "部分工時(月薪)"},
}

const seedSalaryTypeSQL = `
INSERT INTO salary_type (type, name)
VALUES ($1, $2)
ON CONFLICT (type) DO UPDATE SET name = EXCLUDED.name`

// SeedSalaryTypes inserts the reference rows, overwriting names on conflict.
func (s *SilverStore) SeedSalaryTypes(ctx context.Context) error {
	for _, st := range salaryTypeNames {
		if _, err := s.pool.Exec(ctx, seedSalaryTypeSQL, st.code, st.name); err != nil {
			return fmt.Errorf("seed salary_type %d: %w", st.code, err)
		}
	}
	return nil
}

const upsertCompanySQL = `
INSERT INTO cust_info (cust_no, cust_name, industry, employees)
VALUES ($1, $2, $3, $4)
ON CONFLICT (cust_no) DO UPDATE SET
	cust_name = EXCLUDED.cust_name,
	industry = EXCLUDED.industry,
	employees = EXCLUDED.employees`

// UpsertCompanies writes cust_info rows.
func (s *SilverStore) UpsertCompanies(ctx context.Context, rows []jobs.CompanyRow) error {
	for _, row := range rows {
		_, err := s.pool.Exec(ctx, upsertCompanySQL, row.CustNo, row.CustName, row.Industry, row.Employees)
		if err != nil {
			return fmt.Errorf("upsert cust_info %s: %w", row.CustNo, err)
		}
	}
	s.observe("cust_info", len(rows))
	return nil
}

const upsertJobSQL = `
INSERT INTO dim_job (
	job_id, job_name, work_type, salary_type, salary_min, salary_max,
	address_area, address_region, work_exp, edu, work_period,
	vacation_policy, cust_no, appear_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (job_id) DO UPDATE SET
	job_name = EXCLUDED.job_name,
	work_type = EXCLUDED.work_type,
	salary_type = EXCLUDED.salary_type,
	salary_min = EXCLUDED.salary_min,
	salary_max = EXCLUDED.salary_max,
	address_area = EXCLUDED.address_area,
	address_region = EXCLUDED.address_region,
	work_exp = EXCLUDED.work_exp,
	edu = EXCLUDED.edu,
	work_period = EXCLUDED.work_period,
	vacation_policy = EXCLUDED.vacation_policy,
	cust_no = EXCLUDED.cust_no,
	appear_date = EXCLUDED.appear_date,
	updated_date = CURRENT_DATE`

// UpsertJobs writes dim_job rows. The surrogate id is assigned by the
// database; the conflict target is the external business key.
func (s *SilverStore) UpsertJobs(ctx context.Context, rows []jobs.JobRow) error {
	for _, row := range rows {
		_, err := s.pool.Exec(ctx, upsertJobSQL,
			row.JobID, row.JobName, row.WorkType, row.SalaryType,
			row.SalaryMin, row.SalaryMax, row.AddressArea, row.AddressRegion,
			row.WorkExp, row.Edu, row.WorkPeriod, row.VacationPolicy,
			row.CustNo, row.AppearDate,
		)
		if err != nil {
			return fmt.Errorf("upsert dim_job %s: %w", row.JobID, err)
		}
	}
	s.observe("dim_job", len(rows))
	return nil
}

const jobKeyMapSQL = `SELECT id, job_id FROM dim_job WHERE job_id = ANY($1)`

// JobKeyMap returns the authoritative job_id to surrogate-id mapping. It must
// be called after the dim_job upsert and before any dependent table write.
func (s *SilverStore) JobKeyMap(ctx context.Context, jobIDs []string) (jobs.KeyMap, error) {
	keyMap := make(jobs.KeyMap, len(jobIDs))
	if len(jobIDs) == 0 {
		return keyMap, nil
	}

	rows, err := s.pool.Query(ctx, jobKeyMapSQL, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("select job key map: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			jobID string
		)
		if err := rows.Scan(&id, &jobID); err != nil {
			return nil, fmt.Errorf("scan job key map: %w", err)
		}
		keyMap[jobID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job key map: %w", err)
	}
	return keyMap, nil
}

const upsertJobDetailSQL = `
INSERT INTO job_detail (job_uid, need_emp, manage_resp, business_trip, remote_work, job_description)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_uid) DO UPDATE SET
	need_emp = EXCLUDED.need_emp,
	manage_resp = EXCLUDED.manage_resp,
	business_trip = EXCLUDED.business_trip,
	remote_work = EXCLUDED.remote_work,
	job_description = EXCLUDED.job_description`

// UpsertJobDetails writes the 1:1 job_detail extension rows.
func (s *SilverStore) UpsertJobDetails(ctx context.Context, rows []jobs.JobDetailRow) error {
	for _, row := range rows {
		_, err := s.pool.Exec(ctx, upsertJobDetailSQL,
			row.JobUID, row.NeedEmp, row.ManageResp, row.BusinessTrip,
			row.RemoteWork, row.JobDescription,
		)
		if err != nil {
			return fmt.Errorf("upsert job_detail %d: %w", row.JobUID, err)
		}
	}
	s.observe("job_detail", len(rows))
	return nil
}

const upsertWelfareSQL = `
INSERT INTO welfare (job_uid, tags, legal_tags, welfare_description)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_uid) DO UPDATE SET
	tags = EXCLUDED.tags,
	legal_tags = EXCLUDED.legal_tags,
	welfare_description = EXCLUDED.welfare_description`

// UpsertWelfare writes the 1:1 welfare extension rows, with tag lists stored
// as JSONB.
func (s *SilverStore) UpsertWelfare(ctx context.Context, rows []jobs.WelfareRow) error {
	for _, row := range rows {
		tags, err := json.Marshal(emptyIfNil(row.Tags))
		if err != nil {
			return fmt.Errorf("marshal welfare tags %d: %w", row.JobUID, err)
		}
		legalTags, err := json.Marshal(emptyIfNil(row.LegalTags))
		if err != nil {
			return fmt.Errorf("marshal welfare legal tags %d: %w", row.JobUID, err)
		}
		_, err = s.pool.Exec(ctx, upsertWelfareSQL, row.JobUID, tags, legalTags, row.WelfareDescription)
		if err != nil {
			return fmt.Errorf("upsert welfare %d: %w", row.JobUID, err)
		}
	}
	s.observe("welfare", len(rows))
	return nil
}

const upsertSkillSQL = `
INSERT INTO bridge_skills (job_uid, skill_name)
VALUES ($1, $2)
ON CONFLICT (job_uid, skill_name) DO NOTHING`

// UpsertSkills writes bridge_skills rows. The composite key carries all the
// data, so conflicts are simply ignored.
func (s *SilverStore) UpsertSkills(ctx context.Context, rows []jobs.SkillRow) error {
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, upsertSkillSQL, row.JobUID, row.SkillName); err != nil {
			return fmt.Errorf("upsert bridge_skills %d: %w", row.JobUID, err)
		}
	}
	s.observe("bridge_skills", len(rows))
	return nil
}

const upsertSpecialtySQL = `
INSERT INTO bridge_specialties (job_uid, specialty_name)
VALUES ($1, $2)
ON CONFLICT (job_uid, specialty_name) DO NOTHING`

// UpsertSpecialties writes bridge_specialties rows.
func (s *SilverStore) UpsertSpecialties(ctx context.Context, rows []jobs.SpecialtyRow) error {
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, upsertSpecialtySQL, row.JobUID, row.SpecialtyName); err != nil {
			return fmt.Errorf("upsert bridge_specialties %d: %w", row.JobUID, err)
		}
	}
	s.observe("bridge_specialties", len(rows))
	return nil
}

const upsertMajorSQL = `
INSERT INTO bridge_major (job_uid, major_name)
VALUES ($1, $2)
ON CONFLICT (job_uid, major_name) DO NOTHING`

// UpsertMajors writes bridge_major rows.
func (s *SilverStore) UpsertMajors(ctx context.Context, rows []jobs.MajorRow) error {
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, upsertMajorSQL, row.JobUID, row.MajorName); err != nil {
			return fmt.Errorf("upsert bridge_major %d: %w", row.JobUID, err)
		}
	}
	s.observe("bridge_major", len(rows))
	return nil
}

const upsertCategorySQL = `
INSERT INTO bridge_category (job_uid, category_name)
VALUES ($1, $2)
ON CONFLICT (job_uid, category_name) DO NOTHING`

// UpsertCategories writes bridge_category rows.
func (s *SilverStore) UpsertCategories(ctx context.Context, rows []jobs.CategoryRow) error {
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, upsertCategorySQL, row.JobUID, row.CategoryName); err != nil {
			return fmt.Errorf("upsert bridge_category %d: %w", row.JobUID, err)
		}
	}
	s.observe("bridge_category", len(rows))
	return nil
}

const upsertLanguageSQL = `
INSERT INTO bridge_language (job_uid, language, listening, speaking, reading, writing)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_uid, language) DO UPDATE SET
	listening = EXCLUDED.listening,
	speaking = EXCLUDED.speaking,
	reading = EXCLUDED.reading,
	writing = EXCLUDED.writing`

// UpsertLanguages writes bridge_language rows, overwriting the proficiency
// attributes on conflict.
func (s *SilverStore) UpsertLanguages(ctx context.Context, rows []jobs.LanguageRow) error {
	for _, row := range rows {
		_, err := s.pool.Exec(ctx, upsertLanguageSQL,
			row.JobUID, row.Language, row.Listening, row.Speaking, row.Reading, row.Writing,
		)
		if err != nil {
			return fmt.Errorf("upsert bridge_language %d: %w", row.JobUID, err)
		}
	}
	s.observe("bridge_language", len(rows))
	return nil
}

func (s *SilverStore) observe(table string, count int) {
	if count == 0 {
		return
	}
	metrics.ObserveSilverRows(table, count)
	s.logger.Debug("silver rows upserted", zap.String("table", table), zap.Int("rows", count))
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
