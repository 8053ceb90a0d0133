package jobs

import (
	"context"
	"time"
)

// Harvester discovers listings page by page and yields sanitized raw job
// documents. The returned channel is closed when maxPages is exhausted, a
// page returns zero listings, or a terminal item is delivered.
type Harvester interface {
	Harvest(ctx context.Context, keyword, area string, maxPages int) (<-chan HarvestItem, error)
}

// BronzeQuery filters a bronze select. An empty JobNameFilter returns all
// documents. Projection, when set, limits the returned top-level fields.
type BronzeQuery struct {
	JobNameFilter string
	Projection    Projection
}

// Projection is a top-level field allow/deny list for a bronze select.
// Include and Exclude are mutually exclusive; stores reject a query that sets
// both.
type Projection struct {
	Include []string
	Exclude []string
}

// IsZero reports whether the projection leaves documents untouched.
func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// BronzeStore is the raw-capture document repository keyed by job_id.
type BronzeStore interface {
	// UpsertBatch applies one unordered upsert per document. A single
	// document's failure must not block the rest of the batch.
	UpsertBatch(ctx context.Context, docs []RawJobDocument) (WriteSummary, error)

	// Select returns documents whose header.jobName matches the filter
	// case-insensitively, bounded by a query timeout.
	Select(ctx context.Context, query BronzeQuery) ([]RawJobDocument, error)
}

// SilverStore is the curated relational repository. Implementations must make
// every write an upsert on the primary key and treat empty row sets as no-ops.
type SilverStore interface {
	// EnsureSchema is an idempotent create-if-absent for all tables and
	// indexes.
	EnsureSchema(ctx context.Context) error

	// SeedSalaryTypes inserts the salary_type reference rows.
	SeedSalaryTypes(ctx context.Context) error

	UpsertCompanies(ctx context.Context, rows []CompanyRow) error
	UpsertJobs(ctx context.Context, rows []JobRow) error

	// JobKeyMap returns the authoritative job_id to surrogate-id mapping for
	// the given business keys. Callers must re-fetch it after every dim_job
	// insert and before writing any dependent table.
	JobKeyMap(ctx context.Context, jobIDs []string) (KeyMap, error)

	UpsertJobDetails(ctx context.Context, rows []JobDetailRow) error
	UpsertWelfare(ctx context.Context, rows []WelfareRow) error
	UpsertSkills(ctx context.Context, rows []SkillRow) error
	UpsertSpecialties(ctx context.Context, rows []SpecialtyRow) error
	UpsertMajors(ctx context.Context, rows []MajorRow) error
	UpsertCategories(ctx context.Context, rows []CategoryRow) error
	UpsertLanguages(ctx context.Context, rows []LanguageRow) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
