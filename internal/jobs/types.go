// Package jobs defines core types shared across the harvest and ETL subsystems.
package jobs

import "time"

// Salary type codes used by the upstream source and persisted in the
// salary_type reference table.
const (
	SalaryNegotiable = 10
	SalaryHourly     = 20
	SalaryPiecework  = 30
	SalaryDaily      = 40
	SalaryMonthly    = 50
	SalaryAnnual     = 60
	SalaryPartTime   = 70
)

// UncappedSalary is the sentinel the source uses for "no stated upper bound".
// It must pass through salary normalization unchanged.
const UncappedSalary = 9999999

// AnnualToMonthlyFactor divides annual salary figures down to a monthly basis.
const AnnualToMonthlyFactor = 13

// ListingStub is produced by search-page discovery and consumed immediately
// by the detail fetch. It is never persisted.
type ListingStub struct {
	JobID     string
	DetailURL string
}

// RawJobDocument is the bronze unit: one lightly-sanitized job detail payload
// keyed by the source's external job id. Re-harvesting the same id overwrites
// the document in place (last-write-wins).
type RawJobDocument struct {
	JobID     string       `bson:"_id" json:"job_id"`
	Header    RawHeader    `bson:"header" json:"header"`
	Condition RawCondition `bson:"condition" json:"condition"`
	JobDetail RawJobDetail `bson:"jobDetail" json:"jobDetail"`
	Welfare   RawWelfare   `bson:"welfare" json:"welfare"`
	Industry  string       `bson:"industry" json:"industry"`
	Employees string       `bson:"employees" json:"employees"`

	// Rest catches source fields we do not model so the bronze capture stays
	// faithful to the upstream payload. The nested raw objects carry their own
	// inline catch-alls for the same reason.
	Rest map[string]any `bson:",inline" json:"-"`
}

// RawHeader mirrors the detail payload's header object.
type RawHeader struct {
	JobName    string `bson:"jobName" json:"jobName"`
	CustName   string `bson:"custName" json:"custName"`
	CustNo     string `bson:"custNo" json:"custNo"`
	CustURL    string `bson:"custUrl" json:"custUrl"`
	AppearDate string `bson:"appearDate" json:"appearDate"`

	Rest map[string]any `bson:",inline" json:"-"`
}

// RawCondition mirrors the detail payload's condition object.
type RawCondition struct {
	WorkExp   string        `bson:"workExp" json:"workExp"`
	Edu       string        `bson:"edu" json:"edu"`
	Major     []string      `bson:"major" json:"major"`
	Skill     []RawTag      `bson:"skill" json:"skill"`
	Specialty []RawTag      `bson:"specialty" json:"specialty"`
	Language  []RawLanguage `bson:"language" json:"language"`
	Other     string        `bson:"other" json:"other"`

	Rest map[string]any `bson:",inline" json:"-"`
}

// RawTag is a coded label (skill, specialty, job category). The code is kept
// in bronze but dropped during normalization.
type RawTag struct {
	Code        int64  `bson:"code" json:"code"`
	Description string `bson:"description" json:"description"`
}

// RawLanguage is a language requirement with a nested proficiency object.
// Any of the proficiency sub-fields may be absent upstream.
type RawLanguage struct {
	Language    string         `bson:"language" json:"language"`
	Proficiency RawProficiency `bson:"proficiency" json:"proficiency"`
}

// RawProficiency holds the four language skill levels.
type RawProficiency struct {
	Listening string `bson:"listening" json:"listening"`
	Speaking  string `bson:"speaking" json:"speaking"`
	Reading   string `bson:"reading" json:"reading"`
	Writing   string `bson:"writing" json:"writing"`
}

// RawJobDetail mirrors the detail payload's jobDetail object.
type RawJobDetail struct {
	JobDescription string   `bson:"jobDescription" json:"jobDescription"`
	JobCategory    []RawTag `bson:"jobCategory" json:"jobCategory"`
	WorkType       []string `bson:"workType" json:"workType"`
	Salary         string   `bson:"salary" json:"salary"`
	SalaryMin      int64    `bson:"salaryMin" json:"salaryMin"`
	SalaryMax      int64    `bson:"salaryMax" json:"salaryMax"`
	SalaryType     int      `bson:"salaryType" json:"salaryType"`
	AddressArea    string   `bson:"addressArea" json:"addressArea"`
	AddressRegion  string   `bson:"addressRegion" json:"addressRegion"`
	AddressDetail  string   `bson:"addressDetail" json:"addressDetail"`
	WorkPeriod     string   `bson:"workPeriod" json:"workPeriod"`
	VacationPolicy string   `bson:"vacationPolicy" json:"vacationPolicy"`
	NeedEmp        string   `bson:"needEmp" json:"needEmp"`
	ManageResp     string   `bson:"manageResp" json:"manageResp"`
	BusinessTrip   string   `bson:"businessTrip" json:"businessTrip"`
	RemoteWork     string   `bson:"remoteWork" json:"remoteWork"`

	Rest map[string]any `bson:",inline" json:"-"`
}

// RawWelfare mirrors the detail payload's welfare object.
type RawWelfare struct {
	Welfare  string   `bson:"welfare" json:"welfare"`
	Tag      []string `bson:"tag" json:"tag"`
	LegalTag []string `bson:"legalTag" json:"legalTag"`

	Rest map[string]any `bson:",inline" json:"-"`
}

// CompanyRow is one cust_info dimension row. Companies are a weak reference
// target: jobs may point at a cust_no that never materializes here.
type CompanyRow struct {
	CustNo    string
	CustName  string
	Industry  string
	Employees int
}

// JobRow is one dim_job dimension row keyed by the external business key.
// The surrogate id is assigned by the silver store at insert time and is
// never present on the row itself.
type JobRow struct {
	JobID          string
	JobName        string
	WorkType       *string
	SalaryType     int
	SalaryMin      int64
	SalaryMax      int64
	AddressArea    string
	AddressRegion  string
	WorkExp        string
	Edu            string
	WorkPeriod     string
	VacationPolicy string
	CustNo         string
	AppearDate     time.Time
}

// JobDetailRow is the 1:1 job_detail extension, keyed by the surrogate id.
type JobDetailRow struct {
	JobUID         int64
	NeedEmp        string
	ManageResp     string
	BusinessTrip   string
	RemoteWork     string
	JobDescription string
}

// WelfareRow is the 1:1 welfare extension.
type WelfareRow struct {
	JobUID             int64
	Tags               []string
	LegalTags          []string
	WelfareDescription string
}

// SkillRow is one (job_uid, skill_name) bridge row.
type SkillRow struct {
	JobUID    int64
	SkillName string
}

// SpecialtyRow is one (job_uid, specialty_name) bridge row.
type SpecialtyRow struct {
	JobUID        int64
	SpecialtyName string
}

// MajorRow is one (job_uid, major_name) bridge row.
type MajorRow struct {
	JobUID    int64
	MajorName string
}

// CategoryRow is one (job_uid, category_name) bridge row.
type CategoryRow struct {
	JobUID       int64
	CategoryName string
}

// LanguageRow is one (job_uid, language) bridge row with proficiency
// association attributes.
type LanguageRow struct {
	JobUID    int64
	Language  string
	Listening string
	Speaking  string
	Reading   string
	Writing   string
}

// SalaryRecord is a derived export artifact, not a persisted table. Records
// are partitioned into exact and negotiable populations, with annual figures
// already normalized to a monthly basis.
type SalaryRecord struct {
	JobID     string
	SalaryMin int64
	SalaryMax int64
}

// TagRecord pairs a job with one exploded tag description, keyed by the
// business id rather than the surrogate id so it can be produced without a
// silver round trip.
type TagRecord struct {
	JobID       string
	Description string
}

// Classification pairs a job with its standardized role category.
type Classification struct {
	JobID        string
	JobName      string
	RoleCategory string
}

// WriteSummary reports the outcome of one bronze batch upsert. Failed counts
// documents whose individual writes were rejected; already-applied writes in
// the same batch are not rolled back.
type WriteSummary struct {
	Matched  int
	Upserted int
	Failed   int
}

// KeyMap maps external job_id to the silver store's surrogate id. It must be
// re-fetched after every dim_job insert before dependent tables are written.
type KeyMap map[string]int64

// HarvestOutcome labels what happened to one discovered listing.
type HarvestOutcome string

// Harvest item outcomes. Skips are recoverable and stay local to the item;
// a terminal item (Err set) aborts the stream.
const (
	OutcomeFetched      HarvestOutcome = "fetched"
	OutcomeSkippedLink  HarvestOutcome = "skipped_link"
	OutcomeSkippedFetch HarvestOutcome = "skipped_fetch"
	OutcomeSkippedParse HarvestOutcome = "skipped_parse"
	OutcomeSkippedSeen  HarvestOutcome = "skipped_seen"
)

// HarvestItem is the per-item result yielded by the harvester so callers can
// branch on skips without relying on error values for control flow.
type HarvestItem struct {
	Outcome HarvestOutcome
	JobID   string
	Doc     RawJobDocument
	Reason  string

	// Err marks a page-level terminal failure. The stream closes after an
	// item carrying Err; everything yielded before it remains valid.
	Err error
}
