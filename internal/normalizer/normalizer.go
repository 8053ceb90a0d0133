// Package normalizer holds the pure bronze-to-silver transforms. Every
// function maps raw job documents to one target entity's rows and validates
// the output against that entity's contract before returning it. Nothing here
// touches a store: surrogate-key lookups arrive as an explicit KeyMap
// argument fetched by the caller after the dimension insert.
package normalizer

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

// appearDateLayouts are the date formats seen in detail payloads.
var appearDateLayouts = []string{"2006/01/02", "2006-01-02"}

const workTypeSeparator = ","

// Companies builds cust_info rows, deduplicated by cust_no with the last
// document winning. Documents with no company number are skipped: jobs keep a
// weak reference that may simply never resolve.
func Companies(docs []jobs.RawJobDocument) ([]jobs.CompanyRow, error) {
	byCustNo := make(map[string]jobs.CompanyRow)
	var order []string
	for _, doc := range docs {
		custNo := doc.Header.CustNo
		if custNo == "" {
			continue
		}
		row := jobs.CompanyRow{
			CustNo:    custNo,
			CustName:  doc.Header.CustName,
			Industry:  doc.Industry,
			Employees: parseEmployees(doc.Employees),
		}
		if err := validateCompanyRow(row); err != nil {
			return nil, err
		}
		if _, seen := byCustNo[custNo]; !seen {
			order = append(order, custNo)
		}
		byCustNo[custNo] = row
	}

	rows := make([]jobs.CompanyRow, 0, len(order))
	for _, custNo := range order {
		rows = append(rows, byCustNo[custNo])
	}
	return rows, nil
}

// Jobs builds dim_job rows. An absent salary type defaults to the piecework
// code to match the table default; an empty work-type list becomes NULL, not
// an empty string.
func Jobs(docs []jobs.RawJobDocument) ([]jobs.JobRow, error) {
	rows := make([]jobs.JobRow, 0, len(docs))
	for _, doc := range docs {
		detail := doc.JobDetail

		salaryType := detail.SalaryType
		if salaryType == 0 {
			salaryType = jobs.SalaryPiecework
		}

		appearDate, err := parseAppearDate(doc.JobID, doc.Header.AppearDate)
		if err != nil {
			return nil, err
		}

		row := jobs.JobRow{
			JobID:          doc.JobID,
			JobName:        doc.Header.JobName,
			WorkType:       joinWorkTypes(detail.WorkType),
			SalaryType:     salaryType,
			SalaryMin:      detail.SalaryMin,
			SalaryMax:      detail.SalaryMax,
			AddressArea:    detail.AddressArea,
			AddressRegion:  detail.AddressRegion,
			WorkExp:        doc.Condition.WorkExp,
			Edu:            doc.Condition.Edu,
			WorkPeriod:     detail.WorkPeriod,
			VacationPolicy: detail.VacationPolicy,
			CustNo:         doc.Header.CustNo,
			AppearDate:     appearDate,
		}
		if err := validateJobRow(row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// JobDetails builds the 1:1 job_detail extension keyed by the surrogate id.
func JobDetails(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.JobDetailRow, error) {
	if len(keyMap) == 0 {
		return nil, ErrKeyMapRequired
	}
	rows := make([]jobs.JobDetailRow, 0, len(docs))
	for _, doc := range docs {
		uid, err := resolveUID("job_detail", keyMap, doc.JobID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, jobs.JobDetailRow{
			JobUID:         uid,
			NeedEmp:        doc.JobDetail.NeedEmp,
			ManageResp:     doc.JobDetail.ManageResp,
			BusinessTrip:   doc.JobDetail.BusinessTrip,
			RemoteWork:     doc.JobDetail.RemoteWork,
			JobDescription: doc.JobDetail.JobDescription,
		})
	}
	return rows, nil
}

// Welfare builds the 1:1 welfare extension keyed by the surrogate id.
func Welfare(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.WelfareRow, error) {
	if len(keyMap) == 0 {
		return nil, ErrKeyMapRequired
	}
	rows := make([]jobs.WelfareRow, 0, len(docs))
	for _, doc := range docs {
		uid, err := resolveUID("welfare", keyMap, doc.JobID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, jobs.WelfareRow{
			JobUID:             uid,
			Tags:               doc.Welfare.Tag,
			LegalTags:          doc.Welfare.LegalTag,
			WelfareDescription: doc.Welfare.Welfare,
		})
	}
	return rows, nil
}

// Skills explodes condition.skill into one bridge row per element, dropping
// empty descriptions and duplicate (job_uid, skill_name) pairs.
func Skills(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.SkillRow, error) {
	pairs, err := explodeTags("bridge_skills", docs, keyMap, func(doc jobs.RawJobDocument) []jobs.RawTag {
		return doc.Condition.Skill
	})
	if err != nil {
		return nil, err
	}
	rows := make([]jobs.SkillRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, jobs.SkillRow{JobUID: p.uid, SkillName: p.name})
	}
	return rows, nil
}

// Specialties explodes condition.specialty the same way as Skills.
func Specialties(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.SpecialtyRow, error) {
	pairs, err := explodeTags("bridge_specialties", docs, keyMap, func(doc jobs.RawJobDocument) []jobs.RawTag {
		return doc.Condition.Specialty
	})
	if err != nil {
		return nil, err
	}
	rows := make([]jobs.SpecialtyRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, jobs.SpecialtyRow{JobUID: p.uid, SpecialtyName: p.name})
	}
	return rows, nil
}

// Categories explodes jobDetail.jobCategory into bridge rows.
func Categories(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.CategoryRow, error) {
	pairs, err := explodeTags("bridge_category", docs, keyMap, func(doc jobs.RawJobDocument) []jobs.RawTag {
		return doc.JobDetail.JobCategory
	})
	if err != nil {
		return nil, err
	}
	rows := make([]jobs.CategoryRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, jobs.CategoryRow{JobUID: p.uid, CategoryName: p.name})
	}
	return rows, nil
}

// Majors explodes condition.major (plain strings, no codes) into bridge rows.
func Majors(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.MajorRow, error) {
	if len(keyMap) == 0 {
		return nil, ErrKeyMapRequired
	}
	var rows []jobs.MajorRow
	seen := make(map[string]map[string]struct{})
	for _, doc := range docs {
		if len(doc.Condition.Major) == 0 {
			continue
		}
		uid, err := resolveUID("bridge_major", keyMap, doc.JobID)
		if err != nil {
			return nil, err
		}
		for _, major := range doc.Condition.Major {
			if major == "" {
				continue
			}
			if dupe(seen, doc.JobID, major) {
				continue
			}
			rows = append(rows, jobs.MajorRow{JobUID: uid, MajorName: major})
		}
	}
	return rows, nil
}

// Languages explodes condition.language, flattening the nested proficiency
// object into four columns. Absent sub-fields are already empty strings from
// the decode, so missing proficiency data never fails the transform.
func Languages(docs []jobs.RawJobDocument, keyMap jobs.KeyMap) ([]jobs.LanguageRow, error) {
	if len(keyMap) == 0 {
		return nil, ErrKeyMapRequired
	}
	var rows []jobs.LanguageRow
	seen := make(map[string]map[string]struct{})
	for _, doc := range docs {
		if len(doc.Condition.Language) == 0 {
			continue
		}
		uid, err := resolveUID("bridge_language", keyMap, doc.JobID)
		if err != nil {
			return nil, err
		}
		for _, lang := range doc.Condition.Language {
			if lang.Language == "" {
				continue
			}
			if dupe(seen, doc.JobID, lang.Language) {
				continue
			}
			rows = append(rows, jobs.LanguageRow{
				JobUID:    uid,
				Language:  lang.Language,
				Listening: lang.Proficiency.Listening,
				Speaking:  lang.Proficiency.Speaking,
				Reading:   lang.Proficiency.Reading,
				Writing:   lang.Proficiency.Writing,
			})
		}
	}
	return rows, nil
}

// ExactSalaries returns the population with an explicit numeric range:
// monthly or annual type, a positive minimum, and a real (non-sentinel)
// maximum. Annual figures come back converted to a monthly basis.
func ExactSalaries(docs []jobs.RawJobDocument) []jobs.SalaryRecord {
	var records []jobs.SalaryRecord
	for _, doc := range docs {
		d := doc.JobDetail
		typed := d.SalaryType == jobs.SalaryMonthly || d.SalaryType == jobs.SalaryAnnual
		if !typed || d.SalaryMin <= 0 || d.SalaryMax == jobs.UncappedSalary {
			continue
		}
		records = append(records, convertAnnual(doc.JobID, d))
	}
	return records
}

// NegotiableSalaries returns the open-ended population: negotiable, monthly,
// or annual type where the range is absent or the maximum is the uncapped
// sentinel. Disjoint from ExactSalaries by construction.
func NegotiableSalaries(docs []jobs.RawJobDocument) []jobs.SalaryRecord {
	var records []jobs.SalaryRecord
	for _, doc := range docs {
		d := doc.JobDetail
		typed := d.SalaryType == jobs.SalaryNegotiable ||
			d.SalaryType == jobs.SalaryMonthly ||
			d.SalaryType == jobs.SalaryAnnual
		open := (d.SalaryMin == 0 && d.SalaryMax == 0) || d.SalaryMax == jobs.UncappedSalary
		if !typed || !open {
			continue
		}
		records = append(records, convertAnnual(doc.JobID, d))
	}
	return records
}

// SkillRecords explodes condition.skill keyed by the business id, for exports
// that never touch the silver store.
func SkillRecords(docs []jobs.RawJobDocument) []jobs.TagRecord {
	return tagRecords(docs, func(doc jobs.RawJobDocument) []jobs.RawTag {
		return doc.Condition.Skill
	})
}

// SpecialtyRecords explodes condition.specialty the same way as SkillRecords.
func SpecialtyRecords(docs []jobs.RawJobDocument) []jobs.TagRecord {
	return tagRecords(docs, func(doc jobs.RawJobDocument) []jobs.RawTag {
		return doc.Condition.Specialty
	})
}

func tagRecords(docs []jobs.RawJobDocument, pick func(jobs.RawJobDocument) []jobs.RawTag) []jobs.TagRecord {
	var records []jobs.TagRecord
	seen := make(map[string]map[string]struct{})
	for _, doc := range docs {
		for _, tag := range pick(doc) {
			if tag.Description == "" {
				continue
			}
			if dupe(seen, doc.JobID, tag.Description) {
				continue
			}
			records = append(records, jobs.TagRecord{JobID: doc.JobID, Description: tag.Description})
		}
	}
	return records
}

// Classifications pairs each job with its standardized role category.
func Classifications(docs []jobs.RawJobDocument) []jobs.Classification {
	records := make([]jobs.Classification, 0, len(docs))
	for _, doc := range docs {
		records = append(records, jobs.Classification{
			JobID:        doc.JobID,
			JobName:      doc.Header.JobName,
			RoleCategory: ClassifyTitle(doc.Header.JobName),
		})
	}
	return records
}

// convertAnnual divides annual salaries down to a monthly basis with integer
// truncation. The minimum is always converted; the maximum only when it is
// not the uncapped sentinel, which must pass through unchanged.
func convertAnnual(jobID string, d jobs.RawJobDetail) jobs.SalaryRecord {
	min, max := d.SalaryMin, d.SalaryMax
	if d.SalaryType == jobs.SalaryAnnual {
		min /= jobs.AnnualToMonthlyFactor
		if max != jobs.UncappedSalary {
			max /= jobs.AnnualToMonthlyFactor
		}
	}
	return jobs.SalaryRecord{JobID: jobID, SalaryMin: min, SalaryMax: max}
}

type tagPair struct {
	uid  int64
	name string
}

func explodeTags(table string, docs []jobs.RawJobDocument, keyMap jobs.KeyMap, pick func(jobs.RawJobDocument) []jobs.RawTag) ([]tagPair, error) {
	if len(keyMap) == 0 {
		return nil, ErrKeyMapRequired
	}
	var pairs []tagPair
	seen := make(map[string]map[string]struct{})
	for _, doc := range docs {
		tags := pick(doc)
		if len(tags) == 0 {
			continue
		}
		uid, err := resolveUID(table, keyMap, doc.JobID)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if tag.Description == "" {
				continue
			}
			if dupe(seen, doc.JobID, tag.Description) {
				continue
			}
			pairs = append(pairs, tagPair{uid: uid, name: tag.Description})
		}
	}
	return pairs, nil
}

func dupe(seen map[string]map[string]struct{}, jobID, name string) bool {
	names, ok := seen[jobID]
	if !ok {
		names = make(map[string]struct{})
		seen[jobID] = names
	}
	if _, exists := names[name]; exists {
		return true
	}
	names[name] = struct{}{}
	return false
}

// joinWorkTypes collapses the work-type list to a single scalar. An empty
// list maps to NULL so downstream nullability checks see absent, not "".
func joinWorkTypes(workTypes []string) *string {
	filtered := workTypes[:0:0]
	for _, wt := range workTypes {
		if wt != "" {
			filtered = append(filtered, wt)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	joined := strings.Join(filtered, workTypeSeparator)
	return &joined
}

// parseEmployees extracts the leading digits from strings like "120人".
// Anything without digits (e.g. "暫不提供") coerces to zero.
func parseEmployees(s string) int {
	n := 0
	found := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			n = n*10 + int(r-'0')
			found = true
			continue
		}
		if found {
			break
		}
	}
	return n
}

func parseAppearDate(jobID, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{
			Table:  "dim_job",
			JobID:  jobID,
			Field:  "appear_date",
			Reason: "must not be empty",
		}
	}
	for _, layout := range appearDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{
		Table:  "dim_job",
		JobID:  jobID,
		Field:  "appear_date",
		Reason: "unrecognized date format " + value,
	}
}

// SortSalaryRecords orders records by job id for deterministic exports.
func SortSalaryRecords(records []jobs.SalaryRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].JobID < records[j].JobID })
}
