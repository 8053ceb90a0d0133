// Package memory provides in-process implementations of the bronze and
// silver repositories for tests and dry runs.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

// BronzeStore is a map-backed jobs.BronzeStore keyed by job id.
type BronzeStore struct {
	mu   sync.Mutex
	docs map[string]jobs.RawJobDocument

	// FailJobIDs lists ids whose upserts are rejected, for exercising
	// partial-failure handling.
	FailJobIDs map[string]bool
}

// NewBronzeStore returns an empty in-memory bronze store.
func NewBronzeStore() *BronzeStore {
	return &BronzeStore{docs: make(map[string]jobs.RawJobDocument)}
}

// UpsertBatch applies each document independently, mirroring the unordered
// semantics of the real store.
func (s *BronzeStore) UpsertBatch(_ context.Context, docs []jobs.RawJobDocument) (jobs.WriteSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary jobs.WriteSummary
	for _, doc := range docs {
		if s.FailJobIDs[doc.JobID] {
			summary.Failed++
			continue
		}
		if _, exists := s.docs[doc.JobID]; exists {
			summary.Matched++
		} else {
			summary.Upserted++
		}
		s.docs[doc.JobID] = doc
	}
	return summary, nil
}

// Select filters by header.jobName with a case-insensitive regex, matching
// the document store's behavior. Results are ordered by job id for
// deterministic tests.
func (s *BronzeStore) Select(_ context.Context, query jobs.BronzeQuery) ([]jobs.RawJobDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pattern *regexp.Regexp
	if query.JobNameFilter != "" {
		p, err := regexp.Compile("(?i)" + query.JobNameFilter)
		if err != nil {
			return nil, err
		}
		pattern = p
	}

	var out []jobs.RawJobDocument
	for _, doc := range s.docs {
		if pattern != nil && !pattern.MatchString(doc.Header.JobName) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// Len reports the number of stored documents.
func (s *BronzeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// SilverStore is an in-memory jobs.SilverStore that assigns surrogate ids
// sequentially and records every written row for assertions.
type SilverStore struct {
	mu     sync.Mutex
	nextID int64

	SchemaEnsured    bool
	SalaryTypeSeeded bool

	Companies   map[string]jobs.CompanyRow
	Jobs        map[string]jobs.JobRow
	jobUIDs     map[string]int64
	JobDetails  map[int64]jobs.JobDetailRow
	Welfare     map[int64]jobs.WelfareRow
	Skills      []jobs.SkillRow
	Specialties []jobs.SpecialtyRow
	Majors      []jobs.MajorRow
	Categories  []jobs.CategoryRow
	Languages   []jobs.LanguageRow

	// FailOn makes the named operation return an error, for abort-path tests.
	FailOn string
	Err    error
}

// NewSilverStore returns an empty in-memory silver store.
func NewSilverStore() *SilverStore {
	return &SilverStore{
		nextID:     0,
		Companies:  make(map[string]jobs.CompanyRow),
		Jobs:       make(map[string]jobs.JobRow),
		jobUIDs:    make(map[string]int64),
		JobDetails: make(map[int64]jobs.JobDetailRow),
		Welfare:    make(map[int64]jobs.WelfareRow),
	}
}

func (s *SilverStore) fail(op string) error {
	if s.FailOn == op {
		if s.Err != nil {
			return s.Err
		}
		return &opError{op: op}
	}
	return nil
}

type opError struct{ op string }

func (e *opError) Error() string { return "silver store: forced failure on " + e.op }

// EnsureSchema marks the schema as created.
func (s *SilverStore) EnsureSchema(context.Context) error {
	if err := s.fail("EnsureSchema"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SchemaEnsured = true
	return nil
}

// SeedSalaryTypes marks the reference data as seeded.
func (s *SilverStore) SeedSalaryTypes(context.Context) error {
	if err := s.fail("SeedSalaryTypes"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SalaryTypeSeeded = true
	return nil
}

// UpsertCompanies stores cust_info rows keyed by cust_no.
func (s *SilverStore) UpsertCompanies(_ context.Context, rows []jobs.CompanyRow) error {
	if err := s.fail("UpsertCompanies"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.Companies[row.CustNo] = row
	}
	return nil
}

// UpsertJobs stores dim_job rows, assigning a surrogate id on first insert
// and keeping it stable on re-upsert.
func (s *SilverStore) UpsertJobs(_ context.Context, rows []jobs.JobRow) error {
	if err := s.fail("UpsertJobs"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if _, exists := s.jobUIDs[row.JobID]; !exists {
			s.nextID++
			s.jobUIDs[row.JobID] = s.nextID
		}
		s.Jobs[row.JobID] = row
	}
	return nil
}

// JobKeyMap returns the surrogate ids assigned by UpsertJobs.
func (s *SilverStore) JobKeyMap(_ context.Context, jobIDs []string) (jobs.KeyMap, error) {
	if err := s.fail("JobKeyMap"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keyMap := make(jobs.KeyMap, len(jobIDs))
	for _, id := range jobIDs {
		if uid, ok := s.jobUIDs[id]; ok {
			keyMap[id] = uid
		}
	}
	return keyMap, nil
}

// UpsertJobDetails stores job_detail rows keyed by surrogate id.
func (s *SilverStore) UpsertJobDetails(_ context.Context, rows []jobs.JobDetailRow) error {
	if err := s.fail("UpsertJobDetails"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.JobDetails[row.JobUID] = row
	}
	return nil
}

// UpsertWelfare stores welfare rows keyed by surrogate id.
func (s *SilverStore) UpsertWelfare(_ context.Context, rows []jobs.WelfareRow) error {
	if err := s.fail("UpsertWelfare"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.Welfare[row.JobUID] = row
	}
	return nil
}

// UpsertSkills appends bridge rows, dropping composite-key duplicates.
func (s *SilverStore) UpsertSkills(_ context.Context, rows []jobs.SkillRow) error {
	if err := s.fail("UpsertSkills"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if !containsPair(s.Skills, row.JobUID, row.SkillName, func(r jobs.SkillRow) (int64, string) { return r.JobUID, r.SkillName }) {
			s.Skills = append(s.Skills, row)
		}
	}
	return nil
}

// UpsertSpecialties appends bridge rows.
func (s *SilverStore) UpsertSpecialties(_ context.Context, rows []jobs.SpecialtyRow) error {
	if err := s.fail("UpsertSpecialties"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if !containsPair(s.Specialties, row.JobUID, row.SpecialtyName, func(r jobs.SpecialtyRow) (int64, string) { return r.JobUID, r.SpecialtyName }) {
			s.Specialties = append(s.Specialties, row)
		}
	}
	return nil
}

// UpsertMajors appends bridge rows.
func (s *SilverStore) UpsertMajors(_ context.Context, rows []jobs.MajorRow) error {
	if err := s.fail("UpsertMajors"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if !containsPair(s.Majors, row.JobUID, row.MajorName, func(r jobs.MajorRow) (int64, string) { return r.JobUID, r.MajorName }) {
			s.Majors = append(s.Majors, row)
		}
	}
	return nil
}

// UpsertCategories appends bridge rows.
func (s *SilverStore) UpsertCategories(_ context.Context, rows []jobs.CategoryRow) error {
	if err := s.fail("UpsertCategories"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if !containsPair(s.Categories, row.JobUID, row.CategoryName, func(r jobs.CategoryRow) (int64, string) { return r.JobUID, r.CategoryName }) {
			s.Categories = append(s.Categories, row)
		}
	}
	return nil
}

// UpsertLanguages appends bridge rows, replacing proficiency on conflict.
func (s *SilverStore) UpsertLanguages(_ context.Context, rows []jobs.LanguageRow) error {
	if err := s.fail("UpsertLanguages"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		replaced := false
		for i, existing := range s.Languages {
			if existing.JobUID == row.JobUID && existing.Language == row.Language {
				s.Languages[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			s.Languages = append(s.Languages, row)
		}
	}
	return nil
}

// UID returns the surrogate id assigned to a job id, or zero.
func (s *SilverStore) UID(jobID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobUIDs[jobID]
}

func containsPair[T any](rows []T, uid int64, name string, key func(T) (int64, string)) bool {
	for _, row := range rows {
		u, n := key(row)
		if u == uid && strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
