// Package harvester discovers job listings via the source's paginated search
// API and fetches each listing's sanitized detail payload.
package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/dedup"
	"github.com/tjma/job-market-pipeline/internal/jobs"
)

// maxPageSize is enforced by the upstream API: larger values are rejected
// with a 422.
const maxPageSize = 30

// ErrPageSizeTooLarge reports a pagesize above the upstream cap.
var ErrPageSizeTooLarge = fmt.Errorf("pagesize must be <= %d", maxPageSize)

var jobLinkPattern = regexp.MustCompile(`/job/(\w+)`)

// noiseFields are stripped from the top level of every detail payload before
// it is staged in bronze.
var noiseFields = []string{
	"corpImageRight",
	"environmentPic",
	"switch",
	"custLogo",
	"postalCode",
	"closeDate",
	"reportUrl",
	"industryNo",
	"chinaCorp",
	"interactionRecord",
}

// Known keys per payload object. Anything else lands in the matching Rest
// catch-all so the bronze capture stays faithful to the source.
var (
	documentFields = fieldSet("header", "condition", "jobDetail", "welfare", "industry", "employees")
	headerFields   = fieldSet("jobName", "custName", "custNo", "custUrl", "appearDate")
	conditionFields = fieldSet(
		"workExp", "edu", "major", "skill", "specialty", "language", "other",
	)
	jobDetailFields = fieldSet(
		"jobDescription", "jobCategory", "workType", "salary", "salaryMin",
		"salaryMax", "salaryType", "addressArea", "addressRegion",
		"addressDetail", "workPeriod", "vacationPolicy", "needEmp",
		"manageResp", "businessTrip", "remoteWork",
	)
	welfareFields = fieldSet("welfare", "tag", "legalTag")
)

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Config controls harvester behavior.
type Config struct {
	SearchURL      string
	DetailURL      string
	Referer        string
	PageSize       int
	DetailDelayMin time.Duration
	DetailDelayMax time.Duration
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
}

// Harvester implements jobs.Harvester against the upstream search/detail API.
type Harvester struct {
	cfg     Config
	fetcher Fetcher
	sleeper Sleeper
	seen    dedup.Cache
	logger  *zap.Logger
}

// New constructs a Harvester. seen may be nil to disable the recently-seen
// skip. A zero PageSize defaults to the upstream maximum.
func New(cfg Config, fetcher Fetcher, sleeper Sleeper, seen dedup.Cache, logger *zap.Logger) (*Harvester, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.SearchURL == "" || cfg.DetailURL == "" {
		return nil, fmt.Errorf("search and detail URLs are required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = maxPageSize
	}
	if cfg.PageSize > maxPageSize {
		return nil, fmt.Errorf("%w: got %d", ErrPageSizeTooLarge, cfg.PageSize)
	}
	if sleeper == nil {
		sleeper = RandomSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		cfg:     cfg,
		fetcher: fetcher,
		sleeper: sleeper,
		seen:    seen,
		logger:  logger,
	}, nil
}

// Harvest yields sanitized raw job documents page by page. The channel closes
// when maxPages is exhausted, a page returns zero listings, the context is
// canceled, or a terminal item (Err set) is delivered after a page-level
// discovery failure.
func (h *Harvester) Harvest(ctx context.Context, keyword, area string, maxPages int) (<-chan jobs.HarvestItem, error) {
	areaCode, err := ResolveArea(area)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		return nil, fmt.Errorf("max_pages must be > 0, got %d", maxPages)
	}

	out := make(chan jobs.HarvestItem, 1)
	go func() {
		defer close(out)
		h.logger.Info("harvest started",
			zap.String("keyword", keyword),
			zap.String("area_code", areaCode),
			zap.Int("max_pages", maxPages),
		)

		for page := 1; page <= maxPages; page++ {
			if ctx.Err() != nil {
				return
			}

			listings, err := h.discover(ctx, keyword, areaCode, page)
			if err != nil {
				// Page-level failures abort the run; detail-level
				// failures only skip the item.
				h.yield(ctx, out, jobs.HarvestItem{
					Err: fmt.Errorf("discover page %d: %w", page, err),
				})
				return
			}
			if len(listings) == 0 {
				h.logger.Info("no more listings", zap.Int("page", page))
				return
			}
			h.logger.Debug("page discovered", zap.Int("page", page), zap.Int("listings", len(listings)))

			for _, listing := range listings {
				if ctx.Err() != nil {
					return
				}
				item := h.processListing(ctx, listing)
				if !h.yield(ctx, out, item) {
					return
				}
				if item.Outcome == jobs.OutcomeFetched {
					h.sleeper.Sleep(ctx, h.cfg.DetailDelayMin, h.cfg.DetailDelayMax)
				}
			}

			h.sleeper.Sleep(ctx, h.cfg.PageDelayMin, h.cfg.PageDelayMax)
		}
	}()
	return out, nil
}

func (h *Harvester) yield(ctx context.Context, out chan<- jobs.HarvestItem, item jobs.HarvestItem) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- item:
		return true
	}
}

type searchListing struct {
	JobName  string `json:"jobName"`
	CustName string `json:"custName"`
	Link     struct {
		Job string `json:"job"`
	} `json:"link"`
}

func (h *Harvester) discover(ctx context.Context, keyword, areaCode string, page int) ([]searchListing, error) {
	params := url.Values{}
	params.Set("area", areaCode)
	params.Set("jobsource", "joblist_search")
	params.Set("keyword", keyword)
	params.Set("mode", "s")
	params.Set("page", strconv.Itoa(page))
	params.Set("pagesize", strconv.Itoa(h.cfg.PageSize))

	headers := http.Header{}
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Referer", fmt.Sprintf(
		"%s?area=%s&jobsource=joblist_search&keyword=%s&mode=s&page=%d",
		h.cfg.Referer, areaCode, url.QueryEscape(keyword), page,
	))

	resp, err := h.fetcher.Fetch(ctx, FetchRequest{
		URL:     h.cfg.SearchURL + "?" + params.Encode(),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []searchListing `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return envelope.Data, nil
}

func (h *Harvester) processListing(ctx context.Context, listing searchListing) jobs.HarvestItem {
	match := jobLinkPattern.FindStringSubmatch(listing.Link.Job)
	if match == nil {
		h.logger.Warn("listing has no job link",
			zap.String("job_name", listing.JobName),
			zap.String("cust_name", listing.CustName),
		)
		return jobs.HarvestItem{
			Outcome: jobs.OutcomeSkippedLink,
			Reason:  fmt.Sprintf("link %q does not match the job id pattern", listing.Link.Job),
		}
	}
	jobID := match[1]

	if h.seen != nil {
		seen, err := h.seen.Seen(ctx, jobID)
		if err != nil {
			h.logger.Warn("seen-cache lookup failed", zap.String("job_id", jobID), zap.Error(err))
		} else if seen {
			return jobs.HarvestItem{Outcome: jobs.OutcomeSkippedSeen, JobID: jobID}
		}
	}

	detailURL := h.cfg.DetailURL + "/" + jobID
	headers := http.Header{}
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Referer", detailURL)

	resp, err := h.fetcher.Fetch(ctx, FetchRequest{URL: detailURL, Headers: headers})
	if err != nil {
		h.logger.Warn("detail fetch failed", zap.String("job_id", jobID), zap.Error(err))
		return jobs.HarvestItem{
			Outcome: jobs.OutcomeSkippedFetch,
			JobID:   jobID,
			Reason:  err.Error(),
		}
	}

	doc, err := sanitizeDetail(jobID, resp.Body)
	if err != nil {
		h.logger.Warn("detail payload rejected", zap.String("job_id", jobID), zap.Error(err))
		return jobs.HarvestItem{
			Outcome: jobs.OutcomeSkippedParse,
			JobID:   jobID,
			Reason:  err.Error(),
		}
	}
	return jobs.HarvestItem{Outcome: jobs.OutcomeFetched, JobID: jobID, Doc: doc}
}

// sanitizeDetail strips the fixed noise fields from the detail payload and
// decodes it into the typed bronze document.
func sanitizeDetail(jobID string, body []byte) (jobs.RawJobDocument, error) {
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return jobs.RawJobDocument{}, fmt.Errorf("decode detail response: %w", err)
	}
	if envelope.Data == nil {
		return jobs.RawJobDocument{}, fmt.Errorf("detail response has no data object")
	}

	payload := envelope.Data
	for _, field := range noiseFields {
		delete(payload, field)
	}
	if header, ok := payload["header"].(map[string]any); ok {
		delete(header, "corpImageTop")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return jobs.RawJobDocument{}, fmt.Errorf("re-encode detail payload: %w", err)
	}
	var doc jobs.RawJobDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return jobs.RawJobDocument{}, fmt.Errorf("decode detail payload: %w", err)
	}
	doc.JobID = jobID
	doc.Rest = restFields(payload, documentFields)
	if m, ok := payload["header"].(map[string]any); ok {
		doc.Header.Rest = restFields(m, headerFields)
	}
	if m, ok := payload["condition"].(map[string]any); ok {
		doc.Condition.Rest = restFields(m, conditionFields)
	}
	if m, ok := payload["jobDetail"].(map[string]any); ok {
		doc.JobDetail.Rest = restFields(m, jobDetailFields)
	}
	if m, ok := payload["welfare"].(map[string]any); ok {
		doc.Welfare.Rest = restFields(m, welfareFields)
	}
	return doc, nil
}

// restFields keeps payload fields outside the known set so nothing the source
// sends is dropped on the way into bronze.
func restFields(payload map[string]any, known map[string]struct{}) map[string]any {
	var rest map[string]any
	for k, v := range payload {
		if _, ok := known[k]; ok {
			continue
		}
		if rest == nil {
			rest = make(map[string]any)
		}
		rest[k] = v
	}
	return rest
}
