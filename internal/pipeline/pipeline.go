// Package pipeline sequences the harvest-to-bronze and bronze-to-silver
// stages. It is the only component that knows about every collaborator; the
// stores and transforms only see their own contracts.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/dedup"
	"github.com/tjma/job-market-pipeline/internal/export"
	"github.com/tjma/job-market-pipeline/internal/jobs"
	"github.com/tjma/job-market-pipeline/internal/metrics"
	"github.com/tjma/job-market-pipeline/internal/normalizer"
)

const defaultBatchSize = 100

// Orchestrator wires the harvester and the two repositories together.
type Orchestrator struct {
	harvester jobs.Harvester
	bronze    jobs.BronzeStore
	silver    jobs.SilverStore
	seen      dedup.Cache
	batchSize int
	logger    *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize overrides the bronze flush threshold.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithSeenCache enables marking harvested ids after they reach bronze so
// scheduled re-runs skip them.
func WithSeenCache(cache dedup.Cache) Option {
	return func(o *Orchestrator) { o.seen = cache }
}

// New constructs an Orchestrator. The silver store may be nil when only the
// bronze stage will run.
func New(harvester jobs.Harvester, bronze jobs.BronzeStore, silver jobs.SilverStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		harvester: harvester,
		bronze:    bronze,
		silver:    silver,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BronzeSummary aggregates one bronze-stage run.
type BronzeSummary struct {
	Outcomes map[jobs.HarvestOutcome]int
	Flushes  int
	Write    jobs.WriteSummary
}

// RunBronze streams harvester output into fixed-size batches and upserts each
// batch into the bronze store. A flush failure is fatal: bronze is idempotent,
// so the recovery path is an operator re-run, not partial continuation.
func (o *Orchestrator) RunBronze(ctx context.Context, keyword, area string, maxPages int) (BronzeSummary, error) {
	summary := BronzeSummary{Outcomes: make(map[jobs.HarvestOutcome]int)}

	items, err := o.harvester.Harvest(ctx, keyword, area, maxPages)
	if err != nil {
		return summary, fmt.Errorf("start harvest: %w", err)
	}

	buffer := make([]jobs.RawJobDocument, 0, o.batchSize)
	var terminal error

	for item := range items {
		if item.Err != nil {
			// Items yielded before the terminal failure are still valid;
			// flush them before surfacing the error.
			terminal = item.Err
			break
		}
		summary.Outcomes[item.Outcome]++
		metrics.ObserveHarvestItem(string(item.Outcome))

		if item.Outcome != jobs.OutcomeFetched {
			o.logger.Debug("listing skipped",
				zap.String("outcome", string(item.Outcome)),
				zap.String("job_id", item.JobID),
				zap.String("reason", item.Reason),
			)
			continue
		}

		buffer = append(buffer, item.Doc)
		if len(buffer) >= o.batchSize {
			if err := o.flush(ctx, buffer, &summary); err != nil {
				return summary, err
			}
			buffer = buffer[:0]
		}
	}

	if len(buffer) > 0 {
		if err := o.flush(ctx, buffer, &summary); err != nil {
			return summary, err
		}
	}

	o.logger.Info("bronze stage completed",
		zap.Int("fetched", summary.Outcomes[jobs.OutcomeFetched]),
		zap.Int("flushes", summary.Flushes),
		zap.Int("matched", summary.Write.Matched),
		zap.Int("upserted", summary.Write.Upserted),
		zap.Int("failed", summary.Write.Failed),
	)

	if terminal != nil {
		return summary, fmt.Errorf("harvest aborted: %w", terminal)
	}
	return summary, nil
}

func (o *Orchestrator) flush(ctx context.Context, docs []jobs.RawJobDocument, summary *BronzeSummary) error {
	write, err := o.bronze.UpsertBatch(ctx, docs)
	summary.Write.Matched += write.Matched
	summary.Write.Upserted += write.Upserted
	summary.Write.Failed += write.Failed
	if err != nil {
		metrics.ObserveBronzeFlush("error", write.Matched, write.Upserted, write.Failed)
		return fmt.Errorf("bronze flush of %d documents: %w", len(docs), err)
	}
	summary.Flushes++
	metrics.ObserveBronzeFlush("ok", write.Matched, write.Upserted, write.Failed)
	o.logger.Debug("bronze batch flushed", zap.Int("documents", len(docs)))

	// Ids are marked only after the flush succeeds so a failed run re-fetches
	// everything on retry.
	if o.seen != nil {
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.JobID)
		}
		if err := o.seen.Mark(ctx, ids); err != nil {
			o.logger.Warn("failed to mark harvested ids", zap.Error(err))
		}
	}
	return nil
}

// RunSilver reads bronze documents, normalizes them, and writes the star
// schema in strict two-phase order: companies, jobs, then the surrogate-key
// re-select, then every dependent table. Any failure aborts the remaining
// stages; upsert idempotency makes a re-run the recovery path.
func (o *Orchestrator) RunSilver(ctx context.Context, jobNameFilter string) error {
	if o.silver == nil {
		return fmt.Errorf("silver store is not configured")
	}

	if err := o.silver.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure silver schema: %w", err)
	}
	if err := o.silver.SeedSalaryTypes(ctx); err != nil {
		return fmt.Errorf("seed salary types: %w", err)
	}

	docs, err := o.bronze.Select(ctx, jobs.BronzeQuery{JobNameFilter: jobNameFilter})
	if err != nil {
		return fmt.Errorf("select bronze documents: %w", err)
	}
	if len(docs) == 0 {
		o.logger.Warn("no bronze documents matched", zap.String("filter", jobNameFilter))
		return nil
	}
	o.logger.Info("silver stage started", zap.Int("documents", len(docs)))

	companies, err := normalizer.Companies(docs)
	if err != nil {
		return fmt.Errorf("normalize companies: %w", err)
	}
	if err := o.silver.UpsertCompanies(ctx, companies); err != nil {
		return fmt.Errorf("upsert companies: %w", err)
	}

	jobRows, err := normalizer.Jobs(docs)
	if err != nil {
		return fmt.Errorf("normalize jobs: %w", err)
	}
	if err := o.silver.UpsertJobs(ctx, jobRows); err != nil {
		return fmt.Errorf("upsert jobs: %w", err)
	}

	// The mapping must be re-fetched after the dim_job upsert; reusing an
	// older mapping would mis-link every dependent row.
	jobIDs := make([]string, 0, len(jobRows))
	for _, row := range jobRows {
		jobIDs = append(jobIDs, row.JobID)
	}
	keyMap, err := o.silver.JobKeyMap(ctx, jobIDs)
	if err != nil {
		return fmt.Errorf("fetch surrogate key map: %w", err)
	}

	details, err := normalizer.JobDetails(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize job details: %w", err)
	}
	if err := o.silver.UpsertJobDetails(ctx, details); err != nil {
		return fmt.Errorf("upsert job details: %w", err)
	}

	welfare, err := normalizer.Welfare(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize welfare: %w", err)
	}
	if err := o.silver.UpsertWelfare(ctx, welfare); err != nil {
		return fmt.Errorf("upsert welfare: %w", err)
	}

	skills, err := normalizer.Skills(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize skills: %w", err)
	}
	if err := o.silver.UpsertSkills(ctx, skills); err != nil {
		return fmt.Errorf("upsert skills: %w", err)
	}

	specialties, err := normalizer.Specialties(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize specialties: %w", err)
	}
	if err := o.silver.UpsertSpecialties(ctx, specialties); err != nil {
		return fmt.Errorf("upsert specialties: %w", err)
	}

	majors, err := normalizer.Majors(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize majors: %w", err)
	}
	if err := o.silver.UpsertMajors(ctx, majors); err != nil {
		return fmt.Errorf("upsert majors: %w", err)
	}

	categories, err := normalizer.Categories(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize categories: %w", err)
	}
	if err := o.silver.UpsertCategories(ctx, categories); err != nil {
		return fmt.Errorf("upsert categories: %w", err)
	}

	languages, err := normalizer.Languages(docs, keyMap)
	if err != nil {
		return fmt.Errorf("normalize languages: %w", err)
	}
	if err := o.silver.UpsertLanguages(ctx, languages); err != nil {
		return fmt.Errorf("upsert languages: %w", err)
	}

	o.logger.Info("silver stage completed",
		zap.Int("companies", len(companies)),
		zap.Int("jobs", len(jobRows)),
		zap.Int("job_details", len(details)),
		zap.Int("skills", len(skills)),
		zap.Int("languages", len(languages)),
	)
	return nil
}

// RunExport reads bronze documents and writes the derived analytics artifacts
// as CSV files: both salary partitions, the title classifications, the
// exploded skill and specialty tags, and the company and job dimensions.
func (o *Orchestrator) RunExport(ctx context.Context, jobNameFilter, dir string) error {
	exporter, err := export.New(dir)
	if err != nil {
		return err
	}

	docs, err := o.bronze.Select(ctx, jobs.BronzeQuery{JobNameFilter: jobNameFilter})
	if err != nil {
		return fmt.Errorf("select bronze documents: %w", err)
	}
	if len(docs) == 0 {
		o.logger.Warn("no bronze documents matched", zap.String("filter", jobNameFilter))
		return nil
	}

	exact := normalizer.ExactSalaries(docs)
	negotiable := normalizer.NegotiableSalaries(docs)
	normalizer.SortSalaryRecords(exact)
	normalizer.SortSalaryRecords(negotiable)

	if _, err := exporter.WriteSalaries("exact", exact); err != nil {
		return err
	}
	if _, err := exporter.WriteSalaries("negotiable", negotiable); err != nil {
		return err
	}
	if _, err := exporter.WriteClassifications(normalizer.Classifications(docs)); err != nil {
		return err
	}
	if _, err := exporter.WriteTags("skills", normalizer.SkillRecords(docs)); err != nil {
		return err
	}
	if _, err := exporter.WriteTags("specialties", normalizer.SpecialtyRecords(docs)); err != nil {
		return err
	}

	companies, err := normalizer.Companies(docs)
	if err != nil {
		return fmt.Errorf("normalize companies: %w", err)
	}
	if _, err := exporter.WriteCompanies(companies); err != nil {
		return err
	}

	jobRows, err := normalizer.Jobs(docs)
	if err != nil {
		return fmt.Errorf("normalize jobs: %w", err)
	}
	if _, err := exporter.WriteJobs(jobRows); err != nil {
		return err
	}

	o.logger.Info("export completed",
		zap.String("dir", dir),
		zap.Int("documents", len(docs)),
		zap.Int("exact_salaries", len(exact)),
		zap.Int("negotiable_salaries", len(negotiable)),
	)
	return nil
}
