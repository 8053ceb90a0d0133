package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjma/job-market-pipeline/internal/jobs"
	"github.com/tjma/job-market-pipeline/internal/pipeline"
	"github.com/tjma/job-market-pipeline/internal/storage/memory"
)

type keywordRecorder struct {
	keywords []string
}

func (h *keywordRecorder) Harvest(_ context.Context, keyword, _ string, _ int) (<-chan jobs.HarvestItem, error) {
	h.keywords = append(h.keywords, keyword)
	out := make(chan jobs.HarvestItem)
	close(out)
	return out, nil
}

func TestNewRequiresKeywords(t *testing.T) {
	_, err := New(nil, "@every 6h", nil, "台北市", 5, nil)
	require.Error(t, err)
}

func TestRunCycleHarvestsEveryKeyword(t *testing.T) {
	recorder := &keywordRecorder{}
	orch := pipeline.New(recorder, memory.NewBronzeStore(), nil, nil)
	s, err := New(orch, "@every 6h", []string{"golang", "python"}, "台北市", 5, nil)
	require.NoError(t, err)

	s.runCycle(context.Background())
	assert.Equal(t, []string{"golang", "python"}, recorder.keywords)
}

func TestRunCycleSkipsWhenContextDone(t *testing.T) {
	recorder := &keywordRecorder{}
	orch := pipeline.New(recorder, memory.NewBronzeStore(), nil, nil)
	s, err := New(orch, "@every 6h", []string{"golang"}, "台北市", 5, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runCycle(ctx)
	assert.Empty(t, recorder.keywords)
}

func TestStartRejectsBadSpec(t *testing.T) {
	recorder := &keywordRecorder{}
	orch := pipeline.New(recorder, memory.NewBronzeStore(), nil, nil)
	s, err := New(orch, "not a cron spec", []string{"golang"}, "台北市", 5, nil)
	require.NoError(t, err)

	require.Error(t, s.Start(context.Background()))
}

func TestStartAndStop(t *testing.T) {
	recorder := &keywordRecorder{}
	orch := pipeline.New(recorder, memory.NewBronzeStore(), nil, nil)
	s, err := New(orch, "@every 6h", []string{"golang"}, "台北市", 5, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
