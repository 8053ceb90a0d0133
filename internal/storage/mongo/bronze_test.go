package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

func TestProjectionDocAllowList(t *testing.T) {
	t.Parallel()

	doc, err := projectionDoc(jobs.Projection{Include: []string{"header", "jobDetail"}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "header", Value: 1},
		{Key: "jobDetail", Value: 1},
	}, doc)
}

func TestProjectionDocDenyList(t *testing.T) {
	t.Parallel()

	doc, err := projectionDoc(jobs.Projection{Exclude: []string{"welfare"}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "welfare", Value: 0}}, doc)
}

func TestProjectionDocRejectsMixedLists(t *testing.T) {
	t.Parallel()

	_, err := projectionDoc(jobs.Projection{
		Include: []string{"header"},
		Exclude: []string{"welfare"},
	})
	require.Error(t, err)
}

func TestProjectionIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, jobs.Projection{}.IsZero())
	assert.False(t, jobs.Projection{Include: []string{"header"}}.IsZero())
	assert.False(t, jobs.Projection{Exclude: []string{"welfare"}}.IsZero())
}
