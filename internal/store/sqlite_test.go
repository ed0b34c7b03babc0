package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coterie-labs/experiment-console/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteTier {
	t.Helper()
	tier, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tier.Close() })
	return tier
}

func sampleExperiment(id string) model.Experiment {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Experiment{
		ID:     id,
		Name:   "Button Color",
		Status: model.StatusDraft,
		Targeting: model.Targeting{
			Conditions:   []model.TargetingCondition{{Type: model.ConditionUser, Attribute: "gate", Operator: model.OpEquals, Value: "beta"}},
			Environments: []string{"production"},
		},
		Variations: []model.Variation{
			{ID: "var-1", Name: "Control", Weight: 50},
			{ID: "var-2", Name: "Treatment", Code: "x=1;", Weight: 50},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteTierCRUD(t *testing.T) {
	ctx := context.Background()
	tier := newTestSQLite(t)

	_, err := tier.Get(ctx, "exp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	exp := sampleExperiment("exp-1")
	require.NoError(t, tier.Put(ctx, exp))

	got, err := tier.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, exp.Name, got.Name)
	assert.Equal(t, exp.Variations, got.Variations)
	assert.Equal(t, exp.Targeting, got.Targeting)

	all, err := tier.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, tier.Delete(ctx, "exp-1"))
	_, err = tier.Get(ctx, "exp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing record is not an error.
	assert.NoError(t, tier.Delete(ctx, "exp-1"))
}

func TestSQLiteTierPutReplaces(t *testing.T) {
	ctx := context.Background()
	tier := newTestSQLite(t)

	exp := sampleExperiment("exp-1")
	require.NoError(t, tier.Put(ctx, exp))

	exp.Name = "Renamed"
	require.NoError(t, tier.Put(ctx, exp))

	got, err := tier.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	all, err := tier.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteTierSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")

	tier, err := NewSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, tier.Put(ctx, sampleExperiment("exp-1")))
	require.NoError(t, tier.Close())

	reopened, err := NewSQLite(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Button Color", got.Name)
}
