package store

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coterie-labs/experiment-console/internal/model"
	"github.com/coterie-labs/experiment-console/internal/resolver"
)

// brokenTier fails every operation, standing in for an unreachable remote.
type brokenTier struct{}

func (brokenTier) Name() string { return "broken" }
func (brokenTier) Get(context.Context, string) (*model.Experiment, error) {
	return nil, eris.New("connection refused")
}
func (brokenTier) GetAll(context.Context) ([]model.Experiment, error) {
	return nil, eris.New("connection refused")
}
func (brokenTier) Put(context.Context, model.Experiment) error {
	return eris.New("connection refused")
}
func (brokenTier) Delete(context.Context, string) error {
	return eris.New("connection refused")
}

func newTestFallback(remote Tier) (*FallbackStore, *MemoryTier) {
	mem := NewMemory()
	return NewFallback(remote, nil, mem, resolver.NewAliasIndex(), zap.NewNop()), mem
}

func TestFallbackGetPrefixVariations(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		storedID  string
		requestID string
	}{
		{name: "exact", storedID: "exp-1", requestID: "exp-1"},
		{name: "add_local_prefix", storedID: "exp-1234", requestID: "1234"},
		{name: "add_external_prefix", storedID: "statsig-1234", requestID: "1234"},
		{name: "strip_legacy_prefix", storedID: "1234", requestID: "exp-statsig-1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, mem := newTestFallback(nil)
			require.NoError(t, mem.Put(ctx, model.Experiment{ID: tt.storedID, Name: "n"}))

			got, err := fs.Get(ctx, tt.requestID)
			require.NoError(t, err)
			assert.Equal(t, tt.storedID, got.ID)
		})
	}
}

func TestFallbackGetSecondaryExternalIDScan(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(nil)

	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "p1", ExternalID: "x1"}))

	got, err := fs.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}

func TestFallbackGetRemoteFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(brokenTier{})

	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "exp-55"}))

	// Remote get throws; the volatile tier holds the record under a prefix
	// variation of the requested id.
	got, err := fs.Get(ctx, "55")
	require.NoError(t, err)
	assert.Equal(t, "exp-55", got.ID)
}

func TestFallbackGetMissEverywhere(t *testing.T) {
	fs, _ := newTestFallback(nil)

	_, err := fs.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackGetAliasBeatsPrefixGuessing(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(nil)

	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "exp-local", ExternalID: "plat-99"}))
	require.NoError(t, fs.Aliases().Bind("exp-local", "plat-99"))

	got, err := fs.Get(ctx, "plat-99")
	require.NoError(t, err)
	assert.Equal(t, "exp-local", got.ID)
}

func TestFallbackPutSurvivesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(brokenTier{})

	err := fs.Put(ctx, model.Experiment{ID: "exp-1", Name: "n"})
	require.NoError(t, err, "write succeeds once any tier accepts it")
	assert.Equal(t, 1, mem.Len())

	got, err := fs.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "n", got.Name)
}

func TestFallbackGetAllRemoteFailureUsesLocal(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(brokenTier{})

	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "exp-1"}))
	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "exp-2"}))

	exps, err := fs.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, exps, 2)
}

func TestFallbackDeleteRemovesLocallyDespiteRemoteFailure(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFallback(brokenTier{})

	require.NoError(t, mem.Put(ctx, model.Experiment{ID: "exp-1"}))
	require.NoError(t, fs.Delete(ctx, "exp-1"))
	assert.Zero(t, mem.Len())

	_, err := fs.Get(ctx, "exp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
