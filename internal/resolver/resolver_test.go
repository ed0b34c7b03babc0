package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coterie-labs/experiment-console/internal/model"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want []string
	}{
		{
			name: "bare_id",
			id:   "1234",
			want: []string{"1234", "exp-1234", "statsig-1234"},
		},
		{
			name: "local_prefix",
			id:   "exp-1234",
			want: []string{"exp-1234"},
		},
		{
			name: "external_prefix",
			id:   "statsig-1234",
			want: []string{"statsig-1234", "exp-statsig-1234"},
		},
		{
			name: "legacy_combined_prefix",
			id:   "exp-statsig-1234",
			want: []string{"exp-statsig-1234", "1234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(tt.id)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, got[0], "verbatim id probes first")
		})
	}
}

func TestFindByExternalID(t *testing.T) {
	records := []model.Experiment{
		{ID: "exp-a", ExternalID: "x1"},
		{ID: "exp-b"},
		{ID: "exp-c", ExternalID: "x1"},
	}

	match, dupes := FindByExternalID(records, "x1")
	require.NotNil(t, match)
	assert.Equal(t, "exp-a", match.ID, "first match wins")
	assert.Equal(t, 1, dupes)

	match, dupes = FindByExternalID(records, "nope")
	assert.Nil(t, match)
	assert.Zero(t, dupes)
}

func TestAliasIndex(t *testing.T) {
	idx := NewAliasIndex()

	require.NoError(t, idx.Bind("exp-1", "plat-9"))

	local, ok := idx.LocalFor("plat-9")
	require.True(t, ok)
	assert.Equal(t, "exp-1", local)

	ext, ok := idx.ExternalFor("exp-1")
	require.True(t, ok)
	assert.Equal(t, "plat-9", ext)

	// Rebinding the same pair is a no-op.
	require.NoError(t, idx.Bind("exp-1", "plat-9"))

	// A second record claiming the same external id is rejected.
	err := idx.Bind("exp-2", "plat-9")
	assert.ErrorIs(t, err, ErrAliasConflict)

	// A record may move to a new external id; the old binding is released.
	require.NoError(t, idx.Bind("exp-1", "plat-10"))
	_, ok = idx.LocalFor("plat-9")
	assert.False(t, ok)
	require.NoError(t, idx.Bind("exp-2", "plat-9"))

	idx.Unbind("exp-1")
	_, ok = idx.LocalFor("plat-10")
	assert.False(t, ok)
	_, ok = idx.ExternalFor("exp-1")
	assert.False(t, ok)
}

func TestAliasIndexEmptyIDs(t *testing.T) {
	idx := NewAliasIndex()
	assert.Error(t, idx.Bind("", "x"))
	assert.Error(t, idx.Bind("x", ""))
}
