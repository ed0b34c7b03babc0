package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusDraft.Valid())
	assert.True(t, StatusPublished.Valid())
	assert.True(t, StatusArchived.Valid())
	assert.False(t, Status("running").Valid())
	assert.False(t, Status("").Valid())
}

func TestPatchApply(t *testing.T) {
	base := Experiment{
		ID:          "exp-1",
		Name:        "Original",
		Description: "desc",
		Status:      StatusDraft,
		Variations:  []Variation{{ID: "v1", Name: "Control", Weight: 100}},
	}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	name := "Renamed"
	status := StatusPublished
	out := Patch{Name: &name, Status: &status}.Apply(base, now)

	assert.Equal(t, "Renamed", out.Name)
	assert.Equal(t, StatusPublished, out.Status)
	assert.Equal(t, "desc", out.Description, "nil fields keep prior values")
	assert.Equal(t, base.Variations, out.Variations)
	assert.Equal(t, now, out.UpdatedAt)
}

func TestPatchTouchesProtected(t *testing.T) {
	name := "n"
	status := StatusArchived
	vars := []Variation{}

	assert.True(t, Patch{Name: &name}.TouchesProtected())
	assert.True(t, Patch{Variations: &vars}.TouchesProtected())
	assert.True(t, Patch{Targeting: &Targeting{}}.TouchesProtected())
	assert.False(t, Patch{Status: &status}.TouchesProtected(), "status judged separately")
	assert.False(t, Patch{}.TouchesProtected())
}

func TestGateValue(t *testing.T) {
	targeting := Targeting{Conditions: []TargetingCondition{
		{Type: ConditionDevice, Attribute: "gate", Operator: OpEquals, Value: "nope"},
		{Type: ConditionUser, Attribute: "country", Operator: OpEquals, Value: "US"},
		{Type: ConditionUser, Attribute: "gate", Operator: OpEquals, Value: "beta_users"},
	}}
	assert.Equal(t, "beta_users", targeting.GateValue())

	assert.Empty(t, Targeting{}.GateValue())

	// Non-string gate values are ignored rather than stringified.
	bad := Targeting{Conditions: []TargetingCondition{
		{Type: ConditionUser, Attribute: "gate", Operator: OpEquals, Value: 7},
	}}
	assert.Empty(t, bad.GateValue())
}

func TestDefaultVariations(t *testing.T) {
	vars := DefaultVariations("x = 1;")
	require.Len(t, vars, 2)

	assert.Equal(t, "Control", vars[0].Name)
	assert.Empty(t, vars[0].Code)
	assert.Equal(t, "Treatment", vars[1].Name)
	assert.Equal(t, "x = 1;", vars[1].Code)
	assert.Equal(t, 100, vars[0].Weight+vars[1].Weight)
	assert.NotEqual(t, vars[0].ID, vars[1].ID)
}

func TestNewIDs(t *testing.T) {
	assert.Contains(t, NewLocalID(), "exp-")
	assert.Contains(t, NewVariationID(), "var-")
	assert.NotEqual(t, NewLocalID(), NewLocalID())
}
