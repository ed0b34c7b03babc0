package model

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an experiment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ConditionType categorizes what a targeting condition matches against.
type ConditionType string

const (
	ConditionUser     ConditionType = "user"
	ConditionDevice   ConditionType = "device"
	ConditionLocation ConditionType = "location"
	ConditionCustom   ConditionType = "custom"
)

// Operator is the comparison applied by a targeting condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpMatches     Operator = "matches"
)

// TargetingCondition is an opaque predicate evaluated by the client SDK.
// Conditions have no referential integrity against anything else.
type TargetingCondition struct {
	Type      ConditionType `json:"type"`
	Attribute string        `json:"attribute"`
	Operator  Operator      `json:"operator"`
	Value     any           `json:"value"`
}

// Targeting bundles conditions with the environments an experiment runs in.
// Environments are free-form names; the editor offers
// development/staging/production but the data layer enforces no canonical list.
type Targeting struct {
	Conditions   []TargetingCondition `json:"conditions"`
	Environments []string             `json:"environments"`
}

// Variation is one arm of an experiment: a named JS payload with a traffic
// weight. Weights across an experiment's variations sum to exactly 100.
type Variation struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Weight int    `json:"weight"`
}

// Experiment is the central entity. ID is the primary identity in the local
// storage tiers; ExternalID is the identifier assigned by the experimentation
// platform once published, and may equal ID when the record was created
// through a direct publish.
type Experiment struct {
	ID          string      `json:"id"`
	ExternalID  string      `json:"externalId,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      Status      `json:"status"`
	Targeting   Targeting   `json:"targeting"`
	Variations  []Variation `json:"variations"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	// ExternalLayerName is the platform-side grouping key, when known.
	ExternalLayerName string `json:"externalLayerName,omitempty"`
	// ImportedFromExternal marks records whose authoritative source is the
	// platform rather than local authoring.
	ImportedFromExternal bool `json:"importedFromExternal"`
}

// Patch is a partial update applied over an existing experiment. Nil fields
// retain the prior value.
type Patch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *Status      `json:"status,omitempty"`
	Targeting   *Targeting   `json:"targeting,omitempty"`
	Variations  *[]Variation `json:"variations,omitempty"`
}

// NewVariationID allocates a fresh variation identifier.
func NewVariationID() string {
	return "var-" + uuid.New().String()[:8]
}

// NewLocalID allocates a fresh locally-scoped experiment identifier.
func NewLocalID() string {
	return "exp-" + uuid.New().String()
}

// DefaultVariations returns the 50/50 Control/Treatment pair seeded whenever
// an experiment would otherwise have no variations. Treatment carries the
// legacy single-code payload when one exists.
func DefaultVariations(code string) []Variation {
	return []Variation{
		{ID: NewVariationID(), Name: "Control", Code: "", Weight: 50},
		{ID: NewVariationID(), Name: "Treatment", Code: code, Weight: 50},
	}
}

// Apply merges p over e, returning the updated experiment. UpdatedAt is bumped
// unconditionally; the caller decides whether the merge is permitted.
func (p Patch) Apply(e Experiment, now time.Time) Experiment {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Targeting != nil {
		e.Targeting = *p.Targeting
	}
	if p.Variations != nil {
		e.Variations = *p.Variations
	}
	e.UpdatedAt = now.UTC()
	return e
}

// TouchesProtected reports whether the patch edits fields that are frozen
// once an experiment is archived (name, description, targeting, variations).
// Status changes are judged separately: archived is terminal.
func (p Patch) TouchesProtected() bool {
	return p.Name != nil || p.Description != nil || p.Targeting != nil || p.Variations != nil
}

// GateValue returns the targeting-gate reference carried by a user/gate
// condition, or "" when none is present.
func (t Targeting) GateValue() string {
	for _, c := range t.Conditions {
		if c.Type == ConditionUser && c.Attribute == "gate" {
			if s, ok := c.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
