// Package convert maps between the internal experiment representation and
// the Statsig console wire format. The mapping is pure and deliberately
// lossy on the round trip: variation ids are regenerated inbound and
// environments default to the fixed set, because the wire format carries
// neither.
package convert

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/coterie-labs/experiment-console/internal/model"
	"github.com/coterie-labs/experiment-console/pkg/statsig"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// Shape identifies how an inbound wire record describes its arms.
type Shape int

const (
	// ShapeGroups: experiment object with named groups, sizes and
	// parameter payloads.
	ShapeGroups Shape = iota
	// ShapeVariants: layer object with named variants, weights and nested
	// value payloads.
	ShapeVariants
	// ShapeNone: neither list present; a default 50/50 pair is synthesized.
	ShapeNone
)

// Classify reports which arm shape an inbound record carries. Groups win
// when both are present.
func Classify(ext statsig.Experiment) Shape {
	switch {
	case len(ext.Groups) > 0:
		return ShapeGroups
	case len(ext.Variants) > 0:
		return ShapeVariants
	default:
		return ShapeNone
	}
}

// Slug derives the group id emitted for a variation name: lowercased,
// spaces collapsed to underscores.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// ToStatsig builds the outbound wire payload for exp. Each variation maps
// to a group sized by its weight, with the JS payload embedded only when
// non-empty. The group whose name contains "control" (case-insensitive, or
// the first group when none does) is emitted as the designated baseline.
// A user/gate targeting condition becomes the platform targeting-gate
// reference. exp.ExternalID, when set, becomes the payload id so the call
// updates rather than creates.
func ToStatsig(exp model.Experiment) statsig.Experiment {
	groups := make([]statsig.Group, 0, len(exp.Variations))
	for _, v := range exp.Variations {
		g := statsig.Group{
			Name: v.Name,
			ID:   Slug(v.Name),
			Size: v.Weight,
		}
		if v.Code != "" {
			g.ParameterValues = map[string]any{statsig.PayloadCodeKey: v.Code}
		} else {
			g.ParameterValues = map[string]any{}
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		groups = append(groups, statsig.Group{
			Name:            "Control",
			ID:              "control",
			Size:            100,
			ParameterValues: map[string]any{},
		})
	}

	control := groups[0]
	for _, g := range groups {
		if strings.Contains(strings.ToLower(g.Name), "control") {
			control = g
			break
		}
	}

	out := statsig.Experiment{
		ID:             exp.ExternalID,
		Name:           exp.Name,
		Description:    exp.Description,
		IDType:         "userID",
		Groups:         groups,
		ControlGroupID: control.ID,
		Allocation:     100,
	}
	if gate := exp.Targeting.GateValue(); gate != "" {
		out.TargetingGateID = gate
	}
	return out
}

// FromStatsig builds a local experiment from an inbound wire record. The
// record's id becomes both the local id and the externalId; the result is
// flagged as imported so local edits know their authoritative source.
func FromStatsig(ext statsig.Experiment) model.Experiment {
	variations := extractVariations(ext)

	var conditions []model.TargetingCondition
	if gate := firstNonEmpty(ext.TargetingGate, ext.TargetingGateID); gate != "" {
		conditions = []model.TargetingCondition{{
			Type:      model.ConditionUser,
			Attribute: "gate",
			Operator:  model.OpEquals,
			Value:     gate,
		}}
	}

	modified := time.Now().UTC()
	if ext.LastModifiedTime > 0 {
		modified = time.UnixMilli(ext.LastModifiedTime).UTC()
	}
	// The wire format has no creation time; assume a day before the last
	// modification.
	created := modified.Add(-24 * time.Hour)

	status := model.StatusDraft
	var publishedAt *time.Time
	if ext.Status == statsig.StatusActive {
		status = model.StatusPublished
		publishedAt = &modified
	}

	name := ext.Name
	if name == "" {
		name = "Unnamed Experiment"
	}

	return model.Experiment{
		ID:          ext.ID,
		ExternalID:  ext.ID,
		Name:        name,
		Description: ext.Description,
		Status:      status,
		Targeting: model.Targeting{
			Conditions:   conditions,
			Environments: append([]string(nil), statsig.DefaultEnvironments...),
		},
		Variations:           variations,
		CreatedAt:            created,
		UpdatedAt:            modified,
		PublishedAt:          publishedAt,
		ExternalLayerName:    firstNonEmpty(ext.LayerName, ext.LayerID),
		ImportedFromExternal: true,
	}
}

func extractVariations(ext statsig.Experiment) []model.Variation {
	switch Classify(ext) {
	case ShapeGroups:
		out := make([]model.Variation, 0, len(ext.Groups))
		for _, g := range ext.Groups {
			out = append(out, model.Variation{
				ID:     variationID(g.ID),
				Name:   titleCaser.String(g.Name),
				Code:   payloadCode(g.ParameterValues),
				Weight: weightOr(g.Size, len(ext.Groups)),
			})
		}
		return out
	case ShapeVariants:
		out := make([]model.Variation, 0, len(ext.Variants))
		for _, v := range ext.Variants {
			out = append(out, model.Variation{
				ID:     model.NewVariationID(),
				Name:   titleCaser.String(v.Name),
				Code:   payloadCode(v.Value),
				Weight: weightOr(v.Weight, len(ext.Variants)),
			})
		}
		return out
	default:
		return model.DefaultVariations("")
	}
}

func variationID(groupID string) string {
	if groupID != "" {
		return groupID
	}
	return model.NewVariationID()
}

func payloadCode(values map[string]any) string {
	if code, ok := values[statsig.PayloadCodeKey].(string); ok {
		return code
	}
	return ""
}

// weightOr falls back to an even split when the wire record omits weights.
func weightOr(w, n int) int {
	if w > 0 {
		return w
	}
	return 100 / n
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
