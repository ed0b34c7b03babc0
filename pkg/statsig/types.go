package statsig

// Experiment is the console API's wire representation. Depending on which
// endpoint produced it, variants are described either as "groups" (full
// experiment object) or as "variants" (layer object); both may be absent.
type Experiment struct {
	ID               string  `json:"id,omitempty"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Status           string  `json:"status,omitempty"`
	IDType           string  `json:"idType,omitempty"`
	LastModifiedTime int64   `json:"lastModifiedTime,omitempty"` // ms since epoch
	TargetingGate    string  `json:"targetingGate,omitempty"`
	TargetingGateID  string  `json:"targetingGateID,omitempty"`
	Groups           []Group `json:"groups,omitempty"`
	Variants         []Variant `json:"variants,omitempty"`
	LayerName        string  `json:"layerName,omitempty"`
	LayerID          string  `json:"layerID,omitempty"`
	ControlGroupID   string  `json:"controlGroupID,omitempty"`
	Allocation       int     `json:"allocation,omitempty"`
}

// Group is one arm in the experiment-shaped response.
type Group struct {
	Name            string         `json:"name"`
	ID              string         `json:"id,omitempty"`
	Size            int            `json:"size,omitempty"`
	ParameterValues map[string]any `json:"parameterValues,omitempty"`
}

// Variant is one arm in the layer-shaped response.
type Variant struct {
	Name   string         `json:"name"`
	Weight int            `json:"weight,omitempty"`
	Value  map[string]any `json:"value,omitempty"`
}

// PayloadCodeKey is the conventional parameter key the injected JS payload
// travels under.
const PayloadCodeKey = "jsCode"

// StatusActive is the platform-side status that maps to published locally.
const StatusActive = "active"

// DefaultEnvironments is the environment set assumed for inbound records,
// which carry no environment information of their own.
var DefaultEnvironments = []string{"development", "staging", "production"}

// listResponse is the envelope returned by list/get endpoints.
type listResponse struct {
	Message string       `json:"message"`
	Data    []Experiment `json:"data"`
}

type getResponse struct {
	Message string      `json:"message"`
	Data    *Experiment `json:"data"`
}

type upsertResponse struct {
	Message string      `json:"message"`
	ID      string      `json:"id"`
	Data    *Experiment `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
}
