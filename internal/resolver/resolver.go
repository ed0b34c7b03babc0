// Package resolver maps requested experiment identifiers onto the keys a
// record may actually be stored under. Two namespaces reference the same
// records interchangeably (locally generated ids and platform-assigned ids),
// and legacy data carries inconsistent prefixes, so a lookup probes an
// ordered list of candidates and then falls back to an externalId scan.
package resolver

import (
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/coterie-labs/experiment-console/internal/model"
)

const (
	// LocalPrefix marks locally generated experiment ids.
	LocalPrefix = "exp-"
	// ExternalPrefix marks platform-assigned ids stored under their own key.
	ExternalPrefix = "statsig-"
	// legacyCombinedPrefix appears on records imported by early versions,
	// which glued both prefixes together.
	legacyCombinedPrefix = "exp-statsig-"
)

// Candidates returns the ordered list of keys to probe for id, first hit
// wins. The list always starts with id verbatim; prefix variants follow in
// a fixed order and duplicates are dropped.
func Candidates(id string) []string {
	cands := []string{id}

	if strings.HasPrefix(id, legacyCombinedPrefix) {
		cands = append(cands, strings.TrimPrefix(id, legacyCombinedPrefix))
	}
	if !strings.HasPrefix(id, LocalPrefix) {
		cands = append(cands, LocalPrefix+id)
	}
	if !strings.HasPrefix(id, LocalPrefix) && !strings.HasPrefix(id, ExternalPrefix) {
		cands = append(cands, ExternalPrefix+id)
	}

	seen := make(map[string]struct{}, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FindByExternalID scans records for entries whose ExternalID equals id and
// returns the first match in iteration order. dupes counts additional records
// sharing the same ExternalID; more than one is a data error the caller
// should log, since no canonical tie-break exists.
func FindByExternalID(records []model.Experiment, id string) (match *model.Experiment, dupes int) {
	for i := range records {
		if records[i].ExternalID != id {
			continue
		}
		if match == nil {
			match = &records[i]
		} else {
			dupes++
		}
	}
	return match, dupes
}

// ErrAliasConflict is returned when an external id is already bound to a
// different local id. Rebinding is rejected rather than silently resolved;
// the existing binding must be removed first.
var ErrAliasConflict = eris.New("resolver: external id already bound to another record")

// AliasIndex is an explicit bidirectional localId <-> externalId mapping,
// maintained by the lifecycle manager as records are published or imported.
// It replaces prefix guessing for records created by this process; the
// Candidates heuristics remain for legacy data the index has never seen.
type AliasIndex struct {
	mu         sync.RWMutex
	byLocal    map[string]string
	byExternal map[string]string
}

// NewAliasIndex returns an empty index.
func NewAliasIndex() *AliasIndex {
	return &AliasIndex{
		byLocal:    make(map[string]string),
		byExternal: make(map[string]string),
	}
}

// Bind records localID <-> externalID. Binding the same pair again is a
// no-op. Binding an external id already held by a different local id fails
// with ErrAliasConflict.
func (a *AliasIndex) Bind(localID, externalID string) error {
	if localID == "" || externalID == "" {
		return eris.New("resolver: empty id in alias binding")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.byExternal[externalID]; ok && existing != localID {
		return ErrAliasConflict
	}
	if prev, ok := a.byLocal[localID]; ok && prev != externalID {
		delete(a.byExternal, prev)
	}
	a.byLocal[localID] = externalID
	a.byExternal[externalID] = localID
	return nil
}

// Unbind removes any binding held by localID.
func (a *AliasIndex) Unbind(localID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ext, ok := a.byLocal[localID]; ok {
		delete(a.byExternal, ext)
		delete(a.byLocal, localID)
	}
}

// LocalFor returns the local id bound to externalID.
func (a *AliasIndex) LocalFor(externalID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byExternal[externalID]
	return id, ok
}

// ExternalFor returns the external id bound to localID.
func (a *AliasIndex) ExternalFor(localID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byLocal[localID]
	return id, ok
}
