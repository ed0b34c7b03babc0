package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/coterie-labs/experiment-console/internal/model"
	"github.com/coterie-labs/experiment-console/internal/resolver"
)

// FallbackStore composes the tiers into one store with a fixed probe order:
// remote -> sqlite cache -> volatile map. Reads fall through on miss or tier
// failure; writes land on every available tier and count as successful once
// any tier accepts them. Tier failures absorbed by a fallback are logged as
// storage_degraded and never surfaced to the caller.
//
// There is no transaction across tiers: a write can durably succeed locally
// while failing remotely, leaving the remote store stale until the next
// successful write. That inconsistency window is accepted behavior.
type FallbackStore struct {
	remote Tier // nil when the remote store is not configured
	cache  Tier // nil when no durable local cache is configured
	mem    Tier // always present

	aliases *resolver.AliasIndex
	log     *zap.Logger
}

// NewFallback builds the composed store. remote and cache may be nil; mem
// must not be.
func NewFallback(remote, cache, mem Tier, aliases *resolver.AliasIndex, log *zap.Logger) *FallbackStore {
	if log == nil {
		log = zap.NewNop()
	}
	if aliases == nil {
		aliases = resolver.NewAliasIndex()
	}
	return &FallbackStore{
		remote:  remote,
		cache:   cache,
		mem:     mem,
		aliases: aliases,
		log:     log,
	}
}

// Aliases exposes the alias index so the lifecycle manager can bind
// platform-assigned ids as they are learned.
func (s *FallbackStore) Aliases() *resolver.AliasIndex { return s.aliases }

// localTiers returns the local tiers in probe order.
func (s *FallbackStore) localTiers() []Tier {
	tiers := make([]Tier, 0, 2)
	if s.cache != nil {
		tiers = append(tiers, s.cache)
	}
	tiers = append(tiers, s.mem)
	return tiers
}

// probeIDs returns the keys to try for id: the alias index first (explicit
// bindings beat prefix guessing), then the legacy prefix candidates.
func (s *FallbackStore) probeIDs(id string) []string {
	ids := []string{id}
	if local, ok := s.aliases.LocalFor(id); ok {
		ids = append(ids, local)
	}
	if ext, ok := s.aliases.ExternalFor(id); ok {
		ids = append(ids, ext)
	}
	for _, c := range resolver.Candidates(id) {
		if c != id {
			ids = append(ids, c)
		}
	}
	return ids
}

// Get resolves id across the tiers. The remote tier is probed with the
// alias-resolved keys; local tiers additionally get the prefix heuristics
// and an externalId secondary scan. Returns ErrNotFound when every tier
// misses.
func (s *FallbackStore) Get(ctx context.Context, id string) (*model.Experiment, error) {
	if s.remote != nil {
		for _, probe := range s.probeIDs(id) {
			exp, err := s.remote.Get(ctx, probe)
			if err == nil {
				return exp, nil
			}
			if !errors.Is(err, ErrNotFound) {
				s.degraded("get", s.remote, err)
				break
			}
		}
	}

	for _, tier := range s.localTiers() {
		exp, err := s.getLocal(ctx, tier, id)
		if err == nil {
			return exp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			s.degraded("get", tier, err)
		}
	}
	return nil, ErrNotFound
}

// getLocal probes one local tier: exact candidates first, then a scan for a
// record whose externalId equals the requested id.
func (s *FallbackStore) getLocal(ctx context.Context, tier Tier, id string) (*model.Experiment, error) {
	for _, probe := range s.probeIDs(id) {
		exp, err := tier.Get(ctx, probe)
		if err == nil {
			return exp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	all, err := tier.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	match, dupes := resolver.FindByExternalID(all, id)
	if match == nil {
		return nil, ErrNotFound
	}
	if dupes > 0 {
		// No canonical tie-break exists for records sharing an external
		// id; first match wins.
		s.log.Warn("multiple records share an external id",
			zap.String("external_id", id),
			zap.String("tier", tier.Name()),
			zap.Int("duplicates", dupes),
		)
	}
	return match, nil
}

// GetAll lists experiments from the remote tier, ordered most recently
// updated first. On remote unavailability it returns the contents of the
// first available local tier; tiers are never merged.
func (s *FallbackStore) GetAll(ctx context.Context) ([]model.Experiment, error) {
	if s.remote != nil {
		exps, err := s.remote.GetAll(ctx)
		if err == nil {
			return exps, nil
		}
		s.degraded("get_all", s.remote, err)
	}

	var lastErr error
	for _, tier := range s.localTiers() {
		exps, err := tier.GetAll(ctx)
		if err == nil {
			return exps, nil
		}
		s.degraded("get_all", tier, err)
		lastErr = err
	}
	return nil, lastErr
}

// Put writes exp to every available tier. The write succeeds once any tier
// accepts it; a remote failure is logged, not surfaced, because the record
// is already durable locally.
func (s *FallbackStore) Put(ctx context.Context, exp model.Experiment) error {
	accepted := false
	var lastErr error

	for _, tier := range s.localTiers() {
		if err := tier.Put(ctx, exp); err != nil {
			s.degraded("put", tier, err)
			lastErr = err
		} else {
			accepted = true
		}
	}

	if s.remote != nil {
		if err := s.remote.Put(ctx, exp); err != nil {
			s.degraded("put", s.remote, err)
			lastErr = err
		} else {
			accepted = true
		}
	}

	if !accepted {
		return lastErr
	}
	return nil
}

// Delete removes id (and its alias-resolved keys) from every tier. Remote
// failures are logged only; the delete succeeds once local removal is done.
func (s *FallbackStore) Delete(ctx context.Context, id string) error {
	probes := s.probeIDs(id)

	if s.remote != nil {
		for _, probe := range probes {
			if err := s.remote.Delete(ctx, probe); err != nil {
				s.degraded("delete", s.remote, err)
				break
			}
		}
	}

	var lastErr error
	for _, tier := range s.localTiers() {
		for _, probe := range probes {
			if err := tier.Delete(ctx, probe); err != nil {
				s.degraded("delete", tier, err)
				lastErr = err
				break
			}
		}
	}

	s.aliases.Unbind(id)
	if local, ok := s.aliases.LocalFor(id); ok {
		s.aliases.Unbind(local)
	}
	return lastErr
}

func (s *FallbackStore) degraded(op string, tier Tier, err error) {
	s.log.Warn("storage_degraded",
		zap.String("op", op),
		zap.String("tier", tier.Name()),
		zap.Error(err),
	)
}
