// Package manager implements the experiment lifecycle: create, update,
// publish, archive, delete and platform import. It validates before any I/O,
// normalizes traffic weights on every write, and orders platform-first on
// publish so a rejected publish leaves local state untouched.
package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coterie-labs/experiment-console/internal/convert"
	"github.com/coterie-labs/experiment-console/internal/jscheck"
	"github.com/coterie-labs/experiment-console/internal/model"
	"github.com/coterie-labs/experiment-console/internal/resilience"
	"github.com/coterie-labs/experiment-console/internal/store"
	"github.com/coterie-labs/experiment-console/internal/variation"
	"github.com/coterie-labs/experiment-console/pkg/statsig"
)

// Manager coordinates the storage tiers and the experimentation platform.
type Manager struct {
	store    *store.FallbackStore
	platform statsig.Client
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	log      *zap.Logger

	now func() time.Time
}

// New builds a Manager. platform may be an unconfigured client; publish then
// fails with a clear upstream error while local operations keep working.
func New(st *store.FallbackStore, platform statsig.Client, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:    st,
		platform: platform,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			ShouldTrip: func(err error) bool {
				// Platform rejections of a specific payload are not outages.
				var apiErr *statsig.APIError
				if errors.As(err, &apiErr) {
					return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
				}
				return true
			},
		}),
		retry: resilience.DefaultRetryConfig(),
		log:   log,
		now:   time.Now,
	}
}

// Create validates and stores a new draft. A missing id gets a fresh local
// id; empty variations are seeded with the default Control/Treatment pair;
// weights are normalized to sum to 100.
func (m *Manager) Create(ctx context.Context, exp model.Experiment) (*model.Experiment, error) {
	if exp.ID == "" {
		// A record arriving with a platform id keeps it as the canonical id.
		if exp.ExternalID != "" {
			exp.ID = exp.ExternalID
		} else {
			exp.ID = model.NewLocalID()
		}
	}
	if exp.Status == "" {
		exp.Status = model.StatusDraft
	}
	if len(exp.Variations) == 0 {
		exp.Variations = model.DefaultVariations("")
	}
	if err := validate(exp); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	exp.Variations = variation.Normalize(exp.Variations)
	exp.CreatedAt = now
	exp.UpdatedAt = now

	if err := m.store.Put(ctx, exp); err != nil {
		return nil, err
	}
	m.log.Info("experiment created", zap.String("id", exp.ID), zap.String("name", exp.Name))
	return &exp, nil
}

// Get resolves id across the storage tiers, honoring prefix variants, alias
// bindings and externalId matches.
func (m *Manager) Get(ctx context.Context, id string) (*model.Experiment, error) {
	exp, err := m.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return exp, err
}

// List returns all experiments from the first available tier.
func (m *Manager) List(ctx context.Context) ([]model.Experiment, error) {
	return m.store.GetAll(ctx)
}

// Update applies a partial patch over an existing experiment. Archived
// experiments are frozen: both content edits and status changes are rejected.
func (m *Manager) Update(ctx context.Context, id string, patch model.Patch) (*model.Experiment, error) {
	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == model.StatusArchived {
		if patch.TouchesProtected() {
			return nil, validationf("archived experiment %s cannot be edited", existing.ID)
		}
		if patch.Status != nil && *patch.Status != model.StatusArchived {
			return nil, validationf("archived experiment %s cannot change status", existing.ID)
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, validationf("unknown status %q", *patch.Status)
	}

	updated := patch.Apply(*existing, m.now())
	if len(updated.Variations) == 0 {
		// A patch that empties the variations gets the default pair back,
		// carrying the code of the prior first non-control arm when present.
		updated.Variations = model.DefaultVariations(legacyCode(existing.Variations))
	}
	if err := validate(updated); err != nil {
		return nil, err
	}
	updated.Variations = variation.Normalize(updated.Variations)

	if err := m.store.Put(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Archive moves an experiment into the terminal archived state. Archiving an
// already-archived experiment is a no-op.
func (m *Manager) Archive(ctx context.Context, id string) (*model.Experiment, error) {
	exp, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == model.StatusArchived {
		return exp, nil
	}

	exp.Status = model.StatusArchived
	exp.UpdatedAt = m.now().UTC()
	if err := m.store.Put(ctx, *exp); err != nil {
		return nil, err
	}
	m.log.Info("experiment archived", zap.String("id", exp.ID))
	return exp, nil
}

// Delete removes the experiment from every tier. Deleting an unknown id is
// an error so callers can distinguish a typo from a removal.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// Publish pushes an existing experiment to the platform, then marks it
// published locally. The platform call comes first: when it fails, local
// state is untouched. PublishedAt is set on the first publish only; the
// platform-assigned id is recorded as externalId and bound in the alias
// index so either id resolves afterward.
func (m *Manager) Publish(ctx context.Context, id string) (*model.Experiment, error) {
	exp, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == model.StatusArchived {
		return nil, validationf("archived experiment %s cannot be published", exp.ID)
	}
	if err := validate(*exp); err != nil {
		return nil, err
	}

	platformID, err := m.upsert(ctx, convert.ToStatsig(*exp))
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	exp.Status = model.StatusPublished
	exp.UpdatedAt = now
	if exp.PublishedAt == nil {
		exp.PublishedAt = &now
	}
	if platformID != "" {
		exp.ExternalID = platformID
		if err := m.store.Aliases().Bind(exp.ID, platformID); err != nil {
			m.log.Warn("alias bind rejected", zap.String("id", exp.ID),
				zap.String("external_id", platformID), zap.Error(err))
		}
	}

	if err := m.store.Put(ctx, *exp); err != nil {
		return nil, err
	}
	m.log.Info("experiment published",
		zap.String("id", exp.ID), zap.String("external_id", exp.ExternalID))
	return exp, nil
}

// PublishNew creates an experiment directly on the platform, then stores it
// locally under the platform-assigned id. When the platform rejects the
// payload no local record is written.
func (m *Manager) PublishNew(ctx context.Context, exp model.Experiment) (*model.Experiment, error) {
	if exp.Status == "" {
		exp.Status = model.StatusDraft
	}
	if len(exp.Variations) == 0 {
		exp.Variations = model.DefaultVariations("")
	}
	if err := validate(exp); err != nil {
		return nil, err
	}
	exp.Variations = variation.Normalize(exp.Variations)

	payload := convert.ToStatsig(exp)
	payload.ID = "" // force a create, never an update
	platformID, err := m.upsert(ctx, payload)
	if err != nil {
		return nil, err
	}
	if platformID == "" {
		return nil, &UpstreamError{Message: "platform did not return an experiment id"}
	}

	now := m.now().UTC()
	exp.ID = platformID
	exp.ExternalID = platformID
	exp.Status = model.StatusPublished
	exp.CreatedAt = now
	exp.UpdatedAt = now
	exp.PublishedAt = &now

	if err := m.store.Put(ctx, exp); err != nil {
		return nil, err
	}
	m.log.Info("experiment published as new", zap.String("id", exp.ID))
	return &exp, nil
}

// ImportFromPlatform pulls every experiment the platform knows about,
// converts them to the local representation and stores them, binding ids in
// the alias index. Returns the imported records.
func (m *Manager) ImportFromPlatform(ctx context.Context) ([]model.Experiment, error) {
	records, err := resilience.DoVal(ctx, m.breaker,
		func(ctx context.Context) ([]statsig.Experiment, error) {
			return resilience.RetryVal(ctx, m.retry,
				func(ctx context.Context) ([]statsig.Experiment, error) {
					return m.platform.ListExperiments(ctx)
				})
		})
	if err != nil {
		return nil, m.upstreamError(err)
	}

	imported := make([]model.Experiment, 0, len(records))
	for _, rec := range records {
		exp := convert.FromStatsig(rec)
		if err := m.store.Put(ctx, exp); err != nil {
			m.log.Warn("import skipped record", zap.String("id", exp.ID), zap.Error(err))
			continue
		}
		if err := m.store.Aliases().Bind(exp.ID, exp.ExternalID); err != nil {
			m.log.Warn("alias bind rejected", zap.String("id", exp.ID), zap.Error(err))
		}
		imported = append(imported, exp)
	}
	m.log.Info("imported experiments from platform", zap.Int("count", len(imported)))
	return imported, nil
}

// upsert runs the platform write through the breaker and retry policy.
func (m *Manager) upsert(ctx context.Context, payload statsig.Experiment) (string, error) {
	id, err := resilience.DoVal(ctx, m.breaker, func(ctx context.Context) (string, error) {
		return resilience.RetryVal(ctx, m.retry, func(ctx context.Context) (string, error) {
			return m.platform.UpsertExperiment(ctx, payload)
		})
	})
	if err != nil {
		return "", m.upstreamError(err)
	}
	return id, nil
}

// upstreamError wraps a platform failure, surfacing the platform's own
// message when it sent one.
func (m *Manager) upstreamError(err error) error {
	var apiErr *statsig.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Message: apiErr.Message, Err: err}
	}
	if errors.Is(err, resilience.ErrOpen) {
		return &UpstreamError{Message: "experimentation platform is unavailable", Err: err}
	}
	if errors.Is(err, statsig.ErrNotConfigured) {
		return &UpstreamError{Message: "no platform API key configured", Err: err}
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

// validate enforces the invariants every stored experiment must satisfy.
func validate(exp model.Experiment) error {
	if strings.TrimSpace(exp.Name) == "" {
		return validationf("experiment name is required")
	}
	if !exp.Status.Valid() {
		return validationf("unknown status %q", exp.Status)
	}
	for _, v := range exp.Variations {
		if strings.TrimSpace(v.Name) == "" {
			return validationf("variation name is required")
		}
		if err := jscheck.Check(v.Code); err != nil {
			return &ValidationError{Msg: "variation " + v.Name + ": " + err.Error()}
		}
	}
	return nil
}

// legacyCode finds the payload carried by the first non-control arm, used to
// preserve a single-code experiment when its variations are reset.
func legacyCode(variations []model.Variation) string {
	for _, v := range variations {
		if v.Code != "" {
			return v.Code
		}
	}
	return ""
}
