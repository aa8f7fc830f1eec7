// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Defaults are applied to providers created without a threshold or
// blacklist duration.
type Defaults struct {
	FailureThreshold int
	BlacklistMinutes int
}

// DefaultDefaults returns a threshold of 3 failures and a 10 minute window.
func DefaultDefaults() Defaults {
	return Defaults{FailureThreshold: 3, BlacklistMinutes: 10}
}

// snapshot is an immutable, sort_order-ordered provider list for one CLI type.
type snapshot struct {
	providers []types.Provider
}

// Registry owns provider configuration. Reads are served from per CLI type
// copy-on-write snapshots, so readers never block on writers and never see
// a partially applied reorder. Writers are serialized.
type Registry struct {
	store    store.ProviderStore
	health   *HealthTracker
	defaults Defaults
	logger   *slog.Logger

	writeMu   sync.Mutex
	snapshots map[types.CLIType]*atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry. Call Load before serving reads.
func NewRegistry(ps store.ProviderStore, health *HealthTracker, defaults Defaults, logger *slog.Logger) (*Registry, error) {
	if ps == nil {
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "provider store is required")
	}
	if health == nil {
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "health tracker is required")
	}
	if defaults.FailureThreshold <= 0 || defaults.BlacklistMinutes <= 0 {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigValidateInvalidValue,
			"provider defaults must be positive, got threshold=%d blacklist_minutes=%d",
			defaults.FailureThreshold, defaults.BlacklistMinutes)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		store:     ps,
		health:    health,
		defaults:  defaults,
		logger:    logger,
		snapshots: make(map[types.CLIType]*atomic.Pointer[snapshot], len(types.AllCLITypes())),
	}
	for _, c := range types.AllCLITypes() {
		ptr := &atomic.Pointer[snapshot]{}
		ptr.Store(&snapshot{})
		r.snapshots[c] = ptr
	}
	return r, nil
}

// Load reads every provider from the store, seeds the health tracker and
// publishes fresh snapshots.
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	for _, c := range types.AllCLITypes() {
		providers, err := r.refreshLocked(ctx, c)
		if err != nil {
			return err
		}
		for _, p := range providers {
			r.health.Track(p)
		}
	}
	return nil
}

// refreshLocked reloads one CLI type from the store and swaps its snapshot.
// The caller MUST hold r.writeMu.
func (r *Registry) refreshLocked(ctx context.Context, cliType types.CLIType) ([]types.Provider, error) {
	rows, err := r.store.List(ctx, cliType)
	if err != nil {
		return nil, ccgerr.Wrapf(err, ccgerr.CodeStoreDatabaseFailure, "loading %s providers", cliType)
	}
	providers := make([]types.Provider, 0, len(rows))
	for _, p := range rows {
		providers = append(providers, *p)
	}
	r.snapshots[cliType].Store(&snapshot{providers: providers})
	return providers, nil
}

// ListByCLIType returns the providers of one CLI type ordered by sort_order.
// The result is a deep copy the caller may modify.
func (r *Registry) ListByCLIType(cliType types.CLIType) []types.Provider {
	ptr, ok := r.snapshots[cliType]
	if !ok {
		return nil
	}
	snap := ptr.Load()
	out := make([]types.Provider, len(snap.providers))
	for i, p := range snap.providers {
		out[i] = p.Clone()
	}
	return out
}

// List returns every provider grouped by CLI type.
func (r *Registry) List() []types.Provider {
	var out []types.Provider
	for _, c := range types.AllCLITypes() {
		out = append(out, r.ListByCLIType(c)...)
	}
	return out
}

// Get returns one provider by id.
func (r *Registry) Get(id int64) (types.Provider, error) {
	for _, c := range types.AllCLITypes() {
		for _, p := range r.snapshots[c].Load().providers {
			if p.ID == id {
				return p.Clone(), nil
			}
		}
	}
	return types.Provider{}, ccgerr.New(ccgerr.CodeProviderNotFound, "provider not found", ccgerr.FieldProviderID(id))
}

// Create validates p, appends it to the end of its CLI type's order and
// starts tracking its health.
func (r *Registry) Create(ctx context.Context, p types.Provider) (types.Provider, error) {
	if p.FailureThreshold == 0 {
		p.FailureThreshold = r.defaults.FailureThreshold
	}
	if p.BlacklistMinutes == 0 {
		p.BlacklistMinutes = r.defaults.BlacklistMinutes
	}
	p.ConsecutiveFailures = 0
	p.BlacklistedUntil = nil
	if err := p.Validate(); err != nil {
		return types.Provider{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.store.Create(ctx, &p); err != nil {
		return types.Provider{}, err
	}
	if _, err := r.refreshLocked(ctx, p.CLIType); err != nil {
		return types.Provider{}, err
	}
	r.health.Track(p)

	r.logger.Info("provider created",
		"provider_id", p.ID,
		"provider", p.Name,
		"cli_type", p.CLIType,
		"sort_order", p.SortOrder,
	)
	return p.Clone(), nil
}

// Update writes the operator-owned fields of p. The CLI type of an existing
// provider cannot change; health and order are not affected.
func (r *Registry) Update(ctx context.Context, p types.Provider) (types.Provider, error) {
	if err := p.Validate(); err != nil {
		return types.Provider{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.Get(p.ID)
	if err != nil {
		return types.Provider{}, err
	}
	if existing.CLIType != p.CLIType {
		return types.Provider{}, ccgerr.Errorf(ccgerr.CodeProviderInvalidInput,
			"provider %d: cli_type cannot change from %s to %s", p.ID, existing.CLIType, p.CLIType)
	}

	if err := r.store.Update(ctx, &p); err != nil {
		return types.Provider{}, err
	}
	if _, err := r.refreshLocked(ctx, p.CLIType); err != nil {
		return types.Provider{}, err
	}
	r.health.Configure(p)

	r.logger.Info("provider updated", "provider_id", p.ID, "provider", p.Name, "cli_type", p.CLIType)
	return r.Get(p.ID)
}

// Delete removes a provider and compacts the order of the rest.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := r.refreshLocked(ctx, existing.CLIType); err != nil {
		return err
	}
	r.health.Forget(id)

	r.logger.Info("provider deleted", "provider_id", id, "provider", existing.Name, "cli_type", existing.CLIType)
	return nil
}

// Reorder sets the priority order of one CLI type. ids must be exactly the
// current id set of that CLI type; otherwise nothing changes.
func (r *Registry) Reorder(ctx context.Context, cliType types.CLIType, ids []int64) error {
	if !cliType.Valid() {
		return ccgerr.Errorf(ccgerr.CodeProviderReorderInvalid, "reorder: invalid cli type %q", cliType)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshots[cliType].Load().providers
	have := make([]int64, len(current))
	for i, p := range current {
		have[i] = p.ID
	}
	if err := checkPermutation(have, ids); err != nil {
		return ccgerr.Wrapf(err, ccgerr.CodeProviderReorderInvalid, "reorder %s", cliType)
	}

	if err := r.store.Reorder(ctx, cliType, ids); err != nil {
		return err
	}
	if _, err := r.refreshLocked(ctx, cliType); err != nil {
		return err
	}

	r.logger.Info("providers reordered", "cli_type", cliType, "ids", ids)
	return nil
}

// CLITypeOf returns the CLI type shared by every id, used when a reorder
// request omits it.
func (r *Registry) CLITypeOf(ids []int64) (types.CLIType, error) {
	if len(ids) == 0 {
		return "", ccgerr.New(ccgerr.CodeProviderReorderInvalid, "reorder: ids are required")
	}
	first, err := r.Get(ids[0])
	if err != nil {
		return "", ccgerr.Errorf(ccgerr.CodeProviderReorderInvalid, "reorder: unknown provider id %d", ids[0])
	}
	return first.CLIType, nil
}

func checkPermutation(have, want []int64) error {
	if len(have) != len(want) {
		return ccgerr.Errorf(ccgerr.CodeProviderReorderInvalid, "got %d ids, want %d", len(want), len(have))
	}
	sortedHave := slices.Clone(have)
	sortedWant := slices.Clone(want)
	slices.Sort(sortedHave)
	slices.Sort(sortedWant)
	if !slices.Equal(sortedHave, sortedWant) {
		return ccgerr.New(ccgerr.CodeProviderReorderInvalid, "ids must be exactly the providers of this cli type, each once")
	}
	return nil
}
