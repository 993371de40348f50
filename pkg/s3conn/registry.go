// Package s3conn tracks which sessions hold live S3 adapters.
//
// The registry is process-local and deliberately non-replicated: a scaled
// deployment runs one registry per node. Bindings are keyed by
// (sessionID, configID); the global number of distinct configIDs live at
// once is capped, while any number of sessions may share an already-live
// config.
package s3conn

import (
	"context"
	"fmt"
	"sync"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/s3config"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
	s3store "github.com/sesukyothole/bro-file-manager/pkg/store/s3"
)

// DefaultMaxConnections caps distinct live configs when unconfigured.
const DefaultMaxConnections = 5

type bindingKey struct {
	sessionID string
	configID  string
}

// Registry is the in-memory connection table.
type Registry struct {
	configs *s3config.Store
	max     int

	// newAdapter builds the adapter for a profile; swapped in tests to
	// avoid constructing real AWS clients.
	newAdapter func(ctx context.Context, p *s3config.Profile) (*s3store.Adapter, error)

	mu       sync.Mutex
	bindings map[bindingKey]*s3store.Adapter
}

// NewRegistry builds a registry over the profile store.
func NewRegistry(configs *s3config.Store, max int) *Registry {
	if max <= 0 {
		max = DefaultMaxConnections
	}
	return &Registry{
		configs:    configs,
		max:        max,
		newAdapter: buildAdapter,
		bindings:   make(map[bindingKey]*s3store.Adapter),
	}
}

// MaxConnections returns the configured cap.
func (r *Registry) MaxConnections() int {
	return r.max
}

// Attach binds the session to the config, constructing an adapter if needed.
//
// The cap counts distinct configIDs across all sessions: attaching to a
// config that is already live always succeeds, while bringing a new config
// up when the cap is reached fails with ErrAtLimit. The cap check and the
// insert happen under one critical section.
func (r *Registry) Attach(ctx context.Context, sessionID, configID string) (*s3store.Adapter, error) {
	profile, err := r.configs.GetByID(configID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey{sessionID: sessionID, configID: configID}
	if adapter, ok := r.bindings[key]; ok {
		return adapter, nil
	}

	live := r.liveConfigsLocked()
	if _, alreadyLive := live[configID]; !alreadyLive && len(live) >= r.max {
		return nil, fmt.Errorf("%d distinct configs live: %w", len(live), store.ErrAtLimit)
	}

	adapter, err := r.newAdapter(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", profile.Name, err)
	}

	r.bindings[key] = adapter
	logger.Info().Str("config", profile.Name).Str("config_id", configID).Msg("S3 connection attached")
	return adapter, nil
}

// Detach removes the session's binding for configID, or every binding of
// the session when configID is empty.
func (r *Registry) Detach(sessionID, configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.bindings {
		if key.sessionID != sessionID {
			continue
		}
		if configID == "" || key.configID == configID {
			delete(r.bindings, key)
		}
	}
}

// OnProfileDeleted drops every binding that refers to the deleted config,
// whatever session holds it.
func (r *Registry) OnProfileDeleted(configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.bindings {
		if key.configID == configID {
			delete(r.bindings, key)
		}
	}
}

// Resolve returns the session's adapter for configID.
func (r *Registry) Resolve(sessionID, configID string) (*s3store.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	adapter, ok := r.bindings[bindingKey{sessionID: sessionID, configID: configID}]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", configID, store.ErrNotConnected)
	}
	return adapter, nil
}

// SessionConfigs returns the configIDs the session is bound to.
func (r *Registry) SessionConfigs(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := []string{}
	for key := range r.bindings {
		if key.sessionID == sessionID {
			ids = append(ids, key.configID)
		}
	}
	return ids
}

func (r *Registry) liveConfigsLocked() map[string]struct{} {
	live := make(map[string]struct{})
	for key := range r.bindings {
		live[key.configID] = struct{}{}
	}
	return live
}

func buildAdapter(ctx context.Context, p *s3config.Profile) (*s3store.Adapter, error) {
	client, err := s3store.NewClient(ctx, s3store.ClientConfig{
		Region:          p.Region,
		Endpoint:        p.Endpoint,
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return s3store.NewAdapter(client, p.Bucket, p.Prefix, p.ID), nil
}
