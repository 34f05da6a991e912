// Package supervisor runs the long-lived services under a suture tree so a
// crashed component is restarted with backoff instead of taking the process down.
package supervisor

import (
	"context"
	"time"

	"mcnetwork/app/internal/logging"

	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's own defaults
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree has two layers: collection (scheduler) and api (HTTP server).
// A crash in one layer is restarted without touching the other.
type Tree struct {
	root       *suture.Supervisor
	collection *suture.Supervisor
	api        *suture.Supervisor
}

// NewTree builds the tree. Zero fields in cfg take the defaults.
func NewTree(cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = logEvent

	root := suture.New("mcnetwork", rootSpec)
	collection := suture.New("collection-layer", spec)
	api := suture.New("api-layer", spec)
	root.Add(collection)
	root.Add(api)

	return &Tree{root: root, collection: collection, api: api}
}

func logEvent(e suture.Event) {
	logging.Warn().Fields(e.Map()).Msg(e.String())
}

// AddCollectionService adds a service to the collection layer
func (t *Tree) AddCollectionService(svc suture.Service) suture.ServiceToken {
	return t.collection.Add(svc)
}

// AddAPIService adds a service to the api layer
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree and returns its exit channel
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
