package httpserver

import (
	"context"
	"log"
	"sync"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/agent"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/store"
)

// Registry tracks the live controller for each session and keeps the
// store's snapshot current. Controllers are rebuilt from snapshots after
// a restart.
type Registry struct {
	opts  agent.Options
	store store.Store

	mu    sync.Mutex
	ctrls map[string]*agent.Controller
}

func NewRegistry(opts agent.Options, st store.Store) *Registry {
	return &Registry{opts: opts, store: st, ctrls: make(map[string]*agent.Controller)}
}

// Create starts a fresh session and persists its initial snapshot.
func (r *Registry) Create(ctx context.Context) (*agent.Controller, error) {
	sess := chat.NewSession()
	ctrl := agent.NewController(sess, r.opts)

	r.mu.Lock()
	r.ctrls[sess.ID] = ctrl
	r.mu.Unlock()

	if err := r.store.Save(ctx, sess); err != nil {
		r.mu.Lock()
		delete(r.ctrls, sess.ID)
		r.mu.Unlock()
		return nil, err
	}
	return ctrl, nil
}

// Get returns the live controller, reviving it from the stored snapshot
// if this process has not seen the session yet.
func (r *Registry) Get(ctx context.Context, id string) (*agent.Controller, error) {
	r.mu.Lock()
	if ctrl, ok := r.ctrls[id]; ok {
		r.mu.Unlock()
		return ctrl, nil
	}
	r.mu.Unlock()

	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctrl, ok := r.ctrls[id]; ok {
		return ctrl, nil
	}
	ctrl := agent.NewController(sess, r.opts)
	r.ctrls[id] = ctrl
	return ctrl, nil
}

// List returns all stored snapshots. Handlers persist after every
// mutation, so the store is current for sessions this process owns.
func (r *Registry) List(ctx context.Context) ([]chat.Session, error) {
	return r.store.List(ctx)
}

// Delete drops the live controller and the stored snapshot.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.ctrls, id)
	r.mu.Unlock()
	return r.store.Delete(ctx, id)
}

// persist writes the controller's current snapshot; persistence failures
// are logged, not surfaced, since the live session is authoritative.
func (r *Registry) persist(ctx context.Context, ctrl *agent.Controller) {
	sess := ctrl.Session()
	if err := r.store.Save(ctx, &sess); err != nil {
		log.Printf("persist session %s: %v", sess.ID, err)
	}
}
