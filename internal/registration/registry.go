package registration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gainfair/internal/catalog"
)

// Registry holds the live flows of one process, keyed by attempt id.
type Registry struct {
	cat      *catalog.Catalog
	store    Store
	payments Payments
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewRegistry(cat *catalog.Catalog, st Store, payments Payments, ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		cat:      cat,
		store:    st,
		payments: payments,
		ttl:      ttl,
		log:      log.With().Str("component", "registration").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		flows:    map[string]*Flow{},
	}
}

// Start opens a new attempt.
func (r *Registry) Start() *Flow {
	f := NewFlow(uuid.NewString(), r.cat, r.store, r.payments, r.log)
	f.now = r.now
	f.touched = r.now()
	r.mu.Lock()
	r.flows[f.ID] = f
	r.mu.Unlock()
	return f
}

func (r *Registry) Get(id string) (*Flow, bool) {
	r.mu.Lock()
	f, ok := r.flows[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	if touched, evictable := f.idleSince(); evictable && r.now().Sub(touched) > r.ttl {
		r.remove(id, f)
		return nil, false
	}
	return f, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep drops idle flows and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	snapshot := make(map[string]*Flow, len(r.flows))
	for id, f := range r.flows {
		snapshot[id] = f
	}
	r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, f := range snapshot {
		touched, evictable := f.idleSince()
		if evictable && now.Sub(touched) > r.ttl {
			if r.remove(id, f) {
				removed++
			}
		}
	}
	return removed
}

func (r *Registry) remove(id string, f *Flow) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.flows[id]; !ok || cur != f {
		return false
	}
	delete(r.flows, id)
	// Idle awaiting flows still hold an order; release the button.
	f.mu.Lock()
	if f.state == StateAwaitingPayment {
		f.dropButtonLocked()
	}
	f.mu.Unlock()
	return true
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debug().Int("removed", n).Int("live", r.Len()).Msg("expired checkout attempts")
			}
		}
	}
}
