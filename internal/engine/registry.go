package engine

import (
	"context"
	"fmt"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
)

// Session is the persistence handle a reaction receives. It is the store
// transaction of the running pipeline; *store.Tx satisfies it.
type Session interface {
	GetIdentity(ctx context.Context, id int64) (ir.Identity, error)
	GetToken(ctx context.Context, ownerID int64, provider string) (ir.OAuthToken, error)
	PutToken(ctx context.Context, tok ir.OAuthToken) error
}

// Invocation is everything a reaction receives for one task.
type Invocation struct {
	// EventID identifies the pipeline run.
	EventID string

	// Task is the matched task.
	Task ir.Task

	// Session is the persistence handle of the run.
	Session Session

	// Params is params ∪ context_params of the event, context keys winning.
	// Each invocation gets its own copy.
	Params map[string]string

	// ServiceFrom is the originating event service. It is set only when the
	// reaction was resolved from a shared tier, so generic reactions can
	// adapt their copy to the source.
	ServiceFrom string
}

// Reaction performs the side effect of a task.
type Reaction interface {
	React(ctx context.Context, inv Invocation) error
}

// ReactionFunc adapts a function to the Reaction interface.
type ReactionFunc func(ctx context.Context, inv Invocation) error

// React calls f.
func (f ReactionFunc) React(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// Tier is one capability map of the registry.
type Tier struct {
	Service   string
	Reactions map[string]Reaction
}

// Registry resolves reaction names to handlers. Lookup tries the event's own
// service tier first, then the shared tiers in fixed priority order.
//
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	tiers  map[string]map[string]Reaction
	shared []string
}

// Resolution describes where a reaction was found.
type Resolution struct {
	Reaction Reaction

	// Tier is the service whose registry held the reaction.
	Tier string

	// Shared is true when the reaction came from a shared tier rather than
	// the event's own service.
	Shared bool
}

// NewRegistry builds a registry from explicit tiers. shared lists the tiers
// consulted after the event's service, in priority order; each must be
// present in tiers.
func NewRegistry(tiers []Tier, shared []string) (*Registry, error) {
	r := &Registry{
		tiers:  make(map[string]map[string]Reaction, len(tiers)),
		shared: append([]string(nil), shared...),
	}
	for _, t := range tiers {
		if _, dup := r.tiers[t.Service]; dup {
			return nil, fmt.Errorf("registry: tier %q declared twice", t.Service)
		}
		m := make(map[string]Reaction, len(t.Reactions))
		for name, h := range t.Reactions {
			if h == nil {
				return nil, fmt.Errorf("registry: tier %q: nil handler for %q", t.Service, name)
			}
			m[name] = h
		}
		r.tiers[t.Service] = m
	}
	for _, s := range shared {
		if _, ok := r.tiers[s]; !ok {
			return nil, fmt.Errorf("registry: shared tier %q has no reactions", s)
		}
	}
	return r, nil
}

// RegistryFromCatalog lays the vocabulary's registry tiers over a table of
// handlers keyed by reaction name. Every reaction the catalog lists must have
// a handler.
func RegistryFromCatalog(cat *catalog.Catalog, handlers map[string]Reaction) (*Registry, error) {
	regs := cat.Registries()
	tiers := make([]Tier, 0, len(regs))
	for _, reg := range regs {
		t := Tier{Service: reg.Service, Reactions: make(map[string]Reaction, len(reg.Reactions))}
		for _, name := range reg.Reactions {
			h, ok := handlers[name]
			if !ok {
				return nil, fmt.Errorf("registry: tier %q: no handler for reaction %q", reg.Service, name)
			}
			t.Reactions[name] = h
		}
		tiers = append(tiers, t)
	}
	return NewRegistry(tiers, cat.Fallback())
}

// Resolve finds the handler of reaction for an event from service.
// Returns false when no tier offers it.
func (r *Registry) Resolve(service, reaction string) (Resolution, bool) {
	if h, ok := r.tiers[service][reaction]; ok {
		return Resolution{Reaction: h, Tier: service}, true
	}
	for _, tier := range r.shared {
		if h, ok := r.tiers[tier][reaction]; ok {
			return Resolution{Reaction: h, Tier: tier, Shared: true}, true
		}
	}
	return Resolution{}, false
}
