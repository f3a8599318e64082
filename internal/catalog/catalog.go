package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/area/internal/ir"
)

//go:embed catalog.cue
var defaultSource []byte

var (
	// ErrUnknownTrigger is returned when a trigger is absent from the vocabulary.
	ErrUnknownTrigger = errors.New("unknown trigger")

	// ErrUnknownReaction is returned when no registry offers a reaction.
	ErrUnknownReaction = errors.New("unknown reaction")

	// ErrUnknownService is returned when a service has no registry or triggers.
	ErrUnknownService = errors.New("unknown service")
)

// Directional describes a creation-time trigger variant. A task created with
// the variant is stored under Base with Marker appended to its arguments; at
// correlation time the stored comparison value is checked against the event
// context field named Context.
type Directional struct {
	Base    string `json:"base"`
	Marker  string `json:"marker"`
	Context string `json:"context"`
}

// Predicate is the positional layout of special-trigger task arguments.
type Predicate struct {
	ValueIndex  int    `json:"value_index"`
	MarkerIndex int    `json:"marker_index"`
	OwnerParam  string `json:"owner_param"`
}

// MinArgs is the minimum argument count of a task the predicate can inspect.
func (p Predicate) MinArgs() int {
	return max(p.ValueIndex, p.MarkerIndex) + 1
}

// Registry is one reaction tier: the reactions a service offers.
type Registry struct {
	Service   string   `json:"service"`
	Reactions []string `json:"reactions"`
}

type document struct {
	Reactions   map[string]reactionDoc `json:"reactions"`
	Registries  []Registry             `json:"registries"`
	Fallback    []string               `json:"fallback"`
	Triggers    []triggerGroupDoc      `json:"triggers"`
	Special     []string               `json:"special"`
	Directional map[string]Directional `json:"directional"`
	Predicate   Predicate              `json:"predicate"`
}

type reactionDoc struct {
	Fields []ir.Field `json:"fields"`
}

type triggerGroupDoc struct {
	Service  string       `json:"service"`
	Triggers []triggerDoc `json:"triggers"`
}

type triggerDoc struct {
	Name   string     `json:"name"`
	Fields []ir.Field `json:"fields"`
}

// Catalog is the compiled vocabulary.
type Catalog struct {
	registries  []Registry
	offered     map[string]map[string]bool // service -> reaction set
	fallback    []string
	reactions   map[string]ir.ReactionSpec
	triggers    []ir.TriggerSpec
	triggerIdx  map[string]int
	special     map[string]bool
	directional map[string]Directional
	markers     map[string]string // marker -> context key
	predicate   Predicate
}

// Default compiles the embedded vocabulary.
func Default() (*Catalog, error) {
	return Compile("catalog.cue", defaultSource)
}

// MustDefault is like Default but panics on error. The embedded document is
// covered by tests, so a failure here is a build defect.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded vocabulary: %v", err))
	}
	return c
}

// Compile builds a Catalog from CUE source.
func Compile(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc document
	if err := v.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}

	return build(doc)
}

func build(doc document) (*Catalog, error) {
	c := &Catalog{
		registries:  doc.Registries,
		offered:     make(map[string]map[string]bool, len(doc.Registries)),
		fallback:    doc.Fallback,
		reactions:   make(map[string]ir.ReactionSpec, len(doc.Reactions)),
		triggerIdx:  make(map[string]int),
		special:     make(map[string]bool, len(doc.Special)),
		directional: doc.Directional,
		markers:     make(map[string]string, len(doc.Directional)),
		predicate:   doc.Predicate,
	}

	for name, r := range doc.Reactions {
		c.reactions[name] = ir.ReactionSpec{Name: name, Fields: withDefaults(r.Fields)}
	}

	for _, reg := range doc.Registries {
		if _, dup := c.offered[reg.Service]; dup {
			return nil, fmt.Errorf("registry %q declared twice", reg.Service)
		}
		set := make(map[string]bool, len(reg.Reactions))
		for _, name := range reg.Reactions {
			if _, ok := c.reactions[name]; !ok {
				return nil, fmt.Errorf("registry %q: %w: %s", reg.Service, ErrUnknownReaction, name)
			}
			set[name] = true
		}
		c.offered[reg.Service] = set
	}

	for _, svc := range doc.Fallback {
		if _, ok := c.offered[svc]; !ok {
			return nil, fmt.Errorf("fallback tier %q has no registry", svc)
		}
	}

	for _, group := range doc.Triggers {
		for _, t := range group.Triggers {
			if _, dup := c.triggerIdx[t.Name]; dup {
				return nil, fmt.Errorf("trigger %q declared twice", t.Name)
			}
			c.triggerIdx[t.Name] = len(c.triggers)
			c.triggers = append(c.triggers, ir.TriggerSpec{
				Name:    t.Name,
				Service: group.Service,
				Fields:  withDefaults(t.Fields),
			})
		}
	}

	for _, name := range doc.Special {
		if _, ok := c.triggerIdx[name]; !ok {
			return nil, fmt.Errorf("special: %w: %s", ErrUnknownTrigger, name)
		}
		c.special[name] = true
	}

	for variant, d := range doc.Directional {
		if !c.special[d.Base] {
			return nil, fmt.Errorf("directional %q: base %q is not a special trigger", variant, d.Base)
		}
		c.markers[d.Marker] = d.Context
	}

	if c.predicate.ValueIndex < 0 || c.predicate.MarkerIndex < 0 || c.predicate.ValueIndex == c.predicate.MarkerIndex {
		return nil, fmt.Errorf("predicate: invalid layout %+v", c.predicate)
	}

	return c, nil
}

// Registries returns the reaction tiers in declaration order.
func (c *Catalog) Registries() []Registry {
	return slices.Clone(c.registries)
}

// Fallback returns the shared tiers consulted after the event's own service.
func (c *Catalog) Fallback() []string {
	return slices.Clone(c.fallback)
}

// Offers reports whether service's registry contains reaction.
func (c *Catalog) Offers(service, reaction string) bool {
	return c.offered[service][reaction]
}

// HasReaction reports whether any registry offers reaction.
func (c *Catalog) HasReaction(reaction string) bool {
	for _, set := range c.offered {
		if set[reaction] {
			return true
		}
	}
	return false
}

// IsSpecial reports whether trigger carries the owner-scoped predicate.
func (c *Catalog) IsSpecial(trigger string) bool {
	return c.special[trigger]
}

// Predicate returns the positional predicate layout.
func (c *Catalog) Predicate() Predicate {
	return c.predicate
}

// MarkerContext returns the event context key compared for marker.
func (c *Catalog) MarkerContext(marker string) (string, bool) {
	key, ok := c.markers[marker]
	return key, ok
}

// Normalize rewrites a directional trigger variant onto its base trigger and
// appends the marker to a copy of args. Args that already carry a marker at
// the predicate's marker position get it overwritten instead, so resending a
// stored task never stacks markers. Other triggers are returned unchanged.
func (c *Catalog) Normalize(trigger string, args []string) (string, []string) {
	d, ok := c.directional[trigger]
	if !ok {
		return trigger, args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args...)
	if i := c.predicate.MarkerIndex; i < len(out) {
		if _, marked := c.markers[out[i]]; marked {
			out[i] = d.Marker
			return d.Base, out
		}
	}
	out = append(out, d.Marker)
	return d.Base, out
}

// Trigger returns the declaration of a trigger.
func (c *Catalog) Trigger(name string) (ir.TriggerSpec, error) {
	i, ok := c.triggerIdx[name]
	if !ok {
		return ir.TriggerSpec{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
	return c.triggers[i], nil
}

// Reaction returns the declaration of a reaction.
func (c *Catalog) Reaction(name string) (ir.ReactionSpec, error) {
	r, ok := c.reactions[name]
	if !ok {
		return ir.ReactionSpec{}, fmt.Errorf("%w: %s", ErrUnknownReaction, name)
	}
	return r, nil
}

// Services lists registry services in declaration order, followed by
// trigger services not already listed.
func (c *Catalog) Services() []string {
	services := make([]string, 0, len(c.registries)+2)
	for _, reg := range c.registries {
		services = append(services, reg.Service)
	}
	for _, t := range c.triggers {
		if !slices.Contains(services, t.Service) {
			services = append(services, t.Service)
		}
	}
	return services
}

// ServicesWithReactions lists services whose registry is non-empty.
func (c *Catalog) ServicesWithReactions() []string {
	var services []string
	for _, reg := range c.registries {
		if len(reg.Reactions) > 0 {
			services = append(services, reg.Service)
		}
	}
	return services
}

// ServicesWithTriggers lists services that emit at least one trigger.
func (c *Catalog) ServicesWithTriggers() []string {
	var services []string
	for _, t := range c.triggers {
		if !slices.Contains(services, t.Service) {
			services = append(services, t.Service)
		}
	}
	return services
}

// ReactionsOf lists the reactions of a service registry.
func (c *Catalog) ReactionsOf(service string) ([]string, error) {
	for _, reg := range c.registries {
		if reg.Service == service {
			return slices.Clone(reg.Reactions), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
}

// TriggersOf lists the triggers emitted by a service.
func (c *Catalog) TriggersOf(service string) ([]string, error) {
	var names []string
	for _, t := range c.triggers {
		if t.Service == service {
			names = append(names, t.Name)
		}
	}
	if names == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return names, nil
}

// Reactions lists every (reaction, service) pair in registry order.
func (c *Catalog) Reactions() []ir.ReactionRef {
	var refs []ir.ReactionRef
	for _, reg := range c.registries {
		for _, name := range reg.Reactions {
			refs = append(refs, ir.ReactionRef{Name: name, Service: reg.Service})
		}
	}
	return refs
}

// CompileError is a vocabulary compilation error with source position.
type CompileError struct {
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Message: first.Error(), Pos: positions[0]}
	}
	return err
}
