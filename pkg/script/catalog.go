package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/wait"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// RawStep is one undecoded step, keyed by field name.
type RawStep map[string]any

// StateSpec is the YAML form of one scripted state. Cleanup steps run when the state is
// force-exited; their waits return immediately.
type StateSpec struct {
	ID          domain.StateID             `yaml:"id"`
	Description string                     `yaml:"description,omitempty"`
	Tags        []string                   `yaml:"tags,omitempty"`
	OnEnter     []RawStep                  `yaml:"on_enter,omitempty"`
	Labels      map[domain.Label][]RawStep `yaml:"labels,omitempty"`
	Cleanup     []RawStep                  `yaml:"cleanup,omitempty"`
	OnExit      []RawStep                  `yaml:"on_exit,omitempty"`
	// Blocklist names states that may not be pushed or replaced onto this one.
	Blocklist []domain.StateID `yaml:"blocklist,omitempty"`
}

// Catalog is a parsed and validated set of scripted states.
type Catalog struct {
	States []StateSpec `yaml:"states"`

	programs map[domain.StateID]*program
}

type program struct {
	spec    StateSpec
	onEnter []instant
	labels  map[domain.Label][]step
	cleanup []step
	onExit  []instant
	links   []registry.Link
}

// ParseCatalog decodes and validates a catalog. known lists states registered from code
// that scripts may reference.
func ParseCatalog(data []byte, known ...domain.StateID) (*Catalog, error) {
	var c Catalog
	if err := decodeStrict(bytes.NewReader(data), &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := c.compile(known); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeStrict(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// IDs returns the scripted state identities in declaration order.
func (c *Catalog) IDs() []domain.StateID {
	ids := make([]domain.StateID, len(c.States))
	for i, s := range c.States {
		ids[i] = s.ID
	}
	return ids
}

// Descriptors builds one registry descriptor per scripted state.
func (c *Catalog) Descriptors() []registry.Descriptor {
	out := make([]registry.Descriptor, 0, len(c.States))
	for _, spec := range c.States {
		out = append(out, c.programs[spec.ID].descriptor())
	}
	return out
}

// Register adds every scripted state to reg.
func (c *Catalog) Register(reg *registry.Registry) error {
	for _, d := range c.Descriptors() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) compile(known []domain.StateID) error {
	c.programs = make(map[domain.StateID]*program, len(c.States))

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidCatalog}, args...)...))
	}

	for i, spec := range c.States {
		if spec.ID == "" {
			fail("state #%d has no id", i)
			continue
		}
		if _, dup := c.programs[spec.ID]; dup {
			fail("state '%s' declared twice", spec.ID)
			continue
		}

		p := &program{spec: spec, labels: make(map[domain.Label][]step)}
		where := func(section string, idx int) string {
			return fmt.Sprintf("state '%s' %s step %d", spec.ID, section, idx)
		}

		for j, raw := range spec.OnEnter {
			s, err := decodeInstant(raw)
			if err != nil {
				fail("%s: %v", where("on_enter", j), err)
				continue
			}
			p.onEnter = append(p.onEnter, s)
		}
		for j, raw := range spec.OnExit {
			s, err := decodeInstant(raw)
			if err != nil {
				fail("%s: %v", where("on_exit", j), err)
				continue
			}
			p.onExit = append(p.onExit, s)
		}
		for j, raw := range spec.Cleanup {
			s, err := decodeStep(raw)
			if err == nil && !cleanupSafe(s) {
				err = fmt.Errorf("op %v cannot run during cleanup", raw["op"])
			}
			if err != nil {
				fail("%s: %v", where("cleanup", j), err)
				continue
			}
			p.cleanup = append(p.cleanup, s)
		}
		for _, label := range slices.Sorted(maps.Keys(spec.Labels)) {
			steps := []step{}
			for j, raw := range spec.Labels[label] {
				s, err := decodeStep(raw)
				if err != nil {
					fail("%s: %v", where("label '"+string(label)+"'", j), err)
					continue
				}
				steps = append(steps, s)
				if l, ok := s.(linker); ok {
					p.links = append(p.links, l.link())
				}
			}
			p.labels[label] = steps
		}
		c.programs[spec.ID] = p
	}

	if len(errs) == 0 {
		errs = c.checkReferences(known)
	}
	return errors.Join(errs...)
}

// checkReferences verifies every referenced state and label exists.
func (c *Catalog) checkReferences(known []domain.StateID) []error {
	var errs []error
	exists := func(id domain.StateID) bool {
		_, ok := c.programs[id]
		return ok || slices.Contains(known, id)
	}

	for _, spec := range c.States {
		p := c.programs[spec.ID]
		for _, id := range spec.Blocklist {
			if !exists(id) {
				errs = append(errs, fmt.Errorf("%w: state '%s' blocklist: %w", ErrInvalidCatalog, spec.ID, &domain.UnknownStateError{StateID: id}))
			}
		}
		for label, steps := range p.labels {
			for j, s := range steps {
				where := fmt.Sprintf("state '%s' label '%s' step %d", spec.ID, label, j)

				if g, ok := s.(*gotoLabelStep); ok && !p.hasLabel(g.Label) {
					errs = append(errs, fmt.Errorf("%w: %s: label '%s' is not defined", ErrInvalidCatalog, where, g.Label))
				}
				if i, ok := s.(*interruptStep); ok && !exists(i.Ancestor) {
					errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, where, &domain.UnknownStateError{StateID: i.Ancestor}))
				}

				l, ok := s.(linker)
				if !ok {
					continue
				}
				link := l.link()
				if link.Target == "" || !exists(link.Target) {
					if link.Target != "" {
						errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, where, &domain.UnknownStateError{StateID: link.Target}))
					}
					continue
				}
				if target, scripted := c.programs[link.Target]; scripted && link.Label != "" && !target.hasLabel(link.Label) {
					errs = append(errs, fmt.Errorf("%w: %s: state '%s' has no label '%s'", ErrInvalidCatalog, where, link.Target, link.Label))
				}
			}
		}
	}
	return errs
}

func (p *program) hasLabel(label domain.Label) bool {
	if len(p.labels) == 0 {
		return label.OrDefault() == domain.DefaultLabel
	}
	_, ok := p.labels[label.OrDefault()]
	return ok
}

func (p *program) descriptor() registry.Descriptor {
	d := registry.Descriptor{
		ID:          p.spec.ID,
		Description: p.spec.Description,
		Tags:        p.spec.Tags,
		Links:       p.links,
		Blocklist:   p.spec.Blocklist,
	}

	if len(p.labels) == 0 {
		d.Labels = []domain.Label{domain.DefaultLabel}
		d.Factory = behavior.Latent(p.body(nil))
	} else {
		bodies := make(map[domain.Label]behavior.Func, len(p.labels))
		for label, steps := range p.labels {
			bodies[label] = p.body(steps)
		}
		d.Labels = slices.Sorted(maps.Keys(p.labels))
		d.Factory = behavior.Labeled(bodies)
	}

	if len(p.onEnter) > 0 {
		d.OnEnter = func(s behavior.Scope) {
			for _, st := range p.onEnter {
				st.apply(s)
			}
		}
	}
	if len(p.onExit) > 0 {
		d.OnExit = func(s behavior.Scope) {
			for _, st := range p.onExit {
				st.apply(s)
			}
		}
	}
	return d
}

// body runs steps; a state without labels holds until it is exited.
func (p *program) body(steps []step) behavior.Func {
	cleanup := p.cleanup
	return func(c *behavior.Context) error {
		if len(cleanup) > 0 {
			defer func() {
				if !c.Exiting() {
					return
				}
				if err := runCleanup(c, cleanup); err != nil {
					c.Logger().Warn("cleanup step failed", "error", err)
				}
			}()
		}
		if steps == nil {
			_, err := c.WaitManual(func(*wait.Token) {})
			return err
		}
		return run(c, steps)
	}
}

func decodeInstant(raw RawStep) (instant, error) {
	s, err := decodeStep(raw)
	if err != nil {
		return nil, err
	}
	i, ok := s.(instant)
	if !ok {
		return nil, fmt.Errorf("op %v cannot run in a lifecycle hook", raw["op"])
	}
	return i, nil
}

func cleanupSafe(s step) bool {
	switch s.(type) {
	case *logStep, *debugStep, *waitFramesStep, *waitSecondsStep, *waitEventStep, *yieldStep:
		return true
	}
	return false
}
