package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"gopkg.in/yaml.v3"
)

// DefaultDelta is the frame time used when a scenario sets none.
const DefaultDelta = 16 * time.Millisecond

// Duration is a time.Duration read from YAML as "16ms" or as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		if parsed, err := time.ParseDuration(s); err == nil {
			*d = Duration(parsed)
			return nil
		}
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// AgentSpec attaches one agent at the start of a scenario.
type AgentSpec struct {
	ID     domain.AgentID `yaml:"id"`
	Root   domain.StateID `yaml:"root"`
	Params domain.Params  `yaml:"params,omitempty"`
}

// EventSpec delivers a world event before the given frame is ticked. An empty Agent
// broadcasts.
type EventSpec struct {
	Frame   uint64         `yaml:"frame"`
	Event   string         `yaml:"event"`
	Agent   domain.AgentID `yaml:"agent,omitempty"`
	Payload any            `yaml:"payload,omitempty"`
}

// RequestSpec issues an external transition request before the given frame is ticked.
type RequestSpec struct {
	Frame   uint64             `yaml:"frame"`
	Agent   domain.AgentID     `yaml:"agent"`
	Request transition.Request `yaml:"request"`
}

// Scenario is a catalog plus the agents and timed inputs of one simulation.
type Scenario struct {
	Catalog  `yaml:",inline"`
	Agents   []AgentSpec   `yaml:"agents"`
	Frames   uint64        `yaml:"frames"`
	Delta    Duration      `yaml:"delta"`
	Events   []EventSpec   `yaml:"events,omitempty"`
	Requests []RequestSpec `yaml:"requests,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string, known ...domain.StateID) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := ParseScenario(data, known...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte, known ...domain.StateID) (*Scenario, error) {
	var s Scenario
	if err := decodeStrict(bytes.NewReader(data), &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := s.compile(known); err != nil {
		return nil, err
	}
	if s.Delta == 0 {
		s.Delta = Duration(DefaultDelta)
	}
	if err := s.validate(known); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate(known []domain.StateID) error {
	var errs []error
	exists := func(id domain.StateID) bool {
		_, ok := s.programs[id]
		return ok || slices.Contains(known, id)
	}

	agents := make(map[domain.AgentID]bool, len(s.Agents))
	for i, a := range s.Agents {
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Errorf("agent #%d has no id", i))
		case agents[a.ID]:
			errs = append(errs, fmt.Errorf("agent '%s' declared twice", a.ID))
		case !exists(a.Root):
			errs = append(errs, fmt.Errorf("agent '%s': %w", a.ID, &domain.UnknownStateError{StateID: a.Root}))
		}
		agents[a.ID] = true
	}
	for i, e := range s.Events {
		if e.Event == "" {
			errs = append(errs, fmt.Errorf("event #%d has no name", i))
		}
		if e.Agent != "" && !agents[e.Agent] {
			errs = append(errs, fmt.Errorf("event #%d targets unknown agent '%s'", i, e.Agent))
		}
	}
	for i, r := range s.Requests {
		if !agents[r.Agent] {
			errs = append(errs, fmt.Errorf("request #%d targets unknown agent '%s'", i, r.Agent))
		}
		if err := r.Request.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("request #%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// DeltaTime returns the configured frame time.
func (s *Scenario) DeltaTime() time.Duration {
	return time.Duration(s.Delta)
}

// Attach attaches every scenario agent to w.
func (s *Scenario) Attach(ctx context.Context, w *statestack.World) error {
	for _, a := range s.Agents {
		if err := w.Attach(ctx, a.ID, a.Root, a.Params, nil); err != nil {
			return err
		}
	}
	return nil
}

// Step delivers the inputs scheduled for frame and ticks w once. Frames are 1-based.
// Rejected scripted requests are returned joined with tick errors; they do not stop the
// simulation.
func (s *Scenario) Step(ctx context.Context, w *statestack.World, frame uint64) error {
	var errs []error
	for _, e := range s.Events {
		if e.Frame != frame {
			continue
		}
		var err error
		if e.Agent == "" {
			err = w.Broadcast(e.Event, e.Payload)
		} else {
			err = w.Notify(e.Agent, e.Event, e.Payload)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range s.Requests {
		if r.Frame != frame {
			continue
		}
		if _, err := w.RequestTransition(r.Agent, r.Request); err != nil {
			errs = append(errs, fmt.Errorf("frame %d: %w", frame, err))
		}
	}
	if err := w.Tick(ctx, s.DeltaTime()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
