package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/statestack/pkg/behavior"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/mitchellh/mapstructure"
)

// Op names a step kind.
type Op string

const (
	OpLog         Op = "log"
	OpDebug       Op = "debug"
	OpWaitFrames  Op = "wait_frames"
	OpWaitSeconds Op = "wait_seconds"
	OpWaitEvent   Op = "wait_event"
	OpYield       Op = "yield"
	OpPush        Op = "push"
	OpCall        Op = "call"
	OpReplace     Op = "replace"
	OpPop         Op = "pop"
	OpInterrupt   Op = "interrupt"
	OpGotoLabel   Op = "goto_label"
	OpFinish      Op = "finish"
)

// ErrUnknownOp is returned for steps whose op is not recognized.
var ErrUnknownOp = errors.New("unknown op")

// errStop ends a step list without error.
var errStop = errors.New("stop")

// step is one compiled instruction.
type step interface {
	exec(c *behavior.Context) error
}

// instant steps never suspend and may run in on_enter / on_exit hooks.
type instant interface {
	step
	apply(s behavior.Scope)
}

// linker is implemented by steps that reference another state.
type linker interface {
	link() registry.Link
}

type logStep struct {
	Message string `mapstructure:"message"`
	Level   string `mapstructure:"level"`
}

func (s *logStep) exec(c *behavior.Context) error {
	s.apply(c.Scope())
	return nil
}

func (s *logStep) apply(sc behavior.Scope) {
	level := slog.LevelInfo
	switch s.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	sc.Logger().Log(context.Background(), level, s.Message, "frame", sc.Frame(), "label", string(sc.Label()))
}

type debugStep struct {
	Text string `mapstructure:"text"`
}

func (s *debugStep) exec(c *behavior.Context) error {
	s.apply(c.Scope())
	return nil
}

func (s *debugStep) apply(sc behavior.Scope) {
	sc.SetDebugData(s.Text)
}

type waitFramesStep struct {
	Frames int `mapstructure:"frames"`
}

func (s *waitFramesStep) exec(c *behavior.Context) error {
	return c.WaitFrames(s.Frames)
}

type waitSecondsStep struct {
	Seconds float64 `mapstructure:"seconds"`
}

func (s *waitSecondsStep) exec(c *behavior.Context) error {
	return c.WaitFor(time.Duration(s.Seconds * float64(time.Second)))
}

type waitEventStep struct {
	Event string `mapstructure:"event"`
	// Debug copies a string payload into the instance's debug data.
	Debug bool `mapstructure:"debug"`
}

func (s *waitEventStep) exec(c *behavior.Context) error {
	payload, err := c.WaitEvent(s.Event)
	if err != nil {
		return err
	}
	if s.Debug {
		c.SetDebugData(fmt.Sprint(payload))
	}
	return nil
}

type yieldStep struct{}

func (s *yieldStep) exec(c *behavior.Context) error {
	return c.Yield()
}

// Entry is shared by the steps that enter a state.
type Entry struct {
	State  domain.StateID `mapstructure:"state"`
	Label  domain.Label   `mapstructure:"label"`
	Params domain.Params  `mapstructure:"params"`
}

type pushStep struct {
	Entry `mapstructure:",squash"`
}

func (s *pushStep) exec(c *behavior.Context) error {
	if _, err := c.Request(transition.Push(s.State, s.Params).AtLabel(s.Label)); err != nil {
		return err
	}
	return c.Yield()
}

func (s *pushStep) link() registry.Link {
	return registry.Link{Kind: domain.TransitionPush, Target: s.State, Label: s.Label}
}

type callStep struct {
	Entry `mapstructure:",squash"`
}

func (s *callStep) exec(c *behavior.Context) error {
	res, err := c.CallLabel(s.State, s.Label, s.Params)
	if err != nil {
		return err
	}
	if res != nil {
		c.Logger().Debug("call returned", "state", string(s.State), "result", res)
	}
	return nil
}

func (s *callStep) link() registry.Link {
	return registry.Link{Kind: domain.TransitionPush, Target: s.State, Label: s.Label}
}

type replaceStep struct {
	Entry `mapstructure:",squash"`
}

func (s *replaceStep) exec(c *behavior.Context) error {
	if _, err := c.Request(transition.Replace(s.State, s.Params).AtLabel(s.Label)); err != nil {
		return err
	}
	return c.Yield()
}

func (s *replaceStep) link() registry.Link {
	return registry.Link{Kind: domain.TransitionReplace, Target: s.State, Label: s.Label}
}

type popStep struct{}

// exec parks until the pop is applied. A rejected pop lets the steps continue.
func (s *popStep) exec(c *behavior.Context) error {
	if _, err := c.Pop(); err != nil {
		return err
	}
	return c.Yield()
}

type interruptStep struct {
	Ancestor domain.StateID        `mapstructure:"ancestor"`
	Then     domain.TransitionKind `mapstructure:"then"`
	Entry    `mapstructure:",squash"`
}

func (s *interruptStep) exec(c *behavior.Context) error {
	req := transition.Interrupt(s.Ancestor)
	if s.Then != "" {
		req = transition.InterruptThen(s.Ancestor, s.Then, s.State, s.Params).AtLabel(s.Label)
	}
	if _, err := c.Request(req); err != nil {
		return err
	}
	return c.Yield()
}

func (s *interruptStep) link() registry.Link {
	if s.Then != "" {
		return registry.Link{Kind: domain.TransitionInterrupt, Target: s.State, Label: s.Label}
	}
	return registry.Link{Kind: domain.TransitionInterrupt, Target: s.Ancestor}
}

type gotoLabelStep struct {
	Label domain.Label `mapstructure:"label"`
}

func (s *gotoLabelStep) exec(c *behavior.Context) error {
	return c.GotoLabel(s.Label)
}

type finishStep struct {
	Result any `mapstructure:"result"`
}

func (s *finishStep) exec(c *behavior.Context) error {
	if err := c.Finish(s.Result); err != nil {
		return err
	}
	return errStop
}

func newStep(op Op) (step, error) {
	switch op {
	case OpLog:
		return &logStep{}, nil
	case OpDebug:
		return &debugStep{}, nil
	case OpWaitFrames:
		return &waitFramesStep{}, nil
	case OpWaitSeconds:
		return &waitSecondsStep{}, nil
	case OpWaitEvent:
		return &waitEventStep{}, nil
	case OpYield:
		return &yieldStep{}, nil
	case OpPush:
		return &pushStep{}, nil
	case OpCall:
		return &callStep{}, nil
	case OpReplace:
		return &replaceStep{}, nil
	case OpPop:
		return &popStep{}, nil
	case OpInterrupt:
		return &interruptStep{}, nil
	case OpGotoLabel:
		return &gotoLabelStep{}, nil
	case OpFinish:
		return &finishStep{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, op)
	}
}

// decodeStep turns one raw YAML step into a compiled step. Unknown fields are errors.
func decodeStep(raw RawStep) (step, error) {
	opName, _ := raw["op"].(string)
	if opName == "" {
		return nil, fmt.Errorf("step has no op")
	}
	s, err := newStep(Op(opName))
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "op" {
			fields[k] = v
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           s,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("op %s: %w", opName, err)
	}
	if err := validateStep(s); err != nil {
		return nil, fmt.Errorf("op %s: %w", opName, err)
	}
	return s, nil
}

func validateStep(s step) error {
	switch s := s.(type) {
	case *waitFramesStep:
		if s.Frames < 0 {
			return fmt.Errorf("frames must not be negative")
		}
	case *waitSecondsStep:
		if s.Seconds < 0 {
			return fmt.Errorf("seconds must not be negative")
		}
	case *waitEventStep:
		if s.Event == "" {
			return fmt.Errorf("event is required")
		}
	case *pushStep:
		return requireState(s.State)
	case *callStep:
		return requireState(s.State)
	case *replaceStep:
		return requireState(s.State)
	case *interruptStep:
		if s.Ancestor == "" {
			return fmt.Errorf("ancestor is required")
		}
		return transition.Request{
			Kind: domain.TransitionInterrupt, Ancestor: s.Ancestor, Then: s.Then, Target: s.State,
		}.Validate()
	case *gotoLabelStep:
		if s.Label == "" {
			return fmt.Errorf("label is required")
		}
	}
	return nil
}

func requireState(id domain.StateID) error {
	if id == "" {
		return fmt.Errorf("state is required")
	}
	return nil
}

// run executes steps in order. Finish ends the list early without error.
func run(c *behavior.Context, steps []step) error {
	for _, s := range steps {
		if err := s.exec(c); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// runCleanup executes cleanup steps to the end. Waits return ErrInterrupted while the
// state is being exited; that never stops the remaining steps.
func runCleanup(c *behavior.Context, steps []step) error {
	var errs []error
	for _, s := range steps {
		err := s.exec(c)
		if err == nil || errors.Is(err, domain.ErrInterrupted) {
			continue
		}
		if errors.Is(err, errStop) {
			break
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
