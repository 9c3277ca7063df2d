package runtime

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
)

var errOutsideSlice = errors.New("wait armed outside of a behavior slice")

// scope implements behavior.Scope for one instance.
type scope struct {
	agent  *Agent
	inst   *instance
	logger *slog.Logger
}

func (s *scope) AgentID() domain.AgentID     { return s.agent.id }
func (s *scope) Instance() domain.InstanceID { return s.inst.id }
func (s *scope) StateID() domain.StateID     { return s.inst.desc.ID }
func (s *scope) Label() domain.Label         { return s.inst.label }
func (s *scope) Params() domain.Params       { return s.inst.params }
func (s *scope) Frame() uint64               { return s.agent.frame.Load() }
func (s *scope) DeltaTime() time.Duration    { return s.agent.dt }
func (s *scope) Elapsed() time.Duration      { return s.agent.clock - s.inst.enteredAt }
func (s *scope) Logger() *slog.Logger        { return s.logger }
func (s *scope) Owner() any                  { return s.agent.owner }
func (s *scope) SetDebugData(data string)    { s.inst.debug = data }
func (s *scope) CleanupBudget() int          { return s.agent.cfg.CleanupWaitBudget }

func (s *scope) Exiting() bool {
	return !s.inst.phase.Live()
}

// Decode copies the entry parameters into out, converting loosely typed values
// (YAML and JSON numbers, strings) to the target field types.
func (s *scope) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(s.inst.params))
}

func (s *scope) Arm(spec wait.Spec) (*wait.Token, error) {
	if s.Exiting() {
		return nil, domain.ErrInterrupted
	}
	if !s.inst.running {
		return nil, errOutsideSlice
	}
	return s.agent.bridge.Arm(s.inst.id, spec)
}

func (s *scope) Request(req transition.Request) (*transition.Ticket, error) {
	return s.agent.ctrl.request(s.inst.id, req)
}
