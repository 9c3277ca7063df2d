package behavior

import (
	"log/slog"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/aretw0/statestack/pkg/wait"
)

// Scope is the view a running unit has of its own State Instance. It is implemented by
// the runtime and is only valid inside the agent's tick.
type Scope interface {
	AgentID() domain.AgentID
	Instance() domain.InstanceID
	StateID() domain.StateID
	Label() domain.Label
	Params() domain.Params

	// Decode copies the entry parameters into out (a pointer to a struct or map).
	Decode(out any) error

	Frame() uint64
	DeltaTime() time.Duration
	// Elapsed is the world time accumulated since the instance was entered.
	Elapsed() time.Duration

	Logger() *slog.Logger
	// Owner is the host object the agent was attached with (actor, entity, ...).
	Owner() any
	SetDebugData(data string)

	// Arm parks the instance on a new wait. At most one wait may be outstanding.
	Arm(spec wait.Spec) (*wait.Token, error)
	// Request issues a transition on behalf of this instance.
	Request(req transition.Request) (*transition.Ticket, error)

	// Exiting reports whether the instance is being removed from the stack.
	Exiting() bool
	// CleanupBudget is the number of waits tolerated while exiting.
	CleanupBudget() int
}

// Unit is one Suspendable Behavior Unit.
//
// Start runs the first slice, Resume each following one. RequestExit forces the unit to
// finish and runs its cleanup synchronously; it returns a non-nil error only when the
// cleanup itself failed (CleanupTimeoutError or a panic). Once Finished reports true,
// Err and Result describe the outcome.
type Unit interface {
	Start(s Scope)
	Resume(s Scope, r wait.Result)
	RequestExit(s Scope) error
	Finished() bool
	Err() error
	Result() any
}

// Factory builds a fresh unit for one State Instance entering at label.
type Factory func(label domain.Label) (Unit, error)
