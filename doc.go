/*
Package statestack is a tick-driven, cooperative state machine engine for game agents.

Each agent owns a State Stack. Only the top instance executes; the instances below it are
dormant and resume when everything above them is popped. Behaviors are written as plain
sequential Go functions that suspend on waits (frames, durations, world events, predicates,
child states) and are resumed by the world tick, never by a goroutine of their own.

# Concept

The host registers State Descriptors in a registry, attaches agents to a World and calls
Tick once per frame. Within a tick every agent wakes at most one suspended instance,
resumes exactly one slice of its top instance and then applies the transitions requested
during that slice, in issuance order. Agents are independent: they tick in parallel and a
panic or failed cleanup inside one agent is reported as a fault and contained to it.

# Usage

	reg := registry.NewRegistry().MustRegister(
		registry.Descriptor{
			ID: "patrol",
			Factory: behavior.Latent(func(c *behavior.Context) error {
				for {
					if _, err := c.WaitEvent("noise"); err != nil {
						return err
					}
					if _, err := c.Call("investigate", nil); err != nil {
						return err
					}
				}
			}),
		},
		registry.Descriptor{ID: "investigate", Factory: investigate},
	)

	world := statestack.New(reg)
	_ = world.Attach(ctx, "guard", "patrol", nil, guard)

	for {
		_ = world.Tick(ctx, 16*time.Millisecond)
	}

# Transitions

Push, Pop, Replace and Interrupt are requests, not calls: they return a transition.Ticket
and take effect at the end of the tick. A forced exit (Pop, Replace, Interrupt or Detach)
makes every pending and subsequent wait of the exiting behavior return immediately so its
deferred cleanup runs within the same tick.
*/
package statestack
