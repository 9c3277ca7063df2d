/*
Package behavior defines the Suspendable Behavior Unit: the code that runs while an agent
is "in" a state.

A Unit is driven by the Tick Scheduler one slice at a time. It suspends by arming a wait
through its Scope and is resumed with the wake result once that wait resolves. Three
ready-made units are provided:

  - Latent: a straight-line function that can block on waits, built on iter.Pull
    coroutines. Its deferred calls are its cleanup.
  - Labeled: a Latent unit with several named entry points.
  - Ticking: a per-frame callback with an optional cleanup.

Forced exits are cooperative: every pending or later wait returns ErrInterrupted at once,
so deferred cleanup runs to completion inside the exiting tick. A cleanup that keeps
waiting past its budget is aborted with a CleanupTimeoutError.
*/
package behavior
