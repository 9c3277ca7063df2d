/*
Package wait implements the Event/Wait Bridge between suspended behaviors and the world.

A behavior that needs to pause arms a Token through its agent's Bridge. The Bridge resolves
tokens when their condition is met (timers advanced once per tick, named world events,
polled predicates, child-state completion) and the Transition Controller cancels them on a
forced exit, so a parked behavior always gets the chance to run its cleanup.

Completion is idempotent: the first resolution of a Token wins and every later Signal,
Cancel or Reject is a no-op that reports false.
*/
package wait
