/*
Package script builds state descriptors from YAML catalogs.

Each state lists plain steps per entry label; the steps run as a latent behavior, so a
designer can express "wait three frames, call patrol, start over" without Go code:

	states:
	  - id: idle
	    tags: [ambient]
	    on_enter: [{op: log, message: "idle"}]
	    labels:
	      default:
	        - {op: wait_frames, frames: 3}
	        - {op: call, state: patrol, params: {route: a}}
	        - {op: goto_label, label: default}
	    cleanup: [{op: debug, text: "interrupted"}]
	    on_exit: [{op: log, message: "bye"}]

Catalogs are validated when they are parsed: unknown ops, unknown fields, references to
unregistered states and labels all fail before any agent runs.

Scenario files extend a catalog with agents, a frame budget and timed events, and drive a
statestack.World frame by frame (see Scenario.Step).
*/
package script
