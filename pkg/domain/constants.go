package domain

// Identities used across the engine.
type (
	// StateID identifies a State Descriptor (e.g. "patrol", "combat.melee").
	StateID string

	// AgentID identifies the simulated entity that hosts a State Stack.
	AgentID string

	// InstanceID identifies one live State Instance. It is unique and monotonic per agent.
	InstanceID uint64

	// Label names an entry point inside a state.
	Label string
)

// DefaultLabel is the entry point a state starts at when no label is requested.
const DefaultLabel Label = "default"

// OrDefault returns the label, or DefaultLabel when empty.
func (l Label) OrDefault() Label {
	if l == "" {
		return DefaultLabel
	}
	return l
}

// Params holds the entry parameters of a State Instance.
type Params map[string]any

// Clone returns a shallow copy, so instances never share a mutable map.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
