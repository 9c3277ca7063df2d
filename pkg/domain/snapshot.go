package domain

// InstanceSnapshot is a read-only view of one State Instance.
type InstanceSnapshot struct {
	Instance        InstanceID  `json:"instance" yaml:"instance"`
	StateID         StateID     `json:"state_id" yaml:"state_id"`
	Label           Label       `json:"label" yaml:"label"`
	Phase           Phase       `json:"phase" yaml:"phase"`
	Dormant         bool        `json:"dormant" yaml:"dormant"`
	Tags            []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Wait            string      `json:"wait,omitempty" yaml:"wait,omitempty"`
	EnteredFrame    uint64      `json:"entered_frame" yaml:"entered_frame"`
	LastAction      StateAction `json:"last_action,omitempty" yaml:"last_action,omitempty"`
	LastActionFrame uint64      `json:"last_action_frame" yaml:"last_action_frame"`
	DebugData       string      `json:"debug_data,omitempty" yaml:"debug_data,omitempty"`
}

// StackSnapshot is a read-only view of an agent's State Stack, bottom first.
type StackSnapshot struct {
	AgentID AgentID            `json:"agent_id" yaml:"agent_id"`
	Frame   uint64             `json:"frame" yaml:"frame"`
	Pending int                `json:"pending" yaml:"pending"`
	Entries []InstanceSnapshot `json:"entries" yaml:"entries"`
}

// Depth returns the number of instances on the stack.
func (s StackSnapshot) Depth() int {
	return len(s.Entries)
}

// Top returns the currently executing instance.
func (s StackSnapshot) Top() (InstanceSnapshot, bool) {
	if len(s.Entries) == 0 {
		return InstanceSnapshot{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

// Contains reports whether a state is present anywhere on the stack (running or dormant).
func (s StackSnapshot) Contains(id StateID) bool {
	for _, e := range s.Entries {
		if e.StateID == id {
			return true
		}
	}
	return false
}

// IDs returns the descriptor identities bottom first.
func (s StackSnapshot) IDs() []StateID {
	ids := make([]StateID, len(s.Entries))
	for i, e := range s.Entries {
		ids[i] = e.StateID
	}
	return ids
}
