package domain

// TransitionKind selects how a Transition Request mutates the State Stack.
type TransitionKind string

const (
	TransitionPush      TransitionKind = "push"      // Nest a child; the parent stays dormant
	TransitionPop       TransitionKind = "pop"       // Remove the top; its parent resumes
	TransitionReplace   TransitionKind = "replace"   // Pop then Push at the same depth
	TransitionInterrupt TransitionKind = "interrupt" // Unwind to an ancestor, then optionally Push/Replace
)

// Valid reports whether the kind is one of the known transition kinds.
func (k TransitionKind) Valid() bool {
	switch k {
	case TransitionPush, TransitionPop, TransitionReplace, TransitionInterrupt:
		return true
	}
	return false
}

// Enters reports whether applying the kind creates a new State Instance.
func (k TransitionKind) Enters() bool {
	return k == TransitionPush || k == TransitionReplace
}
