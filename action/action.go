// Package action contains reified store effects: descriptions of the
// writes a bundle change needs, without performing them.
package action

// Action is an effect to be executed.
type Action interface {
	isAction()
}

// SetMemberStatus publishes a member's enabled flag.
type SetMemberStatus struct {
	Bundle  string
	Member  string
	Enabled bool
}

func (SetMemberStatus) isAction() {}

// DeleteMember removes a member record.
type DeleteMember struct {
	Bundle string
	Member string
}

func (DeleteMember) isAction() {}

// DeleteBundle removes a bundle record.
type DeleteBundle struct {
	Name string
}

func (DeleteBundle) isAction() {}

// Sequence runs actions in order as one unit. A failing action does
// not stop the ones after it.
type Sequence struct {
	Actions []Action
}

func (Sequence) isAction() {}
