package topology

import "fmt"

// =============================================================================
// Service Lifecycle
// =============================================================================

// State is the lifecycle state of one service.
type State int

const (
	NotCreated State = iota
	CreatedOrStopped
	Running
)

func (s State) String() string {
	switch s {
	case NotCreated:
		return "NOT_CREATED"
	case CreatedOrStopped:
		return "CREATED_OR_STOPPED"
	case Running:
		return "RUNNING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Op is a lifecycle operation requested on a service.
type Op string

const (
	OpCreate Op = "create"
	OpStart  Op = "start"
	OpStop   Op = "stop"
	OpRemove Op = "remove"
)

// Action tells the caller what to do with a requested operation.
type Action int

const (
	// ActionApply performs the runtime effect and moves to Transition.Next.
	ActionApply Action = iota
	// ActionIgnore does nothing; the service is already where the op leads.
	ActionIgnore
	// ActionRefuse does nothing; the op is not allowed from this state.
	ActionRefuse
)

func (a Action) String() string {
	switch a {
	case ActionApply:
		return "apply"
	case ActionIgnore:
		return "ignore"
	case ActionRefuse:
		return "refuse"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Commit says whether the new state is recorded before or after the runtime
// effect. Committing before means a failed effect still leaves the service
// in the new state, which makes later teardown attempt it.
type Commit int

const (
	CommitBefore Commit = iota
	CommitAfter
)

// Transition is the outcome of a (state, op) lookup.
type Transition struct {
	Action Action
	Commit Commit
	Next   State
}

var (
	apply = func(c Commit, next State) Transition {
		return Transition{Action: ActionApply, Commit: c, Next: next}
	}
	ignore = Transition{Action: ActionIgnore}
	refuse = Transition{Action: ActionRefuse}
)

// transitions is the complete lifecycle table.
var transitions = map[State]map[Op]Transition{
	NotCreated: {
		OpCreate: apply(CommitBefore, CreatedOrStopped),
		OpStart:  refuse,
		OpStop:   ignore,
		OpRemove: ignore,
	},
	CreatedOrStopped: {
		OpCreate: ignore,
		OpStart:  apply(CommitBefore, Running),
		OpStop:   ignore,
		OpRemove: apply(CommitAfter, NotCreated),
	},
	Running: {
		OpCreate: ignore,
		OpStart:  ignore,
		OpStop:   apply(CommitAfter, CreatedOrStopped),
		OpRemove: refuse,
	},
}

// Plan looks up what op means in state. Unknown combinations are refused.
// Ignored and refused transitions keep the current state as Next.
func Plan(state State, op Op) Transition {
	tr, ok := transitions[state][op]
	if !ok {
		tr = refuse
	}
	if tr.Action != ActionApply {
		tr.Next = state
	}
	return tr
}
