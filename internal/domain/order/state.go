package order

type WorkflowStatus string

const (
	WorkflowNormal     WorkflowStatus = "normal"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowOnHold     WorkflowStatus = "on_hold"
)

func ParseWorkflowStatus(s string) (WorkflowStatus, error) {
	switch ws := WorkflowStatus(s); ws {
	case WorkflowNormal, WorkflowInProgress, WorkflowOnHold:
		return ws, nil
	}
	return "", ErrInvalidWorkflowStatus
}

// WorkflowState implements the state pattern for the operational workflow flag.
type WorkflowState interface {
	Status() WorkflowStatus
	Enter(o *Order, to WorkflowStatus, reason string) (WorkflowState, error)
	AllowsFulfillment() bool
}

func workflowStateOf(s WorkflowStatus) WorkflowState {
	switch s {
	case WorkflowInProgress:
		return inProgressState{}
	case WorkflowOnHold:
		return onHoldState{}
	default:
		return normalState{}
	}
}

// enter applies the shared rules: on_hold needs a reason, every other status clears it.
func enter(o *Order, to WorkflowStatus, reason string) (WorkflowState, error) {
	switch to {
	case WorkflowOnHold:
		if reason == "" {
			return nil, ErrHoldReasonRequired
		}
		o.HoldReason = reason
		return onHoldState{}, nil
	case WorkflowInProgress:
		o.HoldReason = ""
		return inProgressState{}, nil
	case WorkflowNormal:
		o.HoldReason = ""
		return normalState{}, nil
	}
	return nil, ErrInvalidWorkflowStatus
}

type normalState struct{}

func (normalState) Status() WorkflowStatus { return WorkflowNormal }

func (normalState) Enter(o *Order, to WorkflowStatus, reason string) (WorkflowState, error) {
	if to == WorkflowNormal {
		return nil, ErrInvalidStateTransition
	}
	return enter(o, to, reason)
}

func (normalState) AllowsFulfillment() bool { return true }

type inProgressState struct{}

func (inProgressState) Status() WorkflowStatus { return WorkflowInProgress }

func (inProgressState) Enter(o *Order, to WorkflowStatus, reason string) (WorkflowState, error) {
	if to == WorkflowInProgress {
		return nil, ErrInvalidStateTransition
	}
	return enter(o, to, reason)
}

func (inProgressState) AllowsFulfillment() bool { return true }

type onHoldState struct{}

func (onHoldState) Status() WorkflowStatus { return WorkflowOnHold }

// Enter from on_hold back into on_hold replaces the reason.
func (onHoldState) Enter(o *Order, to WorkflowStatus, reason string) (WorkflowState, error) {
	if to == WorkflowOnHold && reason == o.HoldReason {
		return nil, ErrInvalidStateTransition
	}
	return enter(o, to, reason)
}

func (onHoldState) AllowsFulfillment() bool { return false }
