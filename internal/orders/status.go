// Package orders exposes the order lifecycle table and the thin service that
// applies transitions through the order backend.
package orders

// Status represents the lifecycle stage of a customer order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusChecking   Status = "checking"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusConfirmed  Status = "confirmed"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusChecking, StatusDelivered, StatusCancelled, StatusConfirmed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further progression is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Action is a request to move an order.
type Action string

const (
	ActionProcess Action = "process"
	ActionCheck   Action = "check"
	ActionDeliver Action = "deliver"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

// IsValid checks if the action is known.
func (a Action) IsValid() bool {
	switch a {
	case ActionProcess, ActionCheck, ActionDeliver, ActionConfirm, ActionCancel:
		return true
	default:
		return false
	}
}

// transitions is the progression table. confirm is handled separately since
// it does not move the status.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionProcess: StatusProcessing,
		ActionCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		ActionProcess: StatusProcessing,
		ActionCancel:  StatusCancelled,
	},
	StatusProcessing: {
		ActionCheck:  StatusChecking,
		ActionCancel: StatusCancelled,
	},
	StatusChecking: {
		ActionDeliver: StatusDelivered,
		ActionCancel:  StatusCancelled,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// actionOrder fixes the order actions are listed in.
var actionOrder = []Action{ActionProcess, ActionCheck, ActionDeliver, ActionConfirm, ActionCancel}

// Next returns the status reached by applying action to from.
func Next(from Status, action Action) (Status, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// CanApply reports whether action is legal for the order as it stands.
func CanApply(o Order, action Action) bool {
	if action == ActionConfirm {
		return !o.IsConfirmed() && o.Status != StatusCancelled && o.Status.IsValid()
	}
	_, ok := Next(o.Status, action)
	return ok
}

// Allowed lists the legal actions for the order.
func Allowed(o Order) []Action {
	out := make([]Action, 0, len(actionOrder))
	for _, a := range actionOrder {
		if CanApply(o, a) {
			out = append(out, a)
		}
	}
	return out
}
