package expense

import (
	"slices"

	"splitpay/internal/shared/auth"
)

// Actions a viewer can take on an expense.
const (
	ActionNotifyPaid = "notify_paid"
	ActionConfirm    = "confirm"
	ActionReject     = "reject"
	ActionForcePaid  = "force_paid"
	ActionCheckout   = "checkout"
	ActionDelete     = "delete"
)

type actor int

const (
	actorPayer actor = iota
	actorDebtor
)

type transition struct {
	actor   actor
	from    string
	to      string
	methods []string // empty means any method
}

// transitions are the status-changing actions. checkout and delete are
// handled outside the state machine.
var transitions = map[string]transition{
	ActionNotifyPaid: {actor: actorDebtor, from: StatusPending, to: StatusWaitingApproval, methods: []string{MethodTransfer, MethodCash}},
	ActionConfirm:    {actor: actorPayer, from: StatusWaitingApproval, to: StatusPaid},
	ActionReject:     {actor: actorPayer, from: StatusWaitingApproval, to: StatusPending},
	ActionForcePaid:  {actor: actorPayer, from: StatusPending, to: StatusPaid},
}

// Transition validates action for viewer and returns the status change it
// causes. It returns ErrForbidden when the viewer has the wrong role and
// ErrInvalidTransition when the current status or method does not allow it.
func Transition(e *Expense, viewer auth.Session, action string) (from, to string, err error) {
	t, ok := transitions[action]
	if !ok {
		return "", "", ErrUnknownAction
	}

	switch t.actor {
	case actorPayer:
		if !e.IsPayer(viewer) {
			return "", "", ErrForbidden
		}
	case actorDebtor:
		if !e.IsDebtor(viewer) {
			return "", "", ErrForbidden
		}
	}

	if e.Status != t.from {
		return "", "", ErrInvalidTransition
	}
	if len(t.methods) > 0 && !slices.Contains(t.methods, e.Method) {
		return "", "", ErrInvalidTransition
	}
	return t.from, t.to, nil
}

// ActionsFor lists what viewer may do with e, in display order. Paid
// expenses have no actions.
func ActionsFor(e *Expense, viewer auth.Session) []string {
	actions := []string{}
	if e.Status == StatusPaid {
		return actions
	}

	if e.IsPayer(viewer) {
		for _, a := range []string{ActionConfirm, ActionReject, ActionForcePaid} {
			if _, _, err := Transition(e, viewer, a); err == nil {
				actions = append(actions, a)
			}
		}
		return append(actions, ActionDelete)
	}

	if e.IsDebtor(viewer) && e.Status == StatusPending {
		if e.Method == MethodLink {
			return append(actions, ActionCheckout)
		}
		if _, _, err := Transition(e, viewer, ActionNotifyPaid); err == nil {
			actions = append(actions, ActionNotifyPaid)
		}
	}
	return actions
}

// CanCheckout reports whether viewer may start a hosted checkout for e.
func CanCheckout(e *Expense, viewer auth.Session) error {
	if !e.IsDebtor(viewer) {
		return ErrForbidden
	}
	if e.Method != MethodLink || e.Status != StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// Settleable reports whether a confirmed processor payment may mark e paid.
func Settleable(e *Expense) bool {
	return e.Method == MethodLink && (e.Status == StatusPending || e.Status == StatusWaitingApproval)
}
