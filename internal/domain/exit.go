package domain

import "fmt"

// ExitActionKind enumerates the closed set of actions the exit state machine
// may emit. The caller executes them; the machine never touches the exchange.
type ExitActionKind int

const (
	ActionCloseFull ExitActionKind = iota
	ActionClosePartial
	ActionMoveStop
	ActionActivateTrailing
)

func (k ExitActionKind) String() string {
	switch k {
	case ActionCloseFull:
		return "CLOSE_FULL"
	case ActionClosePartial:
		return "CLOSE_PARTIAL"
	case ActionMoveStop:
		return "MOVE_STOP"
	case ActionActivateTrailing:
		return "ACTIVATE_TRAILING"
	default:
		return fmt.Sprintf("ExitActionKind(%d)", int(k))
	}
}

// ExitAction is a tagged variant; only the field matching Kind is meaningful.
type ExitAction struct {
	Kind     ExitActionKind
	Percent  float64     // CLOSE_PARTIAL: percent of remaining quantity
	Price    float64     // MOVE_STOP: new stop price
	Distance float64     // ACTIVATE_TRAILING: trail distance in price units
	Reason   CloseReason // CLOSE_*: why the close was requested
}

// CloseFull builds a full-close action.
func CloseFull(reason CloseReason) ExitAction {
	return ExitAction{Kind: ActionCloseFull, Reason: reason}
}

// ClosePartial builds a partial-close action for a percentage of the
// remaining quantity.
func ClosePartial(percent float64, reason CloseReason) ExitAction {
	return ExitAction{Kind: ActionClosePartial, Percent: percent, Reason: reason}
}

// MoveStop builds a stop-relocation action.
func MoveStop(price float64) ExitAction {
	return ExitAction{Kind: ActionMoveStop, Price: price}
}

// ActivateTrailing builds a trailing-stop activation action.
func ActivateTrailing(distance float64) ExitAction {
	return ExitAction{Kind: ActionActivateTrailing, Distance: distance}
}
