package ormlite

import "sync"

// Action classifies the mutation that produced a ChangeEvent.
type Action int

// Actions. Named Action* rather than bare Insert/Update/Delete/Upsert to
// avoid colliding with the like-named top-level CRUD functions.
const (
	ActionInsert Action = iota
	ActionUpdate
	ActionDelete
	ActionUpsert
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "Insert"
	case ActionUpdate:
		return "Update"
	case ActionDelete:
		return "Delete"
	case ActionUpsert:
		return "Upsert"
	default:
		return "Unknown"
	}
}

// ChangeEvent describes one successful mutation against a mapped table.
type ChangeEvent struct {
	Table  *TableDescriptor
	Action Action
}

// ChangeHandler is invoked synchronously, in subscription order, after a
// mutation that affected at least one row. A panic in a handler propagates
// to the caller of the triggering method.
type ChangeHandler func(ChangeEvent)

// changeNotifier dispatches ChangeEvents to subscribers registered via
// Connection.OnChange.
type changeNotifier struct {
	mu       sync.Mutex
	handlers []ChangeHandler
}

// subscribe registers h and returns an unsubscribe function.
func (n *changeNotifier) subscribe(h ChangeHandler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.handlers = append(n.handlers, h)
	idx := len(n.handlers) - 1

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		if idx < len(n.handlers) {
			n.handlers[idx] = nil
		}
	}
}

// fire dispatches ev to every live subscriber, in subscription order, on
// the calling goroutine.
func (n *changeNotifier) fire(ev ChangeEvent) {
	n.mu.Lock()
	handlers := make([]ChangeHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(ev)
		}
	}
}

// notifyIfAffected fires ev on n if affected > 0, per the change-notifier's
// only-on-positive-row-count contract.
func (n *changeNotifier) notifyIfAffected(affected int64, table *TableDescriptor, action Action) {
	if affected > 0 {
		n.fire(ChangeEvent{Table: table, Action: action})
	}
}
