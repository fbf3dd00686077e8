package appointments

// allowedTransitions lists the statuses reachable from each status.
// Completed and cancelled are terminal; re-applying them is a no-op.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusScheduled, StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusCompleted},
	StatusCancelled: {StatusCancelled},
}

// CanTransition reports whether an appointment in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
