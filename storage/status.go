package storage

// Status is the order lifecycle state. Transitions follow a fixed directed
// graph with no back-edges; completed, failed_invitation, and failed_payment
// are terminal for automated processing.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPaid             Status = "paid"
	StatusCompleted        Status = "completed"
	StatusFailedInvitation Status = "failed_invitation"
	StatusFailedPayment    Status = "failed_payment"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCompleted, StatusFailedInvitation, StatusFailedPayment},
	StatusPaid:    {StatusCompleted, StatusFailedInvitation},
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCompleted, StatusFailedInvitation, StatusFailedPayment:
		return true
	}
	return false
}

// Terminal reports whether automated processing stops at s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailedInvitation, StatusFailedPayment:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle graph permits moving from s to
// next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
