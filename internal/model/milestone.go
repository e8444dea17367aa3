package model

// MilestoneStatus is the lifecycle state of a contract milestone.
type MilestoneStatus string

const (
	MilestoneStatusProposed  MilestoneStatus = "proposed"
	MilestoneStatusAgreed    MilestoneStatus = "agreed"
	MilestoneStatusPlanned   MilestoneStatus = "planned"
	MilestoneStatusCompleted MilestoneStatus = "completed"
	MilestoneStatusDisputed  MilestoneStatus = "disputed"
)

// CanTransition reports whether a milestone may move from s to next.
func (s MilestoneStatus) CanTransition(next MilestoneStatus) bool {
	switch s {
	case MilestoneStatusProposed, MilestoneStatusAgreed, MilestoneStatusPlanned:
		return next == MilestoneStatusCompleted || next == MilestoneStatusDisputed
	case MilestoneStatusCompleted:
		return next == MilestoneStatusDisputed
	}
	return false
}

// Milestone joins a milestone with the contract fields the transition needs.
type Milestone struct {
	ID             string          `db:"id"`
	ContractID     string          `db:"contract_id"`
	Title          string          `db:"title"`
	Status         MilestoneStatus `db:"status"`
	CustomerID     string          `db:"customer_id"`
	VendorID       string          `db:"vendor_id"`
	JobID          string          `db:"job_id"`
	ConversationID string          `db:"conversation_id"`
	ContractLocked bool            `db:"is_locked"`
}
