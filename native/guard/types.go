package guard

import "fmt"

// RequestStatus tags the lifecycle of a role request. Pending requests carry
// their approval count; rejected and executed requests are terminal.
type RequestStatus uint8

const (
	RequestStatusPending RequestStatus = iota
	RequestStatusRejected
	RequestStatusExecuted
)

// StatusString renders the status label.
func (s RequestStatus) StatusString() string {
	switch s {
	case RequestStatusPending:
		return "pending"
	case RequestStatusRejected:
		return "rejected"
	case RequestStatusExecuted:
		return "executed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusExecuted
}

// RoleRequest is a pending or decided request to grant Role to Target.
type RoleRequest struct {
	ID        uint64
	Target    [20]byte
	Role      [32]byte
	Creator   [20]byte
	Approvals [][20]byte
	Status    RequestStatus
	Rejector  [20]byte
	CreatedAt uint64
	DecidedAt uint64
}

// HasApproved reports whether signer already approved the request.
func (r *RoleRequest) HasApproved(signer [20]byte) bool {
	if r == nil {
		return false
	}
	for _, approver := range r.Approvals {
		if approver == signer {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the request.
func (r *RoleRequest) Clone() *RoleRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Approvals = append([][20]byte(nil), r.Approvals...)
	return &clone
}

// Config captures the immutable guard parameters set at initialisation.
type Config struct {
	Admin   [20]byte
	Signers [][20]byte
	Quorum  uint64
}
