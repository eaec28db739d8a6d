package guard

import (
	"strconv"

	"portfolium/core/types"
)

const (
	// EventTypeRequestCreated is emitted when an admin opens a role request.
	EventTypeRequestCreated = "guard.request_created"
	// EventTypeApprovalGranted is emitted for every signer approval.
	EventTypeApprovalGranted = "guard.approval_granted"
	// EventTypeRequestRejected is emitted when a signer vetoes a request.
	EventTypeRequestRejected = "guard.request_rejected"
	// EventTypeRoleGranted is emitted whenever an account receives a role.
	EventTypeRoleGranted = "guard.role_granted"
	// EventTypeRoleRevoked is emitted whenever an account loses a role.
	EventTypeRoleRevoked = "guard.role_revoked"
)

func requestCreatedEvent(req *RoleRequest) *types.Event {
	return &types.Event{
		Type: EventTypeRequestCreated,
		Attributes: map[string]string{
			"requestId": strconv.FormatUint(req.ID, 10),
			"target":    types.HexAddress(req.Target),
			"role":      types.RoleName(req.Role),
			"creator":   types.HexAddress(req.Creator),
		},
	}
}

func approvalGrantedEvent(req *RoleRequest, signer [20]byte, quorum uint64) *types.Event {
	return &types.Event{
		Type: EventTypeApprovalGranted,
		Attributes: map[string]string{
			"requestId": strconv.FormatUint(req.ID, 10),
			"signer":    types.HexAddress(signer),
			"approvals": strconv.Itoa(len(req.Approvals)),
			"quorum":    strconv.FormatUint(quorum, 10),
		},
	}
}

func requestRejectedEvent(req *RoleRequest) *types.Event {
	return &types.Event{
		Type: EventTypeRequestRejected,
		Attributes: map[string]string{
			"requestId": strconv.FormatUint(req.ID, 10),
			"signer":    types.HexAddress(req.Rejector),
		},
	}
}

func roleGrantedEvent(role [32]byte, account, sender [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeRoleGranted,
		Attributes: map[string]string{
			"role":    types.RoleName(role),
			"account": types.HexAddress(account),
			"sender":  types.HexAddress(sender),
		},
	}
}

func roleRevokedEvent(role [32]byte, account, sender [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeRoleRevoked,
		Attributes: map[string]string{
			"role":    types.RoleName(role),
			"account": types.HexAddress(account),
			"sender":  types.HexAddress(sender),
		},
	}
}
