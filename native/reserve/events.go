package reserve

import "portfolium/core/types"

const (
	EventTypeAccountAdded   = "reserve.account_added"
	EventTypeAccountRemoved = "reserve.account_removed"
	EventTypeDeposited      = "reserve.deposited"
	EventTypeWithdrawn      = "reserve.withdrawn"
)

func accountEvent(eventType string, account, sender [20]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account": types.HexAddress(account),
			"sender":  types.HexAddress(sender),
		},
	}
}

func movementEvent(eventType string, counterparty [20]byte, amount interface{ String() string }) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account": types.HexAddress(counterparty),
			"amount":  amount.String(),
		},
	}
}
