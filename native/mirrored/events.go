package mirrored

import (
	"math/big"

	"portfolium/core/types"
)

const (
	EventTypeDeployed          = "mirrored.deployed"
	EventTypeMinted            = "mirrored.minted"
	EventTypeBurned            = "mirrored.burned"
	EventTypeTransfer          = "mirrored.transfer"
	EventTypeCommissionUpdated = "mirrored.commission_updated"
)

func deployedEvent(token [20]byte, details *Details) *types.Event {
	return &types.Event{
		Type: EventTypeDeployed,
		Attributes: map[string]string{
			"token":      types.HexAddress(token),
			"name":       details.Name,
			"symbol":     details.Symbol,
			"owner":      types.HexAddress(details.Owner),
			"commission": types.FormatAmount(details.Commission),
		},
	}
}

func supplyEvent(eventType string, token, account [20]byte, amount, value *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"token":   types.HexAddress(token),
			"account": types.HexAddress(account),
			"amount":  types.FormatAmount(amount),
			"value":   types.FormatAmount(value),
		},
	}
}

func transferEvent(token, from, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"token":  types.HexAddress(token),
			"from":   types.HexAddress(from),
			"to":     types.HexAddress(to),
			"amount": types.FormatAmount(amount),
		},
	}
}

func commissionUpdatedEvent(token [20]byte, commission *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCommissionUpdated,
		Attributes: map[string]string{
			"token":      types.HexAddress(token),
			"commission": types.FormatAmount(commission),
		},
	}
}
