package token

import (
	"math/big"

	"portfolium/core/types"
)

const (
	EventTypeCreated  = "token.created"
	EventTypeMinted   = "token.minted"
	EventTypeTransfer = "token.transfer"
)

func createdEvent(token [20]byte, details *Details) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"token":  types.HexAddress(token),
			"symbol": details.Symbol,
			"name":   details.Name,
			"owner":  types.HexAddress(details.Owner),
		},
	}
}

func mintedEvent(token, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"token":  types.HexAddress(token),
			"to":     types.HexAddress(to),
			"amount": types.FormatAmount(amount),
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
