package treasury

import (
	"math/big"
	"strconv"

	"portfolium/core/types"
	"portfolium/native/synthetic"
)

const (
	EventTypePortfoliumSet = "treasury.portfolium_set"
	EventTypeTokenAdded    = "treasury.token_added"
	EventTypeTokenRemoved  = "treasury.token_removed"
	EventTypeDeposited     = "treasury.deposited"
	EventTypeAssetBought   = "treasury.asset_bought"
	EventTypeAssetSold     = "treasury.asset_sold"
	EventTypeSwapped       = "treasury.swapped"
	EventTypeWithdrawn     = "treasury.withdrawn"
	EventTypeOrderPlaced   = "treasury.order_placed"
	EventTypeOrderSettled  = "treasury.order_settled"
	EventTypeRouterSwap    = "router.swapped"
)

func portfoliumSetEvent(addr [20]byte) *types.Event {
	return &types.Event{
		Type:       EventTypePortfoliumSet,
		Attributes: map[string]string{"portfolium": types.HexAddress(addr)},
	}
}

func tokenEvent(eventType string, token *Token) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"asset":  types.HexAddress(token.Address),
			"type":   token.Type.String(),
			"symbol": token.Symbol,
		},
	}
}

func movementEvent(eventType string, account, asset [20]byte, amount, value *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account": types.HexAddress(account),
			"asset":   types.HexAddress(asset),
			"amount":  types.FormatAmount(amount),
			"value":   types.FormatAmount(value),
		},
	}
}

func swapEvent(eventType string, account, from, to [20]byte, amountIn, amountOut *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account":   types.HexAddress(account),
			"from":      types.HexAddress(from),
			"to":        types.HexAddress(to),
			"amountIn":  types.FormatAmount(amountIn),
			"amountOut": types.FormatAmount(amountOut),
		},
	}
}

func orderEvent(eventType string, token [20]byte, side synthetic.OrderSide, index uint64, pending *PendingOrder) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"token":      types.HexAddress(token),
			"side":       side.String(),
			"orderIndex": strconv.FormatUint(index, 10),
			"account":    types.HexAddress(pending.Account),
			"amount":     types.FormatAmount(pending.Amount),
		},
	}
}
