package synthetic

import (
	"math/big"
	"strconv"

	"portfolium/core/types"
)

const (
	EventTypeDeployed           = "synthetic.deployed"
	EventTypeNewBuyOrder        = "synthetic.new_buy_order"
	EventTypeNewSellOrder       = "synthetic.new_sell_order"
	EventTypeBuyOrderCompleted  = "synthetic.buy_order_completed"
	EventTypeSellOrderCompleted = "synthetic.sell_order_completed"
	EventTypeTransfer           = "synthetic.transfer"
	EventTypeCommissionUpdated  = "synthetic.commission_updated"
	EventTypeApplicationUpdated = "synthetic.application_updated"
)

func deployedEvent(token [20]byte, details *Details) *types.Event {
	return &types.Event{
		Type: EventTypeDeployed,
		Attributes: map[string]string{
			"token":       types.HexAddress(token),
			"name":        details.Name,
			"symbol":      details.Symbol,
			"companyName": details.CompanyName,
			"companyId":   details.CompanyID,
			"depotId":     details.DepotID,
			"owner":       types.HexAddress(details.Owner),
		},
	}
}

func orderEvent(eventType string, token [20]byte, order *Order) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"token":      types.HexAddress(token),
			"orderIndex": strconv.FormatUint(order.Index, 10),
			"trader":     types.HexAddress(order.Trader),
			"amount":     types.FormatAmount(order.Amount),
			"value":      types.FormatAmount(order.Value),
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

func applicationUpdatedEvent(application [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeApplicationUpdated,
		Attributes: map[string]string{
			"application": types.HexAddress(application),
		},
	}
}
