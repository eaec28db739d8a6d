package fund

import (
	"math/big"
	"strconv"

	"portfolium/core/types"
)

const (
	EventTypeCommissionUpdated = "fund.platform_commission_updated"
	EventTypeAssetSupported    = "fund.asset_supported"
	EventTypePortfolioCreated  = "fund.portfolio_created"
	EventTypeAssetAdded        = "fund.asset_added"
	EventTypeManagerAdded      = "fund.manager_added"
	EventTypeManagerRemoved    = "fund.manager_removed"
	EventTypeAllocationUpdated = "fund.allocation_updated"
	EventTypeWeightUpdated     = "fund.weight_updated"
	EventTypeShareBought       = "fund.share_bought"
	EventTypeShareSold         = "fund.share_sold"
)

func commissionUpdatedEvent(value *big.Int) *types.Event {
	return &types.Event{
		Type:       EventTypeCommissionUpdated,
		Attributes: map[string]string{"commission": types.FormatAmount(value)},
	}
}

func assetSupportedEvent(asset *Asset) *types.Event {
	return &types.Event{
		Type: EventTypeAssetSupported,
		Attributes: map[string]string{
			"asset":  types.HexAddress(asset.Address),
			"type":   asset.Type.String(),
			"symbol": asset.Symbol,
		},
	}
}

func portfolioCreatedEvent(p *Portfolio) *types.Event {
	return &types.Event{
		Type: EventTypePortfolioCreated,
		Attributes: map[string]string{
			"portfolio": types.HexAddress(p.Owner),
			"name":      p.Name,
			"symbol":    p.Symbol,
			"shareCap":  types.FormatAmount(p.ShareCap),
		},
	}
}

func portfolioEvent(eventType string, owner, subject [20]byte, key string) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"portfolio": types.HexAddress(owner),
			key:         types.HexAddress(subject),
		},
	}
}

func allocationUpdatedEvent(owner, asset [20]byte, perShare *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAllocationUpdated,
		Attributes: map[string]string{
			"portfolio": types.HexAddress(owner),
			"asset":     types.HexAddress(asset),
			"perShare":  types.FormatAmount(perShare),
		},
	}
}

func weightUpdatedEvent(owner, asset [20]byte, bps uint64) *types.Event {
	return &types.Event{
		Type: EventTypeWeightUpdated,
		Attributes: map[string]string{
			"portfolio": types.HexAddress(owner),
			"asset":     types.HexAddress(asset),
			"weight":    strconv.FormatUint(bps, 10),
		},
	}
}

func shareEvent(eventType string, owner, shareholder [20]byte, shares, value *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"portfolio":   types.HexAddress(owner),
			"shareholder": types.HexAddress(shareholder),
			"shares":      types.FormatAmount(shares),
			"value":       types.FormatAmount(value),
		},
	}
}
