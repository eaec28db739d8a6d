package oracle

import (
	"strconv"

	"portfolium/core/types"
)

const (
	EventTypePriceUpdated       = "oracle.price_updated"
	EventTypeTrustedUpdated     = "oracle.trusted_account_updated"
	EventTypeApplicationUpdated = "oracle.application_updated"
	EventTypeOriginUpdated      = "oracle.price_origin_updated"
	EventTypeFeedUpdated        = "oracle.feed_updated"
	EventTypeFeedRound          = "oracle.feed_round_published"
	EventTypeAssetTypeUpdated   = "oracle.asset_type_updated"
)

func priceUpdatedEvent(asset [20]byte, record *PriceRecord, sender [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypePriceUpdated,
		Attributes: map[string]string{
			"asset":     types.HexAddress(asset),
			"price":     types.FormatAmount(record.Price),
			"updatedAt": strconv.FormatUint(record.UpdatedAt, 10),
			"sender":    types.HexAddress(sender),
		},
	}
}

func trustedUpdatedEvent(account [20]byte, trusted bool) *types.Event {
	return &types.Event{
		Type: EventTypeTrustedUpdated,
		Attributes: map[string]string{
			"account": types.HexAddress(account),
			"trusted": strconv.FormatBool(trusted),
		},
	}
}

func applicationUpdatedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeApplicationUpdated,
		Attributes: map[string]string{
			"previous":    types.HexAddress(previous),
			"application": types.HexAddress(next),
		},
	}
}

func originUpdatedEvent(asset [20]byte, origin types.PriceOrigin) *types.Event {
	return &types.Event{
		Type: EventTypeOriginUpdated,
		Attributes: map[string]string{
			"asset":  types.HexAddress(asset),
			"origin": origin.String(),
		},
	}
}

func feedUpdatedEvent(asset, feed [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeFeedUpdated,
		Attributes: map[string]string{
			"asset": types.HexAddress(asset),
			"feed":  types.HexAddress(feed),
		},
	}
}

func feedRoundEvent(feed [20]byte, round *FeedRound) *types.Event {
	return &types.Event{
		Type: EventTypeFeedRound,
		Attributes: map[string]string{
			"feed":      types.HexAddress(feed),
			"answer":    types.FormatAmount(round.Answer),
			"decimals":  strconv.FormatUint(uint64(round.Decimals), 10),
			"updatedAt": strconv.FormatUint(round.UpdatedAt, 10),
		},
	}
}

func assetTypeUpdatedEvent(asset [20]byte, assetType types.AssetType) *types.Event {
	return &types.Event{
		Type: EventTypeAssetTypeUpdated,
		Attributes: map[string]string{
			"asset": types.HexAddress(asset),
			"type":  assetType.String(),
		},
	}
}
