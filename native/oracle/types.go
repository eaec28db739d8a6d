package oracle

import "math/big"

// PriceRecord is the stored quote for an asset. Prices are expressed in wei
// per smallest unit of the asset.
type PriceRecord struct {
	Price     *big.Int
	UpdatedAt uint64
}

// Clone returns a deep copy of the record.
func (r *PriceRecord) Clone() *PriceRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Price != nil {
		clone.Price = new(big.Int).Set(r.Price)
	}
	return &clone
}

// FeedRound is the latest answer published to an in-ledger price feed.
type FeedRound struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt uint64
}

// PriceUpdate is one element of a SetPrices batch.
type PriceUpdate struct {
	Asset [20]byte
	Price *big.Int
}

// CommissionSource resolves the commission an asset's token charges per
// mint or burn. Assets unknown to the source carry no commission.
type CommissionSource interface {
	Commission(asset [20]byte) (*big.Int, error)
}

// CommissionSourceFunc adapts a function to CommissionSource.
type CommissionSourceFunc func(asset [20]byte) (*big.Int, error)

// Commission implements CommissionSource.
func (f CommissionSourceFunc) Commission(asset [20]byte) (*big.Int, error) {
	if f == nil {
		return new(big.Int), nil
	}
	return f(asset)
}

// TargetDecimals is the precision feed answers are scaled to.
const TargetDecimals = 18
