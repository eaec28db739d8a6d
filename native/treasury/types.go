package treasury

import (
	"math/big"

	"portfolium/core/types"
	"portfolium/native/synthetic"
)

// Token is a registry entry describing an asset the treasury custodies.
type Token struct {
	Address  [20]byte
	Type     types.AssetType
	Name     string
	Symbol   string
	Decimals uint8
}

// Clone returns a copy of the token entry.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// MetadataSource resolves token descriptions for registration.
type MetadataSource interface {
	Metadata(token [20]byte) (types.TokenMetadata, error)
}

// TokenLedger is the ERC-20 token engine surface.
type TokenLedger interface {
	MetadataSource
	Transfer(caller, token, to [20]byte, amount *big.Int) error
	BalanceOf(token, account [20]byte) (*big.Int, error)
}

// MirroredAssets is the mirrored token engine surface.
type MirroredAssets interface {
	MetadataSource
	Mint(caller, token [20]byte, amount, value *big.Int) (*big.Int, error)
	Burn(caller, token [20]byte, amount *big.Int) (*big.Int, error)
	Transfer(caller, token, to [20]byte, amount *big.Int) error
	BalanceOf(token, account [20]byte) (*big.Int, error)
}

// SyntheticAssets is the synthetic token engine surface.
type SyntheticAssets interface {
	MetadataSource
	PlaceBuyOrder(caller, token [20]byte, amount, value *big.Int) (uint64, error)
	PlaceSellOrder(caller, token [20]byte, amount *big.Int) (uint64, error)
	BuyOrder(token [20]byte, index uint64) (*synthetic.Order, error)
	Transfer(caller, token, to [20]byte, amount *big.Int) error
	BalanceOf(token, account [20]byte) (*big.Int, error)
}

// SwapRouter exchanges between the native asset and ERC-20 tokens. The router
// pulls amountIn from caller and delivers the actual output, which must be at
// least minOut, to recipient.
type SwapRouter interface {
	Swap(caller, from, to [20]byte, amountIn, minOut *big.Int, recipient [20]byte) (*big.Int, error)
}

// PendingOrder tracks a synthetic order the treasury placed for an account
// until the order settles.
type PendingOrder struct {
	Account   [20]byte
	Recipient [20]byte
	Amount    *big.Int
}
