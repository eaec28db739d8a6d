package fund

import (
	"math/big"

	"portfolium/core/types"
	"portfolium/native/treasury"
)

// MaxWeight is the weight of an asset holding the whole portfolio value, in
// basis points.
const MaxWeight = 10_000

// Config holds the platform-wide parameters.
type Config struct {
	Owner              [20]byte
	PlatformCommission *big.Int
	Native             types.TokenMetadata
}

// Asset is a platform-supported asset portfolios may allocate to.
type Asset struct {
	Address  [20]byte
	Type     types.AssetType
	Name     string
	Symbol   string
	Decimals uint8
}

// Portfolio describes one user portfolio. Portfolios are keyed by owner.
type Portfolio struct {
	Owner      [20]byte
	Name       string
	Symbol     string
	ShareCap   *big.Int
	AssetCount uint64
	CreatedAt  uint64
}

// Clone returns a deep copy of the portfolio.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ShareCap != nil {
		clone.ShareCap = new(big.Int).Set(p.ShareCap)
	}
	return &clone
}

// Allocation is the amount of Asset backing one portfolio share.
type Allocation struct {
	Asset    [20]byte
	PerShare *big.Int
}

// Weight is the target share of portfolio value held in Asset, in basis
// points.
type Weight struct {
	Asset [20]byte
	Bps   uint64
}

// Holding is the stored per-portfolio state of one asset.
type Holding struct {
	PerShare *big.Int
	Weight   uint64
}

// PortfolioAsset is the read view of an asset inside a portfolio.
type PortfolioAsset struct {
	Asset
	PerShare *big.Int
	Weight   uint64
}

// Guard is the access-control surface the fund consults.
type Guard interface {
	HasPortfoliumRole(role [32]byte, account [20]byte) (bool, error)
	AddUser(caller, account [20]byte) error
}

// Treasury custodies portfolio holdings.
type Treasury interface {
	Address() [20]byte
	AddAsset(caller, asset [20]byte, assetType types.AssetType) error
	TokenExists(asset [20]byte) (bool, error)
	GetToken(asset [20]byte) (*treasury.Token, error)
	Deposit(caller, account [20]byte, value *big.Int) error
	BuyAsset(caller, account, asset [20]byte, amount, value *big.Int) (*big.Int, error)
	SellAsset(caller, account, asset [20]byte, amount *big.Int, recipient [20]byte) (*big.Int, error)
	Withdraw(caller, account, asset [20]byte, amount *big.Int, recipient [20]byte) error
	GetBalanceOf(account, asset [20]byte) (*big.Int, error)
}

// Pricer is the oracle surface used for costs and valuation.
type Pricer interface {
	GetPrice(asset [20]byte) (*big.Int, uint64, error)
	GetBuyingCost(asset [20]byte, amount *big.Int) (*big.Int, error)
}

// Reserve receives platform commissions.
type Reserve interface {
	Deposit(caller [20]byte, value *big.Int) error
}
