package fundworker

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// MaxWeight is the weight of an asset holding the whole fund, in basis points.
const MaxWeight = 10000

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Rebalancer moves per-share allocations towards the target weights.
type Rebalancer struct {
	chain  Chain
	logger *slog.Logger
}

// NewRebalancer constructs the rebalancing task.
func NewRebalancer(chain Chain, logger *slog.Logger) *Rebalancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebalancer{chain: chain, logger: logger}
}

func (r *Rebalancer) Name() string { return "rebalance" }

// Run computes the target allocations and submits the changed ones in a
// single transaction.
func (r *Rebalancer) Run(ctx context.Context) error {
	plan, err := r.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		r.logger.Debug("allocations already on target")
		return nil
	}
	ref, err := r.chain.UpdateMultipleAllocations(ctx, plan)
	if err != nil {
		return fmt.Errorf("update allocations: %w", err)
	}
	r.logger.Info("allocations updated", slog.Int("assets", len(plan)), slog.String("tx_hash", ref))
	return nil
}

// Plan reads the fund and returns the allocation updates to submit.
func (r *Rebalancer) Plan(ctx context.Context) ([]Allocation, error) {
	assets, err := r.chain.FundAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fund assets: %w", err)
	}
	value, err := r.chain.FundValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("fund value: %w", err)
	}
	shares, err := r.chain.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	prices := make(map[common.Address]*big.Int, len(assets))
	for _, asset := range assets {
		price, err := r.chain.AssetPrice(ctx, asset.Address)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", asset.Symbol, err)
		}
		prices[asset.Address] = price
	}
	return planAllocations(assets, prices, value, shares, r.logger), nil
}

// TargetPerShare returns floor((weight/MaxWeight * value / price) / shares *
// 10^decimals). value and price are in wei, price per whole token.
func TargetPerShare(weight uint64, value, price, shares *big.Int, decimals uint8) *big.Int {
	num := new(big.Int).SetUint64(weight)
	num.Mul(num, value)
	num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	den := big.NewInt(MaxWeight)
	den.Mul(den, price)
	den.Mul(den, shares)
	return num.Quo(num, den)
}

// planAllocations orders decreases before increases so that sales free the
// native balance the purchases spend. Decreases run smallest target first,
// increases largest target first; unchanged assets are skipped.
func planAllocations(assets []FundAsset, prices map[common.Address]*big.Int, value, shares *big.Int, logger *slog.Logger) []Allocation {
	if value == nil || value.Sign() == 0 {
		value = oneEther
	}
	if shares == nil || shares.Sign() == 0 {
		shares = big.NewInt(1)
	}
	var decreases, increases []Allocation
	for _, asset := range assets {
		price := prices[asset.Address]
		if price == nil || price.Sign() <= 0 {
			logger.Warn("asset has no price, skipping", slog.String("asset", asset.Symbol))
			continue
		}
		target := TargetPerShare(asset.Weight, value, price, shares, asset.Decimals)
		current := asset.PerShare
		if current == nil {
			current = new(big.Int)
		}
		switch target.Cmp(current) {
		case 0:
			logger.Debug("allocation unchanged", slog.String("asset", asset.Symbol), slog.String("per_share", current.String()))
		case -1:
			decreases = append(decreases, Allocation{Asset: asset.Address, PerShare: target})
		case 1:
			increases = append(increases, Allocation{Asset: asset.Address, PerShare: target})
		}
	}
	sort.SliceStable(decreases, func(i, j int) bool {
		return decreases[i].PerShare.Cmp(decreases[j].PerShare) < 0
	})
	sort.SliceStable(increases, func(i, j int) bool {
		return increases[i].PerShare.Cmp(increases[j].PerShare) > 0
	})
	return append(decreases, increases...)
}
