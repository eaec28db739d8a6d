package fundworker

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"portfolium/core"
	coreerrors "portfolium/core/errors"
	"portfolium/core/genesis"
	"portfolium/core/types"
	"portfolium/native/fund"
	"portfolium/storage"
)

var (
	localAdmin = fillAccount(0x0a)
	localApp   = fillAccount(0xaa)
	localOwner = fillAccount(0x03)
	localBuyer = fillAccount(0x07)
)

func fillAccount(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func localSpec() *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		GenesisTime:        "2024-01-01T00:00:00Z",
		Admin:              types.HexAddress(localAdmin),
		Signers:            []string{types.HexAddress(fillAccount(0x51)), types.HexAddress(fillAccount(0x52))},
		Quorum:             2,
		Application:        types.HexAddress(localApp),
		PlatformCommission: "0",
		Alloc: map[string]string{
			types.HexAddress(localOwner): "1000000000000000000",
			types.HexAddress(localBuyer): "1000000000000000000",
		},
		Router: genesis.RouterSpec{Inventory: "1000000"},
		Tokens: []genesis.TokenSpec{{
			AssetSpec: genesis.AssetSpec{Name: "USD Stable", Symbol: "USDX", Decimals: 6, Price: "2", Supported: true},
			Inventory: "1000000",
		}},
		Synthetic: []genesis.SyntheticSpec{{
			AssetSpec:   genesis.AssetSpec{Name: "Tesla, Inc.", Symbol: "sTSLA", Price: "100", Supported: true},
			CompanyName: "Tesla, Inc.",
			CompanyID:   "TSLA",
			DepotID:     "depot-1",
			Commission:  "10",
		}},
	}
}

type localFixture struct {
	platform *core.Platform
	chain    *LocalChain
	usdx     [20]byte
	tsla     [20]byte
}

func newLocalFixture(t *testing.T) *localFixture {
	t.Helper()
	p, err := core.NewPlatform(storage.NewMemDB(), localSpec())
	require.NoError(t, err)
	f := &localFixture{platform: p}
	require.NoError(t, p.View(func(e *core.Engines) error {
		supported, err := e.Fund.SupportedAssets()
		if err != nil {
			return err
		}
		for _, addr := range supported {
			asset, err := e.Fund.AvailableAsset(addr)
			if err != nil {
				return err
			}
			switch {
			case strings.EqualFold(asset.Symbol, "USDX"):
				f.usdx = addr
			case strings.EqualFold(asset.Symbol, "sTSLA"):
				f.tsla = addr
			}
		}
		return nil
	}))
	_, err = p.Apply(core.ModuleFund, func(e *core.Engines) error {
		if err := e.Fund.CreatePortfolio(localOwner, "Index", "IDX", nil, new(big.Int)); err != nil {
			return err
		}
		if err := e.Fund.AddAsset(localOwner, f.usdx); err != nil {
			return err
		}
		if err := e.Fund.AddAsset(localOwner, f.tsla); err != nil {
			return err
		}
		if err := e.Fund.AddManager(localOwner, localApp); err != nil {
			return err
		}
		return e.Fund.UpdateWeights(localOwner, localOwner, []fund.Weight{
			{Asset: f.usdx, Bps: 5000},
			{Asset: f.tsla, Bps: 2500},
		})
	})
	require.NoError(t, err)
	f.chain = NewLocalChain(p, localOwner, localApp, WithCommit(true))
	return f
}

func (f *localFixture) perShare(t *testing.T, asset [20]byte) *big.Int {
	t.Helper()
	var perShare *big.Int
	require.NoError(t, f.platform.View(func(e *core.Engines) error {
		alloc, err := e.Fund.Allocation(localOwner, asset)
		if err != nil {
			return err
		}
		perShare = alloc.PerShare
		return nil
	}))
	return perShare
}

func TestLocalChainReadsWholeTokenPrices(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()

	assets, err := f.chain.FundAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	require.Equal(t, types.AssetTypeNative, assets[0].Type)
	require.Equal(t, common.Address(f.usdx), assets[1].Address)
	require.Equal(t, uint64(5000), assets[1].Weight)

	price, err := f.chain.AssetPrice(ctx, common.Address(f.usdx))
	require.NoError(t, err)
	require.Equal(t, "2000000", price.String())

	price, err = f.chain.AssetPrice(ctx, common.Address(types.NativeAsset))
	require.NoError(t, err)
	require.Equal(t, oneEther.String(), price.String())
}

func TestLocalChainRebalancesPortfolio(t *testing.T) {
	f := newLocalFixture(t)
	r := NewRebalancer(f.chain, nil)
	require.NoError(t, r.Run(context.Background()))

	// An empty portfolio is valued at one whole native unit per share.
	require.Equal(t, "250000000000000000", f.perShare(t, f.usdx).String())
	require.Equal(t, "2500000000000000", f.perShare(t, f.tsla).String())

	plan, err := r.Plan(context.Background())
	require.NoError(t, err)
	require.Empty(t, plan)
}

func TestLocalChainPushesPrices(t *testing.T) {
	f := newLocalFixture(t)
	source, err := NewStaticSource(map[string]string{"USDX": "0.5", "sTSLA": "0.25"})
	require.NoError(t, err)
	require.NoError(t, NewPricePusher(f.chain, source, nil, nil).Run(context.Background()))

	require.NoError(t, f.platform.View(func(e *core.Engines) error {
		price, _, err := e.Oracle.GetPrice(f.usdx)
		require.NoError(t, err)
		require.Equal(t, "500000000000", price.String())
		price, _, err = e.Oracle.GetPrice(f.tsla)
		require.NoError(t, err)
		require.Equal(t, "250000000000000000", price.String())
		return nil
	}))
}

func TestLocalChainStoresSubUnitQuotes(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()
	source, err := NewStaticSource(map[string]string{"USDX": "0.001"})
	require.NoError(t, err)
	pusher := NewPricePusher(f.chain, source, nil, nil)
	require.NoError(t, pusher.push(ctx, FundAsset{Address: common.Address(f.usdx), Symbol: "USDX", Decimals: 6}))

	price, err := f.chain.AssetPrice(ctx, common.Address(f.usdx))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000", price.String())
	require.NoError(t, f.platform.View(func(e *core.Engines) error {
		unit, _, err := e.Oracle.GetPrice(f.usdx)
		require.NoError(t, err)
		require.Equal(t, "1000000000", unit.String())
		return nil
	}))
}

func TestUnitPrice(t *testing.T) {
	cases := []struct {
		price    int64
		decimals uint8
		want     string
	}{
		{price: 1_000_000_000_000_000, decimals: 6, want: "1000000000"},
		{price: 2_500_000, decimals: 6, want: "3"},
		{price: 2_499_999, decimals: 6, want: "2"},
		{price: 600_000, decimals: 6, want: "1"},
		{price: 250, decimals: 0, want: "250"},
	}
	for _, tc := range cases {
		unit, err := UnitPrice(big.NewInt(tc.price), tc.decimals)
		require.NoError(t, err)
		require.Equal(t, tc.want, unit.String(), "price %d decimals %d", tc.price, tc.decimals)
	}

	_, err := UnitPrice(big.NewInt(1_000_000_000_000_000), 18)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidArgument), "got %v", err)
	_, err = UnitPrice(big.NewInt(0), 0)
	require.Error(t, err)
}

func TestLocalChainSettlesSyntheticOrders(t *testing.T) {
	f := newLocalFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan OrderEvent, 1)
	sub, err := f.chain.WatchOrders(ctx, []common.Address{common.Address(f.tsla)}, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = f.platform.Apply(core.ModuleSynthetic, func(e *core.Engines) error {
		cost, err := e.Oracle.GetBuyingCost(f.tsla, big.NewInt(3))
		if err != nil {
			return err
		}
		_, err = e.Synthetic.PlaceBuyOrder(localBuyer, f.tsla, big.NewInt(3), cost)
		return err
	})
	require.NoError(t, err)

	var order OrderEvent
	select {
	case order = <-sink:
	case <-time.After(time.Second):
		t.Fatal("order event not relayed")
	}
	require.Equal(t, OrderEvent{Token: common.Address(f.tsla), Side: OrderBuy, Index: 0}, order)

	ref, err := f.chain.CompleteBuyOrder(ctx, order.Token, order.Index)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "0x"))

	require.NoError(t, f.platform.View(func(e *core.Engines) error {
		balance, err := e.Synthetic.BalanceOf(f.tsla, localBuyer)
		require.NoError(t, err)
		require.Equal(t, int64(3), balance.Int64())
		return nil
	}))
}

func TestLocalChainRejectsSubUnitPrice(t *testing.T) {
	f := newLocalFixture(t)
	_, err := f.chain.SetPrice(context.Background(), common.Address(f.usdx), big.NewInt(999_999))
	require.Error(t, err)
}
