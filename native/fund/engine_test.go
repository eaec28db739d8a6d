package fund

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
	"portfolium/core/types"
	"portfolium/native/guard"
	"portfolium/native/mirrored"
	"portfolium/native/oracle"
	"portfolium/native/reserve"
	"portfolium/native/treasury"
)

const (
	tokenPrice         = 5000
	mirroredCommission = 1000
)

type fixture struct {
	st       *state.Manager
	engine   *Engine
	guard    *guard.Engine
	oracle   *oracle.Engine
	reserve  *reserve.Engine
	treasury *treasury.Engine
	mirrored *mirrored.Engine
	recorder *events.Recorder
	admin    [20]byte
	app      [20]byte
	user     [20]byte
	mNFLX    [20]byte
}

func newFixture(t *testing.T, platformCommission int64) *fixture {
	t.Helper()
	st, err := state.NewMemoryManager()
	require.NoError(t, err)
	f := &fixture{
		st:       st,
		recorder: events.NewRecorder(),
		admin:    [20]byte{0x0A},
		app:      [20]byte{0x0B},
		user:     [20]byte{0x03},
	}
	fundAddr := types.DeriveAddress("portfolium/fund")

	f.guard = guard.NewEngine()
	f.guard.SetState(st)
	require.NoError(t, f.guard.Init(f.admin, [][20]byte{{0x51}, {0x52}}, 2))
	require.NoError(t, f.guard.GrantPortfoliumRole(f.admin, fundAddr))

	f.reserve = reserve.NewEngine()
	f.reserve.SetState(st)
	f.reserve.SetAddress(types.DeriveAddress("portfolium/reserve"))
	require.NoError(t, f.reserve.Init(f.admin))

	f.mirrored = mirrored.NewEngine()
	f.mirrored.SetState(st)
	f.mirrored.SetReserve(f.reserve)

	f.oracle = oracle.NewEngine()
	f.oracle.SetState(st)
	f.oracle.SetCommissionSource(oracle.CommissionSourceFunc(func(asset [20]byte) (*big.Int, error) {
		if ok, _ := f.mirrored.IsToken(asset); ok {
			return f.mirrored.Commission(asset)
		}
		return new(big.Int), nil
	}))
	require.NoError(t, f.oracle.Init(f.admin, f.app))
	f.mirrored.SetPricer(f.oracle)

	f.treasury = treasury.NewEngine()
	f.treasury.SetState(st)
	f.treasury.SetAddress(types.DeriveAddress("portfolium/treasury"))
	f.treasury.SetMirrored(f.mirrored)
	require.NoError(t, f.treasury.Init(f.admin))
	require.NoError(t, f.treasury.SetPortfoliumAddress(f.admin, fundAddr))

	f.engine = NewEngine()
	f.engine.SetState(st)
	f.engine.SetAddress(fundAddr)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetGuard(f.guard)
	f.engine.SetTreasury(f.treasury)
	f.engine.SetPricer(f.oracle)
	f.engine.SetReserve(f.reserve)
	require.NoError(t, f.engine.Init(f.admin, big.NewInt(platformCommission), types.NativeMetadata))

	f.mNFLX, err = f.mirrored.Deploy(f.admin, types.TokenMetadata{Name: "Netflix, Inc.", Symbol: "mNFLX", Decimals: 2}, big.NewInt(mirroredCommission))
	require.NoError(t, err)
	require.NoError(t, f.oracle.SetPrice(f.app, f.mNFLX, big.NewInt(tokenPrice)))
	require.NoError(t, f.oracle.SetAssetTypeMirrored(f.app, f.mNFLX))
	require.NoError(t, f.reserve.AddAccount(f.admin, f.mNFLX))
	require.NoError(t, f.engine.AddSupportedMirroredAsset(f.admin, f.mNFLX))

	require.NoError(t, st.Credit(f.user, big.NewInt(1_000_000_000_000_000)))
	require.NoError(t, f.engine.CreatePortfolio(f.user, "Sh1tFoli0", "SHT", big.NewInt(1000), big.NewInt(platformCommission)))
	require.NoError(t, f.engine.AddAsset(f.user, f.mNFLX))
	return f
}

func (f *fixture) treasuryBalance(t *testing.T, asset [20]byte) int64 {
	t.Helper()
	bal, err := f.treasury.GetBalanceOf(f.user, asset)
	require.NoError(t, err)
	return bal.Int64()
}

func TestCreatePortfolio(t *testing.T) {
	f := newFixture(t, 10_000)

	portfolio, err := f.engine.Portfolio(f.user)
	require.NoError(t, err)
	require.Equal(t, "Sh1tFoli0", portfolio.Name)
	require.Equal(t, "SHT", portfolio.Symbol)
	require.Equal(t, uint64(2), portfolio.AssetCount)

	pool, err := f.reserve.Balance()
	require.NoError(t, err)
	require.Equal(t, int64(10_000), pool.Int64())

	isUser, err := f.guard.HasPortfoliumRole(types.UserRole, f.user)
	require.NoError(t, err)
	require.True(t, isUser)

	err = f.engine.CreatePortfolio(f.user, "Again", "AGN", nil, big.NewInt(10_000))
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyExists), "got %v", err)

	other := [20]byte{0x04}
	require.NoError(t, f.st.Credit(other, big.NewInt(100_000)))
	err = f.engine.CreatePortfolio(other, "Cheap", "CHP", nil, big.NewInt(9_999))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientFunds), "got %v", err)
	require.Len(t, f.recorder.Filter(EventTypePortfolioCreated), 1)

	require.NoError(t, f.engine.CreatePortfolio(other, "Other", "OTH", nil, big.NewInt(10_000)))
	owners, err := f.engine.Portfolios()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{f.user, other}, owners)
}

func TestSupportedAssets(t *testing.T) {
	f := newFixture(t, 0)

	asset, err := f.engine.AvailableAsset(f.mNFLX)
	require.NoError(t, err)
	require.Equal(t, "Netflix, Inc.", asset.Name)
	require.Equal(t, "mNFLX", asset.Symbol)
	require.Equal(t, uint8(2), asset.Decimals)

	err = f.engine.AddSupportedMirroredAsset(f.user, [20]byte{0x99})
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized), "got %v", err)
	err = f.engine.AddSupportedMirroredAsset(f.admin, f.mNFLX)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyExists), "got %v", err)

	err = f.engine.AddAsset(f.user, [20]byte{0x99})
	require.True(t, errors.Is(err, coreerrors.ErrNotFound), "got %v", err)
	err = f.engine.AddAsset(f.user, f.mNFLX)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyExists), "got %v", err)

	err = f.engine.UpdatePlatformCommission(f.user, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized), "got %v", err)
	require.NoError(t, f.engine.UpdatePlatformCommission(f.admin, big.NewInt(10_000)))
	commission, err := f.engine.PlatformCommission()
	require.NoError(t, err)
	require.Equal(t, int64(10_000), commission.Int64())
}

func TestBuyingCostScenario(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, f.mNFLX, big.NewInt(10)))

	cost, err := f.engine.CalculateBuyingCost(f.user, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, int64(5000*10*5+1000), cost.Int64())

	_, err = f.engine.BuyShares(f.user, f.user, big.NewInt(5), new(big.Int).Sub(cost, big.NewInt(1)))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientFunds), "got %v", err)

	_, err = f.engine.BuyShares(f.user, f.user, big.NewInt(5), cost)
	require.NoError(t, err)
	shares, err := f.engine.BalanceOf(f.user, f.user)
	require.NoError(t, err)
	require.Equal(t, int64(5), shares.Int64())
	require.Equal(t, int64(50), f.treasuryBalance(t, f.mNFLX))

	pool, _ := f.reserve.Balance()
	require.Equal(t, int64(251_000), pool.Int64())

	before, _ := f.st.Balance(f.user)
	proceeds, err := f.engine.SellShares(f.user, f.user, big.NewInt(5), nil)
	require.NoError(t, err)
	require.Equal(t, int64(5000*50-1000), proceeds.Int64())
	after, _ := f.st.Balance(f.user)
	require.Equal(t, proceeds.Int64(), new(big.Int).Sub(after, before).Int64())

	pool, _ = f.reserve.Balance()
	require.Equal(t, int64(2*mirroredCommission), pool.Int64())
	require.Zero(t, f.treasuryBalance(t, f.mNFLX))
}

func TestShareholdersRecordedOnce(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, types.NativeAsset, big.NewInt(1000)))
	holders, err := f.engine.Shareholders(f.user)
	require.NoError(t, err)
	require.Empty(t, holders)

	first, second := [20]byte{0x07}, [20]byte{0x08}
	for _, buyer := range [][20]byte{first, second, first} {
		require.NoError(t, f.st.Credit(buyer, big.NewInt(1_000_000)))
		cost, err := f.engine.CalculateBuyingCost(f.user, big.NewInt(1))
		require.NoError(t, err)
		_, err = f.engine.BuyShares(buyer, f.user, big.NewInt(1), cost)
		require.NoError(t, err)
	}
	holders, err = f.engine.Shareholders(f.user)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{first, second}, holders)
}

func TestBuySellRoundTripWithNative(t *testing.T) {
	f := newFixture(t, 10_000)
	require.NoError(t, f.engine.UpdateMultipleAllocations(f.user, f.user, []Allocation{
		{Asset: f.mNFLX, PerShare: big.NewInt(10)},
		{Asset: types.NativeAsset, PerShare: big.NewInt(1_000_000_000)},
	}))
	buyer := [20]byte{0x07}
	require.NoError(t, f.st.Credit(buyer, big.NewInt(100_000_000_000)))

	cost, err := f.engine.CalculateBuyingCost(f.user, big.NewInt(15))
	require.NoError(t, err)
	require.Equal(t, int64(15*1_000_000_000+5000*150+1000+10_000), cost.Int64())
	_, err = f.engine.BuyShares(buyer, f.user, big.NewInt(15), cost)
	require.NoError(t, err)
	require.Equal(t, int64(15_000_000_000), f.treasuryBalance(t, types.NativeAsset))
	require.Equal(t, int64(150), f.treasuryBalance(t, f.mNFLX))

	holders, err := f.engine.Shareholders(f.user)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{buyer}, holders)

	_, err = f.engine.SellShares(buyer, f.user, big.NewInt(16), big.NewInt(10_000))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientShares), "got %v", err)

	proceeds, err := f.engine.SellShares(buyer, f.user, big.NewInt(15), big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(15_000_000_000+5000*150-1000), proceeds.Int64())
	require.Zero(t, f.treasuryBalance(t, types.NativeAsset))
	require.Zero(t, f.treasuryBalance(t, f.mNFLX))
	supply, _ := f.engine.TotalShares(f.user)
	require.Zero(t, supply.Sign())
	require.Len(t, f.recorder.Filter(EventTypeShareSold), 1)
}

func TestShareCap(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, types.NativeAsset, big.NewInt(1)))
	_, err := f.engine.BuyShares(f.user, f.user, big.NewInt(1001), big.NewInt(1001))
	require.True(t, errors.Is(err, coreerrors.ErrInvalidState), "got %v", err)
	_, err = f.engine.BuyShares(f.user, f.user, big.NewInt(1000), big.NewInt(1000))
	require.NoError(t, err)
}

func TestUpdateAllocationRebalancesHoldings(t *testing.T) {
	f := newFixture(t, 10_000)
	const nativeAlloc = 1_000_000_000
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, f.mNFLX, big.NewInt(10)))
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, types.NativeAsset, big.NewInt(nativeAlloc)))

	cost, err := f.engine.CalculateBuyingCost(f.user, big.NewInt(15))
	require.NoError(t, err)
	_, err = f.engine.BuyShares(f.user, f.user, big.NewInt(15), cost)
	require.NoError(t, err)

	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, types.NativeAsset, big.NewInt(nativeAlloc/2)))
	alloc, err := f.engine.Allocation(f.user, types.NativeAsset)
	require.NoError(t, err)
	require.Equal(t, int64(nativeAlloc/2), alloc.PerShare.Int64())
	require.Equal(t, int64(15*nativeAlloc), f.treasuryBalance(t, types.NativeAsset), "native is the cash buffer")

	freed := int64(nativeAlloc / 2 * 15)
	newMirrored := (freed - mirroredCommission) / tokenPrice / 15
	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, f.mNFLX, big.NewInt(newMirrored)))
	bought := (newMirrored - 10) * 15
	require.Equal(t, newMirrored*15, f.treasuryBalance(t, f.mNFLX))
	require.Equal(t, 15*nativeAlloc-(bought*tokenPrice+mirroredCommission), f.treasuryBalance(t, types.NativeAsset))

	require.NoError(t, f.engine.UpdateAllocation(f.user, f.user, f.mNFLX, big.NewInt(10)))
	require.Equal(t, int64(150), f.treasuryBalance(t, f.mNFLX))
	require.Equal(t, int64(15*nativeAlloc-2*mirroredCommission), f.treasuryBalance(t, types.NativeAsset))
}

func TestManagersAndPermissions(t *testing.T) {
	f := newFixture(t, 0)
	manager := [20]byte{0x08}

	err := f.engine.UpdateAllocation(manager, f.user, f.mNFLX, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized), "got %v", err)

	require.NoError(t, f.engine.AddManager(f.user, manager))
	err = f.engine.AddManager(f.user, manager)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyExists), "got %v", err)
	require.NoError(t, f.engine.UpdateAllocation(manager, f.user, f.mNFLX, big.NewInt(1)))

	require.NoError(t, f.engine.RemoveManager(f.user, manager))
	err = f.engine.RemoveManager(f.user, manager)
	require.True(t, errors.Is(err, coreerrors.ErrNotFound), "got %v", err)
	err = f.engine.UpdateAllocation(manager, f.user, f.mNFLX, big.NewInt(2))
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized), "got %v", err)
}

func TestUpdateWeights(t *testing.T) {
	f := newFixture(t, 0)

	err := f.engine.UpdateWeights(f.user, f.user, []Weight{{Asset: f.mNFLX, Bps: 10_001}})
	require.True(t, errors.Is(err, coreerrors.ErrInvalidArgument), "got %v", err)
	err = f.engine.UpdateWeights(f.user, f.user, []Weight{{Asset: f.mNFLX, Bps: 6_000}, {Asset: types.NativeAsset, Bps: 5_000}})
	require.True(t, errors.Is(err, coreerrors.ErrInvalidArgument), "got %v", err)

	require.NoError(t, f.engine.UpdateWeights(f.user, f.user, []Weight{{Asset: f.mNFLX, Bps: 6_000}, {Asset: types.NativeAsset, Bps: 4_000}}))
	assets, err := f.engine.Assets(f.user)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Equal(t, types.NativeAsset, assets[0].Address)
	require.Equal(t, uint64(4_000), assets[0].Weight)
	require.Equal(t, uint64(6_000), assets[1].Weight)
	require.Equal(t, types.AssetTypeMirrored, assets[1].Type)
}

func TestPortfolioValueAndSharePrice(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.engine.UpdateMultipleAllocations(f.user, f.user, []Allocation{
		{Asset: f.mNFLX, PerShare: big.NewInt(10)},
		{Asset: types.NativeAsset, PerShare: big.NewInt(100)},
	}))
	price, err := f.engine.SharePrice(f.user)
	require.NoError(t, err)
	require.Zero(t, price.Sign())

	cost, err := f.engine.CalculateBuyingCost(f.user, big.NewInt(5))
	require.NoError(t, err)
	_, err = f.engine.BuyShares(f.user, f.user, big.NewInt(5), cost)
	require.NoError(t, err)

	value, err := f.engine.PortfolioValue(f.user)
	require.NoError(t, err)
	require.Equal(t, int64(50*5000+500), value.Int64())
	price, err = f.engine.SharePrice(f.user)
	require.NoError(t, err)
	require.Equal(t, int64((50*5000+500)/5), price.Int64())
}
