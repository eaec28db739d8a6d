package mirrored

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
	"portfolium/core/types"
	"portfolium/native/oracle"
	"portfolium/native/reserve"
)

type fixture struct {
	st       *state.Manager
	engine   *Engine
	oracle   *oracle.Engine
	reserve  *reserve.Engine
	recorder *events.Recorder
	owner    [20]byte
	app      [20]byte
	token    [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := state.NewMemoryManager()
	require.NoError(t, err)
	rec := events.NewRecorder()
	f := &fixture{st: st, recorder: rec, owner: [20]byte{0x0A}, app: [20]byte{0x0B}}

	f.reserve = reserve.NewEngine()
	f.reserve.SetState(st)
	f.reserve.SetAddress(types.DeriveAddress("portfolium/reserve"))
	require.NoError(t, f.reserve.Init(f.owner))

	f.engine = NewEngine()
	f.engine.SetState(st)
	f.engine.SetEmitter(rec)
	f.engine.SetReserve(f.reserve)

	f.oracle = oracle.NewEngine()
	f.oracle.SetState(st)
	f.oracle.SetCommissionSource(f.engine)
	require.NoError(t, f.oracle.Init(f.owner, f.app))
	f.engine.SetPricer(f.oracle)

	f.token, err = f.engine.Deploy(f.owner, types.TokenMetadata{Name: "Netflix, Inc.", Symbol: "mNFLX", Decimals: 2}, big.NewInt(1_000_000_000))
	require.NoError(t, err)
	require.NoError(t, f.oracle.SetPrice(f.app, f.token, big.NewInt(13_370_000_000)))
	require.NoError(t, f.reserve.AddAccount(f.owner, f.token))
	return f
}

func TestMintAndBurnTenTokens(t *testing.T) {
	f := newFixture(t)
	user := [20]byte{0x05}
	require.NoError(t, f.st.Credit(user, big.NewInt(500_000_000_000)))

	value := big.NewInt(10*13_370_000_000 + 1_000_000_000)
	cost, err := f.engine.Mint(user, f.token, big.NewInt(10), new(big.Int).Add(value, big.NewInt(7)))
	require.NoError(t, err)
	require.Equal(t, value.String(), cost.String())

	bal, err := f.engine.BalanceOf(f.token, user)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Int64())

	pool, err := f.reserve.Balance()
	require.NoError(t, err)
	require.Equal(t, value.String(), pool.String(), "principal and commission land in the reserve")

	payout, err := f.engine.Burn(user, f.token, big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, int64(10*13_370_000_000-1_000_000_000), payout.Int64())

	bal, err = f.engine.BalanceOf(f.token, user)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	pool, err = f.reserve.Balance()
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000_000), pool.Int64(), "both commissions stay pooled")
	require.Len(t, f.recorder.Filter(EventTypeBurned), 1)
}

func TestMintRequiresFullPayment(t *testing.T) {
	f := newFixture(t)
	user := [20]byte{0x06}
	require.NoError(t, f.st.Credit(user, big.NewInt(1_000_000_000_000)))
	_, err := f.engine.Mint(user, f.token, big.NewInt(1), big.NewInt(13_370_000_000))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientFunds), "got %v", err)
}

func TestBurnNeedsReserveAccess(t *testing.T) {
	f := newFixture(t)
	user := [20]byte{0x07}
	require.NoError(t, f.st.Credit(user, big.NewInt(1_000_000_000_000)))
	_, err := f.engine.Mint(user, f.token, big.NewInt(2), big.NewInt(30_000_000_000))
	require.NoError(t, err)
	require.NoError(t, f.reserve.RemoveAccount(f.owner, f.token))
	_, err = f.engine.Burn(user, f.token, big.NewInt(2))
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized), "got %v", err)
}

func TestUpdateCommissionOwnerOnly(t *testing.T) {
	f := newFixture(t)
	err := f.engine.UpdateCommission([20]byte{0x09}, f.token, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrUnauthorized))
	require.NoError(t, f.engine.UpdateCommission(f.owner, f.token, big.NewInt(1000)))
	commission, err := f.engine.Commission(f.token)
	require.NoError(t, err)
	require.Equal(t, int64(1000), commission.Int64())
}
