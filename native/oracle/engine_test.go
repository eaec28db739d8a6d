package oracle

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
	"portfolium/core/types"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type fixture struct {
	engine   *Engine
	recorder *events.Recorder
	owner    [20]byte
	app      [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := state.NewMemoryManager()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	rec := events.NewRecorder()
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	f := &fixture{engine: engine, recorder: rec, owner: newTestAddress(0x0A), app: newTestAddress(0x0B)}
	if err := engine.Init(f.owner, f.app); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec.Reset()
	return f
}

func TestApplicationIsTrustedAtInit(t *testing.T) {
	f := newFixture(t)
	if ok, _ := f.engine.IsTrusted(f.app); !ok {
		t.Fatalf("application account should be trusted")
	}
	if ok, _ := f.engine.IsTrusted(f.owner); ok {
		t.Fatalf("owner is not trusted unless added")
	}
}

func TestSetPriceRequiresTrustedAccount(t *testing.T) {
	f := newFixture(t)
	asset := newTestAddress(0x33)
	if err := f.engine.SetPrice(newTestAddress(0x09), asset, big.NewInt(1)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.engine.SetPrice(f.app, asset, big.NewInt(1337)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, updatedAt, err := f.engine.GetPrice(asset)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Int64() != 1337 || updatedAt != 1_700_000_000 {
		t.Fatalf("unexpected price %s at %d", price, updatedAt)
	}
	if n := len(f.recorder.Filter(EventTypePriceUpdated)); n != 1 {
		t.Fatalf("expected one price event, got %d", n)
	}
}

func TestUnsetPriceIsZeroAndCostFails(t *testing.T) {
	f := newFixture(t)
	asset := newTestAddress(0x34)
	price, _, err := f.engine.GetPrice(asset)
	if err != nil || price.Sign() != 0 {
		t.Fatalf("expected zero price, got %v (%v)", price, err)
	}
	if _, err := f.engine.GetBuyingCost(asset, big.NewInt(1)); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for unset price, got %v", err)
	}
}

func TestNativeAssetPricedAtOne(t *testing.T) {
	f := newFixture(t)
	price, _, err := f.engine.GetPrice(types.NativeAsset)
	if err != nil || price.Int64() != 1 {
		t.Fatalf("expected native price 1, got %v (%v)", price, err)
	}
	if err := f.engine.SetPrice(f.app, types.NativeAsset, big.NewInt(5)); !errors.Is(err, coreerrors.ErrInvalidArgument) {
		t.Fatalf("expected native price update to be rejected, got %v", err)
	}
}

func TestBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a, b := newTestAddress(0x35), newTestAddress(0x36)
	err := f.engine.SetPrices(f.app, []PriceUpdate{
		{Asset: a, Price: big.NewInt(10)},
		{Asset: b, Price: big.NewInt(-1)},
	})
	if !errors.Is(err, coreerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid batch, got %v", err)
	}
	price, _, _ := f.engine.GetPrice(a)
	if price.Sign() != 0 {
		t.Fatalf("valid element of a failed batch must not be written")
	}
}

func TestCommissionAdjustsCostAndPayout(t *testing.T) {
	f := newFixture(t)
	asset := newTestAddress(0x37)
	f.engine.SetCommissionSource(CommissionSourceFunc(func(a [20]byte) (*big.Int, error) {
		if a == asset {
			return big.NewInt(1000), nil
		}
		return new(big.Int), nil
	}))
	if err := f.engine.SetPrice(f.app, asset, big.NewInt(5000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	cost, err := f.engine.GetBuyingCost(asset, big.NewInt(50))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost.Int64() != 251000 {
		t.Fatalf("expected 251000, got %s", cost)
	}
	payout, err := f.engine.GetPayoutAmount(asset, big.NewInt(50))
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if payout.Int64() != 249000 {
		t.Fatalf("expected 249000, got %s", payout)
	}
	if err := f.engine.SetPrice(f.app, asset, big.NewInt(1)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := f.engine.GetPayoutAmount(asset, big.NewInt(10)); !errors.Is(err, coreerrors.ErrInsufficientFunds) {
		t.Fatalf("expected payout below commission to fail, got %v", err)
	}
}

func TestFeedOriginDelegatesToFeed(t *testing.T) {
	f := newFixture(t)
	asset, feed := newTestAddress(0x38), newTestAddress(0x39)
	if err := f.engine.SetPrice(f.app, asset, big.NewInt(42)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := f.engine.SetChainlinkPriceFeedAddress(f.app, asset, feed); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if err := f.engine.SetPriceOrigin(f.app, asset, types.PriceOriginChainlink); err != nil {
		t.Fatalf("set origin: %v", err)
	}
	price, _, _ := f.engine.GetPrice(asset)
	if price.Sign() != 0 {
		t.Fatalf("feed without rounds must price at zero, got %s", price)
	}
	if err := f.engine.PublishFeedRound(f.app, feed, big.NewInt(123_456_789), 8); err != nil {
		t.Fatalf("publish: %v", err)
	}
	price, _, _ = f.engine.GetPrice(asset)
	want, _ := new(big.Int).SetString("1234567890000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, price)
	}
	if err := f.engine.SetPriceOrigin(f.app, asset, types.PriceOriginStored); err != nil {
		t.Fatalf("reset origin: %v", err)
	}
	price, _, _ = f.engine.GetPrice(asset)
	if price.Int64() != 42 {
		t.Fatalf("stored price should return after switching back, got %s", price)
	}
}

func TestScaleAnswerTruncates(t *testing.T) {
	answer, _ := new(big.Int).SetString("1999999999999999999999", 10)
	got := ScaleAnswer(answer, 21)
	if got.String() != "1999999999999999999" {
		t.Fatalf("unexpected scaled answer %s", got)
	}
}

func TestSetApplicationRotatesTrust(t *testing.T) {
	f := newFixture(t)
	next := newTestAddress(0x0C)
	if err := f.engine.SetApplicationAddress(f.app, next); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("only the owner may rotate, got %v", err)
	}
	if err := f.engine.SetApplicationAddress(f.owner, next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if ok, _ := f.engine.IsTrusted(f.app); ok {
		t.Fatalf("previous application must lose trust")
	}
	if ok, _ := f.engine.IsTrusted(next); !ok {
		t.Fatalf("new application must be trusted")
	}
}
