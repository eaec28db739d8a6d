package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
)

var (
	errNilState       = errors.New("oracle engine: state not configured")
	errNotInitialised = fmt.Errorf("%w: oracle: not initialised", coreerrors.ErrInvalidState)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type oracleEvent struct {
	evt *types.Event
}

func (e oracleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e oracleEvent) Event() *types.Event { return e.evt }

// Engine stores asset prices pushed by trusted accounts and resolves feed
// backed prices. Prices are wei per smallest asset unit; the native asset is
// always priced at one.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	nowFn       func() time.Time
	commissions CommissionSource
}

// NewEngine constructs an oracle engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp prices.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetCommissionSource wires the lookup used by GetBuyingCost and
// GetPayoutAmount.
func (e *Engine) SetCommissionSource(source CommissionSource) { e.commissions = source }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(oracleEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn().Unix())
}

// Init records the owner and trusts the application account used by the
// off-chain worker.
func (e *Engine) Init(owner, application [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	var existing [20]byte
	ok, err := e.state.KVGet(ownerKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: oracle: already initialised", coreerrors.ErrAlreadyExists)
	}
	if types.IsZeroAddress(owner) {
		return fmt.Errorf("%w: oracle: owner required", coreerrors.ErrInvalidArgument)
	}
	if err := e.state.KVPut(ownerKey, owner); err != nil {
		return err
	}
	if types.IsZeroAddress(application) {
		return nil
	}
	if err := e.state.KVPut(applicationKey, application); err != nil {
		return err
	}
	return e.setTrusted(application, true)
}

// Owner returns the oracle owner.
func (e *Engine) Owner() ([20]byte, error) {
	var owner [20]byte
	if e == nil || e.state == nil {
		return owner, errNilState
	}
	ok, err := e.state.KVGet(ownerKey, &owner)
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, errNotInitialised
	}
	return owner, nil
}

// Application returns the trusted application account.
func (e *Engine) Application() ([20]byte, error) {
	var app [20]byte
	if e == nil || e.state == nil {
		return app, errNilState
	}
	_, err := e.state.KVGet(applicationKey, &app)
	return app, err
}

func (e *Engine) requireOwner(caller [20]byte) error {
	owner, err := e.Owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: oracle: caller must be the owner", coreerrors.ErrUnauthorized)
	}
	return nil
}

func (e *Engine) requireTrusted(caller [20]byte) error {
	if _, err := e.Owner(); err != nil {
		return err
	}
	trusted, err := e.IsTrusted(caller)
	if err != nil {
		return err
	}
	if !trusted {
		return fmt.Errorf("%w: oracle: caller must be a trusted account", coreerrors.ErrUnauthorized)
	}
	return nil
}

// IsTrusted reports whether account may push prices.
func (e *Engine) IsTrusted(account [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var trusted bool
	if _, err := e.state.KVGet(trustedKey(account), &trusted); err != nil {
		return false, err
	}
	return trusted, nil
}

func (e *Engine) setTrusted(account [20]byte, trusted bool) error {
	if err := e.state.KVPut(trustedKey(account), trusted); err != nil {
		return err
	}
	e.emit(trustedUpdatedEvent(account, trusted))
	return nil
}

// SetTrustedAccount adds or removes account from the trusted set.
func (e *Engine) SetTrustedAccount(caller, account [20]byte, trusted bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return fmt.Errorf("%w: oracle: account required", coreerrors.ErrInvalidArgument)
	}
	return e.setTrusted(account, trusted)
}

// SetApplicationAddress replaces the application account. The previous
// application loses its trusted status.
func (e *Engine) SetApplicationAddress(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return fmt.Errorf("%w: oracle: application required", coreerrors.ErrInvalidArgument)
	}
	previous, err := e.Application()
	if err != nil {
		return err
	}
	if !types.IsZeroAddress(previous) && previous != account {
		if err := e.setTrusted(previous, false); err != nil {
			return err
		}
	}
	if err := e.state.KVPut(applicationKey, account); err != nil {
		return err
	}
	if err := e.setTrusted(account, true); err != nil {
		return err
	}
	e.emit(applicationUpdatedEvent(previous, account))
	return nil
}

func validatePrice(asset [20]byte, price *big.Int) error {
	if asset == types.NativeAsset {
		return fmt.Errorf("%w: oracle: the native asset is priced at one", coreerrors.ErrInvalidArgument)
	}
	if types.IsZeroAddress(asset) {
		return fmt.Errorf("%w: oracle: asset required", coreerrors.ErrInvalidArgument)
	}
	if !types.FitsUint256(price) {
		return fmt.Errorf("%w: oracle: price must be a non-negative 256-bit integer", coreerrors.ErrInvalidArgument)
	}
	return nil
}

// SetPrice overwrites the stored price of asset.
func (e *Engine) SetPrice(caller, asset [20]byte, price *big.Int) error {
	return e.SetPrices(caller, []PriceUpdate{{Asset: asset, Price: price}})
}

// SetPrices overwrites several prices. Every update is validated before any is
// written.
func (e *Engine) SetPrices(caller [20]byte, updates []PriceUpdate) error {
	if err := e.requireTrusted(caller); err != nil {
		return err
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: oracle: empty price batch", coreerrors.ErrInvalidArgument)
	}
	for _, update := range updates {
		if err := validatePrice(update.Asset, update.Price); err != nil {
			return err
		}
	}
	now := e.now()
	for _, update := range updates {
		record := &PriceRecord{Price: new(big.Int).Set(update.Price), UpdatedAt: now}
		if err := e.state.KVPut(priceKey(update.Asset), record); err != nil {
			return err
		}
		e.emit(priceUpdatedEvent(update.Asset, record, caller))
	}
	return nil
}

// StoredPrice returns the price pushed for asset, ignoring its origin.
func (e *Engine) StoredPrice(asset [20]byte) (*PriceRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record := new(PriceRecord)
	ok, err := e.state.KVGet(priceKey(asset), record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Price == nil {
		return &PriceRecord{Price: new(big.Int)}, nil
	}
	return record, nil
}

// GetPrice returns the current price of asset and when it was last updated.
// A zero price means the asset was never priced.
func (e *Engine) GetPrice(asset [20]byte) (*big.Int, uint64, error) {
	if e == nil || e.state == nil {
		return nil, 0, errNilState
	}
	if asset == types.NativeAsset {
		return big.NewInt(1), 0, nil
	}
	origin, err := e.PriceOrigin(asset)
	if err != nil {
		return nil, 0, err
	}
	if origin == types.PriceOriginChainlink {
		return e.feedPrice(asset)
	}
	record, err := e.StoredPrice(asset)
	if err != nil {
		return nil, 0, err
	}
	return record.Price, record.UpdatedAt, nil
}

func (e *Engine) feedPrice(asset [20]byte) (*big.Int, uint64, error) {
	feed, err := e.FeedAddress(asset)
	if err != nil {
		return nil, 0, err
	}
	if types.IsZeroAddress(feed) {
		return new(big.Int), 0, nil
	}
	round, err := e.LatestRound(feed)
	if err != nil {
		return nil, 0, err
	}
	if round == nil || round.Answer == nil {
		return new(big.Int), 0, nil
	}
	return ScaleAnswer(round.Answer, round.Decimals), round.UpdatedAt, nil
}

// ScaleAnswer converts a feed answer with the given decimals to
// TargetDecimals precision, truncating when the feed is more precise.
func ScaleAnswer(answer *big.Int, decimals uint8) *big.Int {
	out := new(big.Int).Set(answer)
	switch {
	case decimals < TargetDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(TargetDecimals-decimals)), nil)
		out.Mul(out, factor)
	case decimals > TargetDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-TargetDecimals)), nil)
		out.Quo(out, factor)
	}
	return out
}

// PriceOrigin returns where asset's price is sourced from.
func (e *Engine) PriceOrigin(asset [20]byte) (types.PriceOrigin, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var origin types.PriceOrigin
	if _, err := e.state.KVGet(originKey(asset), &origin); err != nil {
		return 0, err
	}
	return origin, nil
}

// SetPriceOrigin switches asset between stored and feed pricing.
func (e *Engine) SetPriceOrigin(caller, asset [20]byte, origin types.PriceOrigin) error {
	if err := e.requireTrusted(caller); err != nil {
		return err
	}
	if origin > types.PriceOriginChainlink {
		return fmt.Errorf("%w: oracle: unknown price origin %d", coreerrors.ErrInvalidArgument, origin)
	}
	if err := e.state.KVPut(originKey(asset), origin); err != nil {
		return err
	}
	e.emit(originUpdatedEvent(asset, origin))
	return nil
}

// FeedAddress returns the price feed configured for asset.
func (e *Engine) FeedAddress(asset [20]byte) ([20]byte, error) {
	var feed [20]byte
	if e == nil || e.state == nil {
		return feed, errNilState
	}
	_, err := e.state.KVGet(feedKey(asset), &feed)
	return feed, err
}

// SetChainlinkPriceFeedAddress configures the feed consulted when asset uses
// the feed origin.
func (e *Engine) SetChainlinkPriceFeedAddress(caller, asset, feed [20]byte) error {
	if err := e.requireTrusted(caller); err != nil {
		return err
	}
	if err := e.state.KVPut(feedKey(asset), feed); err != nil {
		return err
	}
	e.emit(feedUpdatedEvent(asset, feed))
	return nil
}

// PublishFeedRound records the latest answer of an in-ledger feed.
func (e *Engine) PublishFeedRound(caller, feed [20]byte, answer *big.Int, decimals uint8) error {
	if err := e.requireTrusted(caller); err != nil {
		return err
	}
	if types.IsZeroAddress(feed) {
		return fmt.Errorf("%w: oracle: feed required", coreerrors.ErrInvalidArgument)
	}
	if !types.FitsUint256(answer) {
		return fmt.Errorf("%w: oracle: answer must be a non-negative 256-bit integer", coreerrors.ErrInvalidArgument)
	}
	round := &FeedRound{Answer: new(big.Int).Set(answer), Decimals: decimals, UpdatedAt: e.now()}
	if err := e.state.KVPut(feedRoundKey(feed), round); err != nil {
		return err
	}
	e.emit(feedRoundEvent(feed, round))
	return nil
}

// LatestRound returns the last round published to feed, or nil when none was.
func (e *Engine) LatestRound(feed [20]byte) (*FeedRound, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	round := new(FeedRound)
	ok, err := e.state.KVGet(feedRoundKey(feed), round)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return round, nil
}

// AssetType returns the class recorded for asset.
func (e *Engine) AssetType(asset [20]byte) (types.AssetType, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if asset == types.NativeAsset {
		return types.AssetTypeNative, nil
	}
	var assetType types.AssetType
	if _, err := e.state.KVGet(assetTypeKey(asset), &assetType); err != nil {
		return 0, err
	}
	return assetType, nil
}

// SetAssetType records the class of asset.
func (e *Engine) SetAssetType(caller, asset [20]byte, assetType types.AssetType) error {
	if err := e.requireTrusted(caller); err != nil {
		return err
	}
	if !assetType.Valid() {
		return fmt.Errorf("%w: oracle: unknown asset type %d", coreerrors.ErrInvalidArgument, assetType)
	}
	if err := e.state.KVPut(assetTypeKey(asset), assetType); err != nil {
		return err
	}
	e.emit(assetTypeUpdatedEvent(asset, assetType))
	return nil
}

// SetAssetTypeMirrored marks asset as a mirrored token.
func (e *Engine) SetAssetTypeMirrored(caller, asset [20]byte) error {
	return e.SetAssetType(caller, asset, types.AssetTypeMirrored)
}

func (e *Engine) commission(asset [20]byte) (*big.Int, error) {
	if asset == types.NativeAsset || e.commissions == nil {
		return new(big.Int), nil
	}
	commission, err := e.commissions.Commission(asset)
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return new(big.Int), nil
	}
	return commission, nil
}

func (e *Engine) principal(asset [20]byte, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: oracle: amount must be non-negative", coreerrors.ErrInvalidArgument)
	}
	price, _, err := e.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("%w: oracle: no price for %s", coreerrors.ErrInvalidState, types.HexAddress(asset))
	}
	total := new(big.Int).Mul(price, amount)
	if !types.FitsUint256(total) {
		return nil, fmt.Errorf("%w: oracle: value overflows 256 bits", coreerrors.ErrInvalidArgument)
	}
	return total, nil
}

// GetBuyingCost returns price*amount plus the asset's commission.
func (e *Engine) GetBuyingCost(asset [20]byte, amount *big.Int) (*big.Int, error) {
	total, err := e.principal(asset, amount)
	if err != nil {
		return nil, err
	}
	commission, err := e.commission(asset)
	if err != nil {
		return nil, err
	}
	return total.Add(total, commission), nil
}

// GetPayoutAmount returns price*amount minus the asset's commission.
func (e *Engine) GetPayoutAmount(asset [20]byte, amount *big.Int) (*big.Int, error) {
	total, err := e.principal(asset, amount)
	if err != nil {
		return nil, err
	}
	commission, err := e.commission(asset)
	if err != nil {
		return nil, err
	}
	if total.Cmp(commission) < 0 {
		return nil, fmt.Errorf("%w: oracle: payout %s does not cover commission %s", coreerrors.ErrInsufficientFunds, total, commission)
	}
	return total.Sub(total, commission), nil
}
