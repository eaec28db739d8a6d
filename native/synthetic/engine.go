package synthetic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/common"
)

var (
	errNilState       = errors.New("synthetic engine: state not configured")
	errNilPricer      = errors.New("synthetic engine: pricer not configured")
	errNilReserve     = errors.New("synthetic engine: reserve not configured")
	errNotInitialised = fmt.Errorf("%w: synthetic: not initialised", coreerrors.ErrInvalidState)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type syntheticEvent struct {
	evt *types.Event
}

func (e syntheticEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e syntheticEvent) Event() *types.Event { return e.evt }

// Engine deploys synthetic tokens and runs their asynchronous order books.
// Buyers pay up front and receive tokens once the application account
// completes the order; sellers lock tokens and are paid on completion.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
	pricer  Pricer
	reserve Reserve
	hook    SettlementHook
}

// NewEngine constructs a synthetic engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPricer wires the oracle.
func (e *Engine) SetPricer(pricer Pricer) { e.pricer = pricer }

// SetReserve wires the settlement reserve.
func (e *Engine) SetReserve(reserve Reserve) { e.reserve = reserve }

// SetSettlementHook registers the listener notified after each completion.
func (e *Engine) SetSettlementHook(hook SettlementHook) { e.hook = hook }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp orders.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(syntheticEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn().Unix())
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.pricer == nil {
		return errNilPricer
	}
	if e.reserve == nil {
		return errNilReserve
	}
	return nil
}

func (e *Engine) ledger() (*common.Ledger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return common.NewLedger(e.state, ledgerNamespace), nil
}

// Init records the owner and the application account allowed to complete
// orders.
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
		return fmt.Errorf("%w: synthetic: already initialised", coreerrors.ErrAlreadyExists)
	}
	if types.IsZeroAddress(owner) {
		return fmt.Errorf("%w: synthetic: owner required", coreerrors.ErrInvalidArgument)
	}
	if err := e.state.KVPut(ownerKey, owner); err != nil {
		return err
	}
	return e.state.KVPut(applicationKey, application)
}

// Owner returns the engine owner.
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

// Application returns the account allowed to complete orders.
func (e *Engine) Application() ([20]byte, error) {
	var app [20]byte
	if _, err := e.Owner(); err != nil {
		return app, err
	}
	_, err := e.state.KVGet(applicationKey, &app)
	return app, err
}

// SetApplicationAddress replaces the application account. Only the owner may
// call it.
func (e *Engine) SetApplicationAddress(caller, application [20]byte) error {
	owner, err := e.Owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: synthetic: caller must be the owner", coreerrors.ErrUnauthorized)
	}
	if types.IsZeroAddress(application) {
		return fmt.Errorf("%w: synthetic: application required", coreerrors.ErrInvalidArgument)
	}
	if err := e.state.KVPut(applicationKey, application); err != nil {
		return err
	}
	e.emit(applicationUpdatedEvent(application))
	return nil
}

// Deploy creates a synthetic token owned by caller and returns its address.
func (e *Engine) Deploy(caller [20]byte, details Details, commission *big.Int) ([20]byte, error) {
	var addr [20]byte
	if e == nil || e.state == nil {
		return addr, errNilState
	}
	details.Name = strings.TrimSpace(details.Name)
	details.Symbol = strings.TrimSpace(details.Symbol)
	if details.Name == "" || details.Symbol == "" {
		return addr, fmt.Errorf("%w: synthetic: name and symbol required", coreerrors.ErrInvalidArgument)
	}
	if commission == nil {
		commission = new(big.Int)
	}
	if !types.FitsUint256(commission) {
		return addr, fmt.Errorf("%w: synthetic: invalid commission", coreerrors.ErrInvalidArgument)
	}
	var count uint64
	if _, err := e.state.KVGet(tokenCountKey, &count); err != nil {
		return addr, err
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], count)
	addr = types.DeriveAddress("portfolium/synthetic", caller[:], nonce[:])
	details.Owner = caller
	details.Commission = new(big.Int).Set(commission)
	if err := e.state.KVPut(detailsKey(addr), &details); err != nil {
		return addr, err
	}
	tokens, err := e.Tokens()
	if err != nil {
		return addr, err
	}
	if err := e.state.KVPut(tokenListKey, append(tokens, addr)); err != nil {
		return addr, err
	}
	if err := e.state.KVPut(tokenCountKey, count+1); err != nil {
		return addr, err
	}
	e.emit(deployedEvent(addr, &details))
	return addr, nil
}

// Tokens lists every synthetic token in deployment order.
func (e *Engine) Tokens() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var tokens [][20]byte
	if _, err := e.state.KVGet(tokenListKey, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// AssetDetails returns the token description.
func (e *Engine) AssetDetails(token [20]byte) (*Details, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	details := new(Details)
	ok, err := e.state.KVGet(detailsKey(token), details)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: synthetic: token %s", coreerrors.ErrNotFound, types.HexAddress(token))
	}
	if details.Commission == nil {
		details.Commission = new(big.Int)
	}
	return details, nil
}

// Metadata implements the treasury's asset directory.
func (e *Engine) Metadata(token [20]byte) (types.TokenMetadata, error) {
	details, err := e.AssetDetails(token)
	if err != nil {
		return types.TokenMetadata{}, err
	}
	return details.Metadata(), nil
}

// IsToken reports whether token is a synthetic token.
func (e *Engine) IsToken(token [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.KVGet(detailsKey(token), nil)
}

// Commission returns the per-order commission of token.
func (e *Engine) Commission(token [20]byte) (*big.Int, error) {
	details, err := e.AssetDetails(token)
	if err != nil {
		return nil, err
	}
	return details.Commission, nil
}

// UpdateCommission changes the commission of token. Only the token owner may
// call it.
func (e *Engine) UpdateCommission(caller, token [20]byte, commission *big.Int) error {
	details, err := e.AssetDetails(token)
	if err != nil {
		return err
	}
	if caller != details.Owner {
		return fmt.Errorf("%w: synthetic: caller must be the token owner", coreerrors.ErrUnauthorized)
	}
	if !types.FitsUint256(commission) {
		return fmt.Errorf("%w: synthetic: invalid commission", coreerrors.ErrInvalidArgument)
	}
	details.Commission = new(big.Int).Set(commission)
	if err := e.state.KVPut(detailsKey(token), details); err != nil {
		return err
	}
	e.emit(commissionUpdatedEvent(token, commission))
	return nil
}

func (e *Engine) appendOrder(token [20]byte, side OrderSide, order *Order) error {
	var count uint64
	if _, err := e.state.KVGet(orderCountKey(token, side), &count); err != nil {
		return err
	}
	order.Index = count
	if err := e.state.KVPut(orderKey(token, side, count), order); err != nil {
		return err
	}
	return e.state.KVPut(orderCountKey(token, side), count+1)
}

// PlaceBuyOrder pays the buying cost of amount tokens into the reserve and
// opens a buy order. The excess of value stays with the caller.
func (e *Engine) PlaceBuyOrder(caller, token [20]byte, amount, value *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if _, err := e.AssetDetails(token); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: synthetic: order amount must be positive", coreerrors.ErrInvalidArgument)
	}
	cost, err := e.pricer.GetBuyingCost(token, amount)
	if err != nil {
		return 0, err
	}
	if err := common.Collect(e.state, caller, token, value, cost); err != nil {
		return 0, err
	}
	if err := e.reserve.Deposit(token, cost); err != nil {
		return 0, err
	}
	order := &Order{
		Trader:    caller,
		Amount:    new(big.Int).Set(amount),
		Value:     cost,
		Status:    OrderStatusOpen,
		CreatedAt: e.now(),
	}
	if err := e.appendOrder(token, OrderSideBuy, order); err != nil {
		return 0, err
	}
	e.emit(orderEvent(EventTypeNewBuyOrder, token, order))
	return order.Index, nil
}

// PlaceSellOrder locks amount of caller's tokens and opens a sell order.
func (e *Engine) PlaceSellOrder(caller, token [20]byte, amount *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if _, err := e.AssetDetails(token); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: synthetic: order amount must be positive", coreerrors.ErrInvalidArgument)
	}
	ledger, err := e.ledger()
	if err != nil {
		return 0, err
	}
	if err := ledger.Transfer(token, caller, token, amount); err != nil {
		return 0, err
	}
	order := &Order{
		Trader:    caller,
		Amount:    new(big.Int).Set(amount),
		Value:     new(big.Int),
		Status:    OrderStatusOpen,
		CreatedAt: e.now(),
	}
	if err := e.appendOrder(token, OrderSideSell, order); err != nil {
		return 0, err
	}
	e.emit(orderEvent(EventTypeNewSellOrder, token, order))
	return order.Index, nil
}

func (e *Engine) requireApplication(caller [20]byte) error {
	app, err := e.Application()
	if err != nil {
		return err
	}
	if types.IsZeroAddress(app) || caller != app {
		return fmt.Errorf("%w: synthetic: caller must be the application account", coreerrors.ErrUnauthorized)
	}
	return nil
}

func (e *Engine) openOrder(token [20]byte, side OrderSide, index uint64) (*Order, error) {
	order, err := e.Order(token, side, index)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderStatusOpen {
		return nil, fmt.Errorf("%w: synthetic: %s order %d already %s", coreerrors.ErrAlreadyDecided, side, index, order.Status.StatusString())
	}
	return order, nil
}

func (e *Engine) settle(token [20]byte, side OrderSide, order *Order) error {
	order.Status = OrderStatusCompleted
	order.CompletedAt = e.now()
	if err := e.state.KVPut(orderKey(token, side, order.Index), order); err != nil {
		return err
	}
	if e.hook != nil {
		return e.hook.OrderSettled(token, side, order.Clone())
	}
	return nil
}

// CompleteBuyOrder mints the ordered tokens to the buyer. Only the
// application account may complete orders and each order completes once.
func (e *Engine) CompleteBuyOrder(caller, token [20]byte, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireApplication(caller); err != nil {
		return err
	}
	order, err := e.openOrder(token, OrderSideBuy, index)
	if err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if err := ledger.Mint(token, order.Trader, order.Amount); err != nil {
		return err
	}
	if err := e.settle(token, OrderSideBuy, order); err != nil {
		return err
	}
	e.emit(orderEvent(EventTypeBuyOrderCompleted, token, order))
	return nil
}

// CompleteSellOrder burns the locked tokens and pays the seller the payout
// amount from the reserve.
func (e *Engine) CompleteSellOrder(caller, token [20]byte, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireApplication(caller); err != nil {
		return err
	}
	order, err := e.openOrder(token, OrderSideSell, index)
	if err != nil {
		return err
	}
	payout, err := e.pricer.GetPayoutAmount(token, order.Amount)
	if err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if err := ledger.Burn(token, token, order.Amount); err != nil {
		return err
	}
	if err := e.reserve.Withdraw(token, order.Trader, payout); err != nil {
		return err
	}
	order.Value = payout
	if err := e.settle(token, OrderSideSell, order); err != nil {
		return err
	}
	e.emit(orderEvent(EventTypeSellOrderCompleted, token, order))
	return nil
}

// Order returns one order of token's book.
func (e *Engine) Order(token [20]byte, side OrderSide, index uint64) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order := new(Order)
	ok, err := e.state.KVGet(orderKey(token, side, index), order)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: synthetic: %s order %d", coreerrors.ErrNotFound, side, index)
	}
	return order, nil
}

// BuyOrder returns buy order index of token.
func (e *Engine) BuyOrder(token [20]byte, index uint64) (*Order, error) {
	return e.Order(token, OrderSideBuy, index)
}

// SellOrder returns sell order index of token.
func (e *Engine) SellOrder(token [20]byte, index uint64) (*Order, error) {
	return e.Order(token, OrderSideSell, index)
}

func (e *Engine) orderCount(token [20]byte, side OrderSide) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var count uint64
	if _, err := e.state.KVGet(orderCountKey(token, side), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// BuyOrderCount returns the number of buy orders ever placed for token.
func (e *Engine) BuyOrderCount(token [20]byte) (uint64, error) {
	return e.orderCount(token, OrderSideBuy)
}

// SellOrderCount returns the number of sell orders ever placed for token.
func (e *Engine) SellOrderCount(token [20]byte) (uint64, error) {
	return e.orderCount(token, OrderSideSell)
}

// Transfer moves amount of token from caller to recipient.
func (e *Engine) Transfer(caller, token, to [20]byte, amount *big.Int) error {
	if _, err := e.AssetDetails(token); err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if err := ledger.Transfer(token, caller, to, amount); err != nil {
		return err
	}
	e.emit(transferEvent(token, caller, to, amount))
	return nil
}

// BalanceOf returns the token balance of account. Tokens locked in open sell
// orders are held by the token address itself.
func (e *Engine) BalanceOf(token, account [20]byte) (*big.Int, error) {
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(token, account)
}

// TotalSupply returns the outstanding supply of token, locked tokens
// included.
func (e *Engine) TotalSupply(token [20]byte) (*big.Int, error) {
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply(token)
}
