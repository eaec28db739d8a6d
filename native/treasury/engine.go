package treasury

import (
	"errors"
	"fmt"
	"math/big"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/common"
	"portfolium/native/synthetic"
)

var (
	errNilState   = errors.New("treasury engine: state not configured")
	errNilAddress = errors.New("treasury engine: address not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type treasuryEvent struct {
	evt *types.Event
}

func (e treasuryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e treasuryEvent) Event() *types.Event { return e.evt }

// Engine custodies every asset held by portfolios and keeps a per-account
// ledger of what each portfolio owns. Mutations are restricted to the
// portfolium account; the ledger total of an asset never exceeds what the
// treasury actually holds.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	address   [20]byte
	tokens    TokenLedger
	mirrored  MirroredAssets
	synthetic SyntheticAssets
	router    SwapRouter
}

// NewEngine constructs a treasury engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAddress configures the custody account.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the custody account.
func (e *Engine) Address() [20]byte { return e.address }

// SetTokens wires the ERC-20 token engine.
func (e *Engine) SetTokens(tokens TokenLedger) { e.tokens = tokens }

// SetMirrored wires the mirrored token engine.
func (e *Engine) SetMirrored(mirrored MirroredAssets) { e.mirrored = mirrored }

// SetSynthetic wires the synthetic token engine.
func (e *Engine) SetSynthetic(synthetic SyntheticAssets) { e.synthetic = synthetic }

// SetRouter wires the swap router used for ERC-20 assets.
func (e *Engine) SetRouter(router SwapRouter) { e.router = router }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(treasuryEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if types.IsZeroAddress(e.address) {
		return errNilAddress
	}
	return nil
}

func (e *Engine) ledger() *common.Ledger {
	return common.NewLedger(e.state, ledgerNamespace)
}

// Init records the owner and registers the native asset.
func (e *Engine) Init(owner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	ok, err := e.state.KVGet(ownerKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: treasury: already initialised", coreerrors.ErrAlreadyExists)
	}
	if types.IsZeroAddress(owner) {
		return fmt.Errorf("%w: treasury: owner required", coreerrors.ErrInvalidArgument)
	}
	if err := e.state.KVPut(ownerKey, owner); err != nil {
		return err
	}
	native := &Token{
		Address:  types.NativeAsset,
		Type:     types.AssetTypeNative,
		Name:     types.NativeMetadata.Name,
		Symbol:   types.NativeMetadata.Symbol,
		Decimals: types.NativeMetadata.Decimals,
	}
	return e.putToken(native)
}

// Owner returns the treasury owner.
func (e *Engine) Owner() ([20]byte, error) {
	var owner [20]byte
	if err := e.ready(); err != nil {
		return owner, err
	}
	ok, err := e.state.KVGet(ownerKey, &owner)
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, fmt.Errorf("%w: treasury: not initialised", coreerrors.ErrInvalidState)
	}
	return owner, nil
}

// Portfolium returns the account allowed to move portfolio holdings.
func (e *Engine) Portfolium() ([20]byte, error) {
	var addr [20]byte
	if err := e.ready(); err != nil {
		return addr, err
	}
	if _, err := e.state.KVGet(portfoliumKey, &addr); err != nil {
		return addr, err
	}
	return addr, nil
}

// SetPortfoliumAddress links the treasury to the fund engine. Only the owner
// may call it and the link can be set once.
func (e *Engine) SetPortfoliumAddress(caller, addr [20]byte) error {
	owner, err := e.Owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: treasury: caller must be the owner", coreerrors.ErrUnauthorized)
	}
	if types.IsZeroAddress(addr) {
		return fmt.Errorf("%w: treasury: portfolium address required", coreerrors.ErrInvalidArgument)
	}
	ok, err := e.state.KVGet(portfoliumKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: treasury: portfolium address already set", coreerrors.ErrAlreadyExists)
	}
	if err := e.state.KVPut(portfoliumKey, addr); err != nil {
		return err
	}
	e.emit(portfoliumSetEvent(addr))
	return nil
}

func (e *Engine) requirePortfolium(caller [20]byte) error {
	portfolium, err := e.Portfolium()
	if err != nil {
		return err
	}
	if types.IsZeroAddress(portfolium) || caller != portfolium {
		return fmt.Errorf("%w: treasury: caller must be the portfolium", coreerrors.ErrUnauthorized)
	}
	return nil
}

func (e *Engine) putToken(token *Token) error {
	if err := e.state.KVPut(tokenKey(token.Address), token); err != nil {
		return err
	}
	list, err := e.Tokens()
	if err != nil {
		return err
	}
	return e.state.KVPut(tokenListKey, append(list, token.Address))
}

func (e *Engine) directory(assetType types.AssetType) (MetadataSource, error) {
	var source MetadataSource
	switch assetType {
	case types.AssetTypeERC20:
		if e.tokens != nil {
			source = e.tokens
		}
	case types.AssetTypeMirrored:
		if e.mirrored != nil {
			source = e.mirrored
		}
	case types.AssetTypeSynthetic:
		if e.synthetic != nil {
			source = e.synthetic
		}
	default:
		return nil, fmt.Errorf("%w: treasury: %s assets cannot be registered", coreerrors.ErrInvalidArgument, assetType)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: treasury: no %s directory configured", coreerrors.ErrInvalidState, assetType)
	}
	return source, nil
}

// AddAsset registers asset of the given type, resolving its metadata from the
// owning token engine.
func (e *Engine) AddAsset(caller, asset [20]byte, assetType types.AssetType) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return err
	}
	exists, err := e.TokenExists(asset)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: treasury: token %s already registered", coreerrors.ErrAlreadyExists, types.HexAddress(asset))
	}
	source, err := e.directory(assetType)
	if err != nil {
		return err
	}
	meta, err := source.Metadata(asset)
	if err != nil {
		return err
	}
	token := &Token{
		Address:  asset,
		Type:     assetType,
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
	}
	if err := e.putToken(token); err != nil {
		return err
	}
	e.emit(tokenEvent(EventTypeTokenAdded, token))
	return nil
}

// AddERC20Asset registers an ERC-20 token.
func (e *Engine) AddERC20Asset(caller, asset [20]byte) error {
	return e.AddAsset(caller, asset, types.AssetTypeERC20)
}

// AddMirroredAsset registers a mirrored token.
func (e *Engine) AddMirroredAsset(caller, asset [20]byte) error {
	return e.AddAsset(caller, asset, types.AssetTypeMirrored)
}

// AddSyntheticAsset registers a synthetic token.
func (e *Engine) AddSyntheticAsset(caller, asset [20]byte) error {
	return e.AddAsset(caller, asset, types.AssetTypeSynthetic)
}

// RemoveToken unregisters asset. Ledger balances are left untouched.
func (e *Engine) RemoveToken(caller, asset [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return err
	}
	if asset == types.NativeAsset {
		return fmt.Errorf("%w: treasury: native asset cannot be removed", coreerrors.ErrInvalidArgument)
	}
	token, err := e.GetToken(asset)
	if err != nil {
		return err
	}
	if err := e.state.KVDelete(tokenKey(asset)); err != nil {
		return err
	}
	list, err := e.Tokens()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, addr := range list {
		if addr != asset {
			kept = append(kept, addr)
		}
	}
	if err := e.state.KVPut(tokenListKey, kept); err != nil {
		return err
	}
	e.emit(tokenEvent(EventTypeTokenRemoved, token))
	return nil
}

// TokenExists reports whether asset is registered.
func (e *Engine) TokenExists(asset [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.KVGet(tokenKey(asset), nil)
}

// GetToken returns the registry entry of asset.
func (e *Engine) GetToken(asset [20]byte) (*Token, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	token := new(Token)
	ok, err := e.state.KVGet(tokenKey(asset), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: treasury: token %s not registered", coreerrors.ErrNotFound, types.HexAddress(asset))
	}
	return token, nil
}

// Tokens lists registered assets in registration order.
func (e *Engine) Tokens() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var list [][20]byte
	if _, err := e.state.KVGet(tokenListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Deposit moves value of native currency from caller into custody and credits
// account with the same amount.
func (e *Engine) Deposit(caller, account [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("%w: treasury: deposit must be positive", coreerrors.ErrInvalidArgument)
	}
	if err := common.Pay(e.state, caller, e.address, value); err != nil {
		return err
	}
	if err := e.ledger().Mint(types.NativeAsset, account, value); err != nil {
		return err
	}
	e.emit(movementEvent(EventTypeDeposited, account, types.NativeAsset, value, value))
	return nil
}

// BuyAsset acquires amount of asset for account, paying at most value of
// native currency taken from caller. Unspent value is returned to caller. The
// ledger is credited with what was actually received, which for synthetic
// assets happens once the buy order settles. It returns the amount credited
// immediately.
func (e *Engine) BuyAsset(caller, account, asset [20]byte, amount, value *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return nil, err
	}
	token, err := e.GetToken(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: treasury: buy amount must be positive", coreerrors.ErrInvalidArgument)
	}
	if value == nil || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: treasury: invalid payment", coreerrors.ErrInvalidArgument)
	}
	if err := common.Pay(e.state, caller, e.address, value); err != nil {
		return nil, err
	}
	var received, spent *big.Int
	switch token.Type {
	case types.AssetTypeMirrored:
		if e.mirrored == nil {
			return nil, fmt.Errorf("%w: treasury: mirrored engine not configured", coreerrors.ErrInvalidState)
		}
		spent, err = e.mirrored.Mint(e.address, asset, amount, value)
		if err != nil {
			return nil, err
		}
		received = new(big.Int).Set(amount)
	case types.AssetTypeERC20:
		if e.router == nil {
			return nil, fmt.Errorf("%w: treasury: swap router not configured", coreerrors.ErrInvalidState)
		}
		received, err = e.router.Swap(e.address, types.NativeAsset, asset, value, amount, e.address)
		if err != nil {
			return nil, err
		}
		spent = new(big.Int).Set(value)
	case types.AssetTypeSynthetic:
		spent, err = e.placeBuyOrder(account, asset, amount, value)
		if err != nil {
			return nil, err
		}
		received = new(big.Int)
	default:
		return nil, fmt.Errorf("%w: treasury: %s assets cannot be bought", coreerrors.ErrInvalidArgument, token.Type)
	}
	if refund := new(big.Int).Sub(value, spent); refund.Sign() > 0 {
		if err := common.Pay(e.state, e.address, caller, refund); err != nil {
			return nil, err
		}
	}
	if received.Sign() > 0 {
		if err := e.ledger().Mint(asset, account, received); err != nil {
			return nil, err
		}
	}
	e.emit(movementEvent(EventTypeAssetBought, account, asset, received, spent))
	return received, nil
}

func (e *Engine) placeBuyOrder(account, asset [20]byte, amount, value *big.Int) (*big.Int, error) {
	if e.synthetic == nil {
		return nil, fmt.Errorf("%w: treasury: synthetic engine not configured", coreerrors.ErrInvalidState)
	}
	index, err := e.synthetic.PlaceBuyOrder(e.address, asset, amount, value)
	if err != nil {
		return nil, err
	}
	order, err := e.synthetic.BuyOrder(asset, index)
	if err != nil {
		return nil, err
	}
	pending := &PendingOrder{Account: account, Amount: new(big.Int).Set(amount)}
	if err := e.state.KVPut(pendingKey(asset, synthetic.OrderSideBuy, index), pending); err != nil {
		return nil, err
	}
	e.emit(orderEvent(EventTypeOrderPlaced, asset, synthetic.OrderSideBuy, index, pending))
	return order.Value, nil
}

// SellAsset disposes of amount of account's asset and sends the proceeds in
// native currency to recipient. When recipient is the treasury itself the
// proceeds stay in custody and are credited to account as native currency.
// Synthetic assets are sold through a sell order whose payout is forwarded
// when it settles. It returns the proceeds paid immediately.
func (e *Engine) SellAsset(caller, account, asset [20]byte, amount *big.Int, recipient [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return nil, err
	}
	token, err := e.GetToken(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: treasury: sell amount must be positive", coreerrors.ErrInvalidArgument)
	}
	if err := e.ledger().Burn(asset, account, amount); err != nil {
		return nil, err
	}
	var proceeds *big.Int
	switch token.Type {
	case types.AssetTypeNative:
		proceeds = new(big.Int).Set(amount)
		if err := e.payOut(account, recipient, proceeds); err != nil {
			return nil, err
		}
	case types.AssetTypeMirrored:
		if e.mirrored == nil {
			return nil, fmt.Errorf("%w: treasury: mirrored engine not configured", coreerrors.ErrInvalidState)
		}
		proceeds, err = e.mirrored.Burn(e.address, asset, amount)
		if err != nil {
			return nil, err
		}
		if err := e.payOut(account, recipient, proceeds); err != nil {
			return nil, err
		}
	case types.AssetTypeERC20:
		if e.router == nil {
			return nil, fmt.Errorf("%w: treasury: swap router not configured", coreerrors.ErrInvalidState)
		}
		proceeds, err = e.router.Swap(e.address, asset, types.NativeAsset, amount, new(big.Int), e.address)
		if err != nil {
			return nil, err
		}
		if err := e.payOut(account, recipient, proceeds); err != nil {
			return nil, err
		}
	case types.AssetTypeSynthetic:
		if err := e.placeSellOrder(account, asset, amount, recipient); err != nil {
			return nil, err
		}
		proceeds = new(big.Int)
	default:
		return nil, fmt.Errorf("%w: treasury: %s assets cannot be sold", coreerrors.ErrInvalidArgument, token.Type)
	}
	e.emit(movementEvent(EventTypeAssetSold, account, asset, amount, proceeds))
	return proceeds, nil
}

func (e *Engine) payOut(account, recipient [20]byte, amount *big.Int) error {
	if recipient == e.address {
		if amount.Sign() == 0 {
			return nil
		}
		return e.ledger().Mint(types.NativeAsset, account, amount)
	}
	return common.Pay(e.state, e.address, recipient, amount)
}

func (e *Engine) placeSellOrder(account, asset [20]byte, amount *big.Int, recipient [20]byte) error {
	if e.synthetic == nil {
		return fmt.Errorf("%w: treasury: synthetic engine not configured", coreerrors.ErrInvalidState)
	}
	index, err := e.synthetic.PlaceSellOrder(e.address, asset, amount)
	if err != nil {
		return err
	}
	pending := &PendingOrder{Account: account, Recipient: recipient, Amount: new(big.Int).Set(amount)}
	if err := e.state.KVPut(pendingKey(asset, synthetic.OrderSideSell, index), pending); err != nil {
		return err
	}
	e.emit(orderEvent(EventTypeOrderPlaced, asset, synthetic.OrderSideSell, index, pending))
	return nil
}

// OrderSettled completes the treasury side of a synthetic order placed on
// behalf of a portfolio. Orders of other traders are ignored.
func (e *Engine) OrderSettled(token [20]byte, side synthetic.OrderSide, order *synthetic.Order) error {
	if err := e.ready(); err != nil {
		return err
	}
	if order == nil || order.Trader != e.address {
		return nil
	}
	key := pendingKey(token, side, order.Index)
	pending := new(PendingOrder)
	ok, err := e.state.KVGet(key, pending)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: treasury: no pending %s order %d", coreerrors.ErrNotFound, side, order.Index)
	}
	switch side {
	case synthetic.OrderSideBuy:
		if err := e.ledger().Mint(token, pending.Account, order.Amount); err != nil {
			return err
		}
	case synthetic.OrderSideSell:
		if err := e.payOut(pending.Account, pending.Recipient, order.Value); err != nil {
			return err
		}
	}
	if err := e.state.KVDelete(key); err != nil {
		return err
	}
	e.emit(orderEvent(EventTypeOrderSettled, token, side, order.Index, pending))
	return nil
}

// PendingOrder returns the unsettled order record for a synthetic order the
// treasury placed.
func (e *Engine) PendingOrder(token [20]byte, side synthetic.OrderSide, index uint64) (*PendingOrder, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pending := new(PendingOrder)
	ok, err := e.state.KVGet(pendingKey(token, side, index), pending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: treasury: no pending %s order %d", coreerrors.ErrNotFound, side, index)
	}
	return pending, nil
}

// SwapTokens exchanges amountIn of account's from asset into the to asset
// through the router. Only native and ERC-20 assets can be swapped.
func (e *Engine) SwapTokens(caller, account, from, to [20]byte, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return nil, err
	}
	if e.router == nil {
		return nil, fmt.Errorf("%w: treasury: swap router not configured", coreerrors.ErrInvalidState)
	}
	for _, asset := range [][20]byte{from, to} {
		token, err := e.GetToken(asset)
		if err != nil {
			return nil, err
		}
		if token.Type != types.AssetTypeNative && token.Type != types.AssetTypeERC20 {
			return nil, fmt.Errorf("%w: treasury: %s assets cannot be swapped", coreerrors.ErrInvalidArgument, token.Type)
		}
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: treasury: swap amount must be positive", coreerrors.ErrInvalidArgument)
	}
	if minOut == nil {
		minOut = new(big.Int)
	}
	ledger := e.ledger()
	if err := ledger.Burn(from, account, amountIn); err != nil {
		return nil, err
	}
	out, err := e.router.Swap(e.address, from, to, amountIn, minOut, e.address)
	if err != nil {
		return nil, err
	}
	if err := ledger.Mint(to, account, out); err != nil {
		return nil, err
	}
	e.emit(swapEvent(EventTypeSwapped, account, from, to, amountIn, out))
	return out, nil
}

// Withdraw debits amount of asset from account and transfers it out of
// custody to recipient.
func (e *Engine) Withdraw(caller, account, asset [20]byte, amount *big.Int, recipient [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requirePortfolium(caller); err != nil {
		return err
	}
	token, err := e.GetToken(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: treasury: withdraw amount must be positive", coreerrors.ErrInvalidArgument)
	}
	if err := e.ledger().Burn(asset, account, amount); err != nil {
		return err
	}
	switch token.Type {
	case types.AssetTypeNative:
		err = common.Pay(e.state, e.address, recipient, amount)
	case types.AssetTypeERC20:
		err = e.transferOut(e.tokens != nil, func() error { return e.tokens.Transfer(e.address, asset, recipient, amount) })
	case types.AssetTypeMirrored:
		err = e.transferOut(e.mirrored != nil, func() error { return e.mirrored.Transfer(e.address, asset, recipient, amount) })
	case types.AssetTypeSynthetic:
		err = e.transferOut(e.synthetic != nil, func() error { return e.synthetic.Transfer(e.address, asset, recipient, amount) })
	default:
		err = fmt.Errorf("%w: treasury: %s assets cannot be withdrawn", coreerrors.ErrInvalidArgument, token.Type)
	}
	if err != nil {
		return err
	}
	e.emit(movementEvent(EventTypeWithdrawn, account, asset, amount, new(big.Int)))
	return nil
}

func (e *Engine) transferOut(configured bool, transfer func() error) error {
	if !configured {
		return fmt.Errorf("%w: treasury: token engine not configured", coreerrors.ErrInvalidState)
	}
	return transfer()
}

// GetBalanceOf returns the ledger balance of asset held for account.
func (e *Engine) GetBalanceOf(account, asset [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ledger().BalanceOf(asset, account)
}

// TotalOf returns the sum of all ledger balances of asset.
func (e *Engine) TotalOf(asset [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ledger().TotalSupply(asset)
}

// Custody returns the amount of asset the treasury account actually holds.
func (e *Engine) Custody(asset [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	token, err := e.GetToken(asset)
	if err != nil {
		return nil, err
	}
	switch token.Type {
	case types.AssetTypeNative:
		return e.state.Balance(e.address)
	case types.AssetTypeERC20:
		if e.tokens != nil {
			return e.tokens.BalanceOf(asset, e.address)
		}
	case types.AssetTypeMirrored:
		if e.mirrored != nil {
			return e.mirrored.BalanceOf(asset, e.address)
		}
	case types.AssetTypeSynthetic:
		if e.synthetic != nil {
			return e.synthetic.BalanceOf(asset, e.address)
		}
	}
	return nil, fmt.Errorf("%w: treasury: no custody view for %s", coreerrors.ErrInvalidState, token.Type)
}
