package fund

import (
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
	errNilState       = errors.New("fund engine: state not configured")
	errNilAddress     = errors.New("fund engine: address not configured")
	errNilDeps        = errors.New("fund engine: collaborators not configured")
	errNotInitialised = fmt.Errorf("%w: fund: not initialised", coreerrors.ErrInvalidState)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type fundEvent struct {
	evt *types.Event
}

func (e fundEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e fundEvent) Event() *types.Event { return e.evt }

// Engine manages user portfolios: the assets they allocate to, the per-share
// backing of each asset and share issuance against the treasury.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	address  [20]byte
	guard    Guard
	treasury Treasury
	pricer   Pricer
	reserve  Reserve
	nowFn    func() time.Time
}

// NewEngine constructs a fund engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAddress configures the account the engine acts as towards the treasury,
// the reserve and the guard.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the engine account.
func (e *Engine) Address() [20]byte { return e.address }

// SetGuard wires the access-control engine.
func (e *Engine) SetGuard(guard Guard) { e.guard = guard }

// SetTreasury wires the treasury.
func (e *Engine) SetTreasury(treasury Treasury) { e.treasury = treasury }

// SetPricer wires the oracle.
func (e *Engine) SetPricer(pricer Pricer) { e.pricer = pricer }

// SetReserve wires the reserve collecting platform commissions.
func (e *Engine) SetReserve(reserve Reserve) { e.reserve = reserve }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for portfolio timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(fundEvent{evt: event})
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
	if types.IsZeroAddress(e.address) {
		return errNilAddress
	}
	if e.guard == nil || e.treasury == nil || e.pricer == nil || e.reserve == nil {
		return errNilDeps
	}
	return nil
}

func (e *Engine) shares() *common.Ledger {
	return common.NewLedger(e.state, sharesNamespace)
}

// Init records the platform owner, the platform commission and the native
// asset description. The native asset is supported from the start.
func (e *Engine) Init(owner [20]byte, platformCommission *big.Int, native types.TokenMetadata) error {
	if err := e.ready(); err != nil {
		return err
	}
	ok, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: fund: already initialised", coreerrors.ErrAlreadyExists)
	}
	if platformCommission == nil {
		platformCommission = new(big.Int)
	}
	if !types.FitsUint256(platformCommission) {
		return fmt.Errorf("%w: fund: invalid platform commission", coreerrors.ErrInvalidArgument)
	}
	cfg := &Config{Owner: owner, PlatformCommission: new(big.Int).Set(platformCommission), Native: native}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	return e.putSupported(&Asset{
		Address:  types.NativeAsset,
		Type:     types.AssetTypeNative,
		Name:     native.Name,
		Symbol:   native.Symbol,
		Decimals: native.Decimals,
	})
}

func (e *Engine) config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg := new(Config)
	ok, err := e.state.KVGet(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialised
	}
	if cfg.PlatformCommission == nil {
		cfg.PlatformCommission = new(big.Int)
	}
	return cfg, nil
}

// Owner returns the platform owner.
func (e *Engine) Owner() ([20]byte, error) {
	cfg, err := e.config()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Owner, nil
}

// PlatformCommission returns the fee charged on portfolio creation and on
// every share purchase or sale.
func (e *Engine) PlatformCommission() (*big.Int, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return cfg.PlatformCommission, nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	held, err := e.guard.HasPortfoliumRole(types.AdminRole, caller)
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: fund: caller must be an admin", coreerrors.ErrUnauthorized)
	}
	return nil
}

// UpdatePlatformCommission changes the platform commission. Guard admins only.
func (e *Engine) UpdatePlatformCommission(caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if value == nil || !types.FitsUint256(value) {
		return fmt.Errorf("%w: fund: invalid platform commission", coreerrors.ErrInvalidArgument)
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	cfg.PlatformCommission = new(big.Int).Set(value)
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	e.emit(commissionUpdatedEvent(value))
	return nil
}

func (e *Engine) putSupported(asset *Asset) error {
	if err := e.state.KVPut(supportedKey(asset.Address), asset); err != nil {
		return err
	}
	list, err := e.SupportedAssets()
	if err != nil {
		return err
	}
	return e.state.KVPut(supportedListKey, append(list, asset.Address))
}

func (e *Engine) addSupported(caller, asset [20]byte, assetType types.AssetType) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	ok, err := e.state.KVGet(supportedKey(asset), nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: fund: asset %s already supported", coreerrors.ErrAlreadyExists, types.HexAddress(asset))
	}
	registered, err := e.treasury.TokenExists(asset)
	if err != nil {
		return err
	}
	if !registered {
		if err := e.treasury.AddAsset(e.address, asset, assetType); err != nil {
			return err
		}
	}
	token, err := e.treasury.GetToken(asset)
	if err != nil {
		return err
	}
	if token.Type != assetType {
		return fmt.Errorf("%w: fund: asset %s is registered as %s", coreerrors.ErrInvalidArgument, types.HexAddress(asset), token.Type)
	}
	supported := &Asset{
		Address:  asset,
		Type:     assetType,
		Name:     token.Name,
		Symbol:   token.Symbol,
		Decimals: token.Decimals,
	}
	if err := e.putSupported(supported); err != nil {
		return err
	}
	e.emit(assetSupportedEvent(supported))
	return nil
}

// AddSupportedMirroredAsset makes a mirrored token available to portfolios
// and registers it with the treasury. Guard admins only.
func (e *Engine) AddSupportedMirroredAsset(caller, asset [20]byte) error {
	return e.addSupported(caller, asset, types.AssetTypeMirrored)
}

// AddSupportedERC20Asset makes an ERC-20 token available to portfolios.
func (e *Engine) AddSupportedERC20Asset(caller, asset [20]byte) error {
	return e.addSupported(caller, asset, types.AssetTypeERC20)
}

// AddSupportedSyntheticAsset makes a synthetic token available to portfolios.
func (e *Engine) AddSupportedSyntheticAsset(caller, asset [20]byte) error {
	return e.addSupported(caller, asset, types.AssetTypeSynthetic)
}

// AvailableAsset returns the supported asset record.
func (e *Engine) AvailableAsset(asset [20]byte) (*Asset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record := new(Asset)
	ok, err := e.state.KVGet(supportedKey(asset), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fund: asset %s not supported", coreerrors.ErrNotFound, types.HexAddress(asset))
	}
	return record, nil
}

// SupportedAssets lists supported assets in the order they were added.
func (e *Engine) SupportedAssets() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var list [][20]byte
	if _, err := e.state.KVGet(supportedListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreatePortfolio opens the caller's portfolio. The call is payable with the
// platform commission, which is forwarded to the reserve. shareCap bounds the
// number of shares ever outstanding; zero means unlimited. The native asset
// is part of every portfolio and the caller becomes a platform user.
func (e *Engine) CreatePortfolio(caller [20]byte, name, symbol string, shareCap, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	exists, err := e.state.KVGet(portfolioKey(caller), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: fund: portfolio of %s already exists", coreerrors.ErrAlreadyExists, types.HexAddress(caller))
	}
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || symbol == "" {
		return fmt.Errorf("%w: fund: name and symbol required", coreerrors.ErrInvalidArgument)
	}
	if shareCap == nil {
		shareCap = new(big.Int)
	}
	if shareCap.Sign() < 0 || !types.FitsUint256(shareCap) {
		return fmt.Errorf("%w: fund: invalid share cap", coreerrors.ErrInvalidArgument)
	}
	if err := e.chargeCommission(caller, value, cfg.PlatformCommission); err != nil {
		return err
	}
	portfolio := &Portfolio{
		Owner:      caller,
		Name:       name,
		Symbol:     symbol,
		ShareCap:   new(big.Int).Set(shareCap),
		AssetCount: 1,
		CreatedAt:  e.now(),
	}
	if err := e.state.KVPut(portfolioKey(caller), portfolio); err != nil {
		return err
	}
	if err := e.state.KVPut(assetsKey(caller), [][20]byte{types.NativeAsset}); err != nil {
		return err
	}
	if err := e.state.KVPut(holdingKey(caller, types.NativeAsset), &Holding{PerShare: new(big.Int)}); err != nil {
		return err
	}
	if err := e.state.KVAppend(portfolioListKey, caller[:]); err != nil {
		return err
	}
	if err := e.guard.AddUser(e.address, caller); err != nil {
		return err
	}
	e.emit(portfolioCreatedEvent(portfolio))
	return nil
}

func (e *Engine) chargeCommission(caller [20]byte, value, commission *big.Int) error {
	if err := common.Collect(e.state, caller, e.address, value, commission); err != nil {
		return err
	}
	if commission.Sign() == 0 {
		return nil
	}
	return e.reserve.Deposit(e.address, commission)
}

// Portfolio returns the portfolio owned by owner.
func (e *Engine) Portfolio(owner [20]byte) (*Portfolio, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	portfolio := new(Portfolio)
	ok, err := e.state.KVGet(portfolioKey(owner), portfolio)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fund: no portfolio for %s", coreerrors.ErrNotFound, types.HexAddress(owner))
	}
	if portfolio.ShareCap == nil {
		portfolio.ShareCap = new(big.Int)
	}
	return portfolio, nil
}

// Portfolios lists portfolio owners in creation order.
func (e *Engine) Portfolios() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var owners [][20]byte
	if err := e.state.KVGetList(portfolioListKey, &owners); err != nil {
		return nil, err
	}
	return owners, nil
}

func (e *Engine) assetList(owner [20]byte) ([][20]byte, error) {
	var list [][20]byte
	if _, err := e.state.KVGet(assetsKey(owner), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddAsset adds a supported asset to the caller's portfolio.
func (e *Engine) AddAsset(caller, asset [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	portfolio, err := e.Portfolio(caller)
	if err != nil {
		return err
	}
	if _, err := e.AvailableAsset(asset); err != nil {
		return err
	}
	held, err := e.state.KVGet(holdingKey(caller, asset), nil)
	if err != nil {
		return err
	}
	if held {
		return fmt.Errorf("%w: fund: asset %s already in portfolio", coreerrors.ErrAlreadyExists, types.HexAddress(asset))
	}
	list, err := e.assetList(caller)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(assetsKey(caller), append(list, asset)); err != nil {
		return err
	}
	if err := e.state.KVPut(holdingKey(caller, asset), &Holding{PerShare: new(big.Int)}); err != nil {
		return err
	}
	portfolio.AssetCount++
	if err := e.state.KVPut(portfolioKey(caller), portfolio); err != nil {
		return err
	}
	e.emit(portfolioEvent(EventTypeAssetAdded, caller, asset, "asset"))
	return nil
}

// Managers lists the accounts allowed to update the allocations of owner's
// portfolio besides the owner.
func (e *Engine) Managers(owner [20]byte) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var managers [][20]byte
	if _, err := e.state.KVGet(managersKey(owner), &managers); err != nil {
		return nil, err
	}
	return managers, nil
}

// IsManager reports whether account may manage owner's portfolio.
func (e *Engine) IsManager(owner, account [20]byte) (bool, error) {
	if owner == account {
		return true, nil
	}
	managers, err := e.Managers(owner)
	if err != nil {
		return false, err
	}
	for _, manager := range managers {
		if manager == account {
			return true, nil
		}
	}
	return false, nil
}

// AddManager delegates allocation updates of the caller's portfolio.
func (e *Engine) AddManager(caller, manager [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.Portfolio(caller); err != nil {
		return err
	}
	if types.IsZeroAddress(manager) {
		return fmt.Errorf("%w: fund: manager required", coreerrors.ErrInvalidArgument)
	}
	ok, err := e.IsManager(caller, manager)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: fund: %s already manages the portfolio", coreerrors.ErrAlreadyExists, types.HexAddress(manager))
	}
	managers, err := e.Managers(caller)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(managersKey(caller), append(managers, manager)); err != nil {
		return err
	}
	e.emit(portfolioEvent(EventTypeManagerAdded, caller, manager, "manager"))
	return nil
}

// RemoveManager revokes a manager of the caller's portfolio.
func (e *Engine) RemoveManager(caller, manager [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	managers, err := e.Managers(caller)
	if err != nil {
		return err
	}
	kept := make([][20]byte, 0, len(managers))
	for _, m := range managers {
		if m != manager {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(managers) {
		return fmt.Errorf("%w: fund: %s does not manage the portfolio", coreerrors.ErrNotFound, types.HexAddress(manager))
	}
	if err := e.state.KVPut(managersKey(caller), kept); err != nil {
		return err
	}
	e.emit(portfolioEvent(EventTypeManagerRemoved, caller, manager, "manager"))
	return nil
}

func (e *Engine) requireManager(caller, owner [20]byte) error {
	if _, err := e.Portfolio(owner); err != nil {
		return err
	}
	ok, err := e.IsManager(owner, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: fund: caller must own or manage the portfolio", coreerrors.ErrUnauthorized)
	}
	return nil
}

func (e *Engine) holding(owner, asset [20]byte) (*Holding, error) {
	holding := new(Holding)
	ok, err := e.state.KVGet(holdingKey(owner, asset), holding)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fund: asset %s not in portfolio", coreerrors.ErrNotFound, types.HexAddress(asset))
	}
	if holding.PerShare == nil {
		holding.PerShare = new(big.Int)
	}
	return holding, nil
}

// Allocation returns the per-share amount of asset in owner's portfolio.
func (e *Engine) Allocation(owner, asset [20]byte) (*Allocation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	holding, err := e.holding(owner, asset)
	if err != nil {
		return nil, err
	}
	return &Allocation{Asset: asset, PerShare: holding.PerShare}, nil
}

// UpdateAllocation sets the per-share amount of asset. Any value is
// accepted; keeping the allocations consistent with the portfolio's value is
// up to the caller. When shares are outstanding the treasury holdings are
// adjusted: a decrease sells the surplus into the portfolio's native
// balance and an increase buys the shortfall with it.
func (e *Engine) UpdateAllocation(caller, owner, asset [20]byte, perShare *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireManager(caller, owner); err != nil {
		return err
	}
	return e.updateAllocation(owner, Allocation{Asset: asset, PerShare: perShare})
}

// UpdateMultipleAllocations applies allocations in the given order.
func (e *Engine) UpdateMultipleAllocations(caller, owner [20]byte, allocations []Allocation) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireManager(caller, owner); err != nil {
		return err
	}
	for _, alloc := range allocations {
		if err := e.updateAllocation(owner, alloc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateAllocation(owner [20]byte, alloc Allocation) error {
	if alloc.PerShare == nil || alloc.PerShare.Sign() < 0 || !types.FitsUint256(alloc.PerShare) {
		return fmt.Errorf("%w: fund: invalid per-share amount", coreerrors.ErrInvalidArgument)
	}
	holding, err := e.holding(owner, alloc.Asset)
	if err != nil {
		return err
	}
	if err := e.rebalance(owner, alloc.Asset, holding.PerShare, alloc.PerShare); err != nil {
		return err
	}
	holding.PerShare = new(big.Int).Set(alloc.PerShare)
	if err := e.state.KVPut(holdingKey(owner, alloc.Asset), holding); err != nil {
		return err
	}
	e.emit(allocationUpdatedEvent(owner, alloc.Asset, alloc.PerShare))
	return nil
}

func (e *Engine) rebalance(owner, asset [20]byte, from, to *big.Int) error {
	if asset == types.NativeAsset || from.Cmp(to) == 0 {
		return nil
	}
	outstanding, err := e.TotalShares(owner)
	if err != nil {
		return err
	}
	if outstanding.Sign() == 0 {
		return nil
	}
	delta := new(big.Int).Sub(to, from)
	delta.Mul(delta, outstanding)
	if delta.Sign() < 0 {
		_, err := e.treasury.SellAsset(e.address, owner, asset, delta.Neg(delta), e.treasury.Address())
		return err
	}
	cost, err := e.pricer.GetBuyingCost(asset, delta)
	if err != nil {
		return err
	}
	if err := e.treasury.Withdraw(e.address, owner, types.NativeAsset, cost, e.address); err != nil {
		return err
	}
	_, err = e.treasury.BuyAsset(e.address, owner, asset, delta, cost)
	return err
}

// UpdateWeights sets target weights used by the off-chain rebalancer. Each
// weight is at most MaxWeight and the portfolio total may not exceed it.
func (e *Engine) UpdateWeights(caller, owner [20]byte, weights []Weight) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireManager(caller, owner); err != nil {
		return err
	}
	assets, err := e.assetList(owner)
	if err != nil {
		return err
	}
	next := make(map[[20]byte]uint64, len(assets))
	holdings := make(map[[20]byte]*Holding, len(assets))
	for _, asset := range assets {
		holding, err := e.holding(owner, asset)
		if err != nil {
			return err
		}
		holdings[asset] = holding
		next[asset] = holding.Weight
	}
	for _, w := range weights {
		if _, ok := holdings[w.Asset]; !ok {
			return fmt.Errorf("%w: fund: asset %s not in portfolio", coreerrors.ErrNotFound, types.HexAddress(w.Asset))
		}
		if w.Bps > MaxWeight {
			return fmt.Errorf("%w: fund: weight %d exceeds %d", coreerrors.ErrInvalidArgument, w.Bps, MaxWeight)
		}
		next[w.Asset] = w.Bps
	}
	var total uint64
	for _, bps := range next {
		total += bps
	}
	if total > MaxWeight {
		return fmt.Errorf("%w: fund: weights sum to %d", coreerrors.ErrInvalidArgument, total)
	}
	for _, w := range weights {
		holding := holdings[w.Asset]
		holding.Weight = w.Bps
		if err := e.state.KVPut(holdingKey(owner, w.Asset), holding); err != nil {
			return err
		}
		e.emit(weightUpdatedEvent(owner, w.Asset, w.Bps))
	}
	return nil
}

// Assets returns the assets of owner's portfolio in the order they were
// added, native first.
func (e *Engine) Assets(owner [20]byte) ([]PortfolioAsset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.Portfolio(owner); err != nil {
		return nil, err
	}
	list, err := e.assetList(owner)
	if err != nil {
		return nil, err
	}
	out := make([]PortfolioAsset, 0, len(list))
	for _, addr := range list {
		asset, err := e.AvailableAsset(addr)
		if err != nil {
			return nil, err
		}
		holding, err := e.holding(owner, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, PortfolioAsset{Asset: *asset, PerShare: holding.PerShare, Weight: holding.Weight})
	}
	return out, nil
}

// CalculateBuyingCost returns what buying amount shares of owner's portfolio
// costs: the oracle buying cost of every allocated asset's backing plus the
// platform commission.
func (e *Engine) CalculateBuyingCost(owner [20]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	assets, err := e.Assets(owner)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: fund: share amount must be non-negative", coreerrors.ErrInvalidArgument)
	}
	total := new(big.Int)
	for _, asset := range assets {
		if asset.PerShare.Sign() == 0 {
			continue
		}
		cost, err := e.pricer.GetBuyingCost(asset.Address, new(big.Int).Mul(asset.PerShare, amount))
		if err != nil {
			return nil, err
		}
		total.Add(total, cost)
	}
	return total.Add(total, cfg.PlatformCommission), nil
}

// BuyShares issues amount shares of owner's portfolio to caller. The payment
// must cover CalculateBuyingCost; each allocated asset's backing is bought
// into the treasury, the platform commission goes to the reserve and any
// excess stays with the caller.
func (e *Engine) BuyShares(caller, owner [20]byte, amount, value *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: fund: share amount must be positive", coreerrors.ErrInvalidArgument)
	}
	portfolio, err := e.Portfolio(owner)
	if err != nil {
		return nil, err
	}
	outstanding, err := e.TotalShares(owner)
	if err != nil {
		return nil, err
	}
	if portfolio.ShareCap.Sign() > 0 && new(big.Int).Add(outstanding, amount).Cmp(portfolio.ShareCap) > 0 {
		return nil, fmt.Errorf("%w: fund: share cap %s reached", coreerrors.ErrInvalidState, portfolio.ShareCap)
	}
	cost, err := e.CalculateBuyingCost(owner, amount)
	if err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if err := common.Collect(e.state, caller, e.address, value, cost); err != nil {
		return nil, err
	}
	assets, err := e.Assets(owner)
	if err != nil {
		return nil, err
	}
	for _, asset := range assets {
		if asset.PerShare.Sign() == 0 {
			continue
		}
		backing := new(big.Int).Mul(asset.PerShare, amount)
		if asset.Address == types.NativeAsset {
			if err := e.treasury.Deposit(e.address, owner, backing); err != nil {
				return nil, err
			}
			continue
		}
		price, err := e.pricer.GetBuyingCost(asset.Address, backing)
		if err != nil {
			return nil, err
		}
		if _, err := e.treasury.BuyAsset(e.address, owner, asset.Address, backing, price); err != nil {
			return nil, err
		}
	}
	if cfg.PlatformCommission.Sign() > 0 {
		if err := e.reserve.Deposit(e.address, cfg.PlatformCommission); err != nil {
			return nil, err
		}
	}
	if err := e.shares().Mint(owner, caller, amount); err != nil {
		return nil, err
	}
	if err := e.addShareholder(owner, caller); err != nil {
		return nil, err
	}
	e.emit(shareEvent(EventTypeShareBought, owner, caller, amount, cost))
	return cost, nil
}

// SellShares redeems amount of caller's shares in owner's portfolio. The call
// is payable with the platform commission. Each allocated asset's backing is
// sold or withdrawn to caller at payout rates. It returns the native
// currency paid out immediately.
func (e *Engine) SellShares(caller, owner [20]byte, amount, value *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: fund: share amount must be positive", coreerrors.ErrInvalidArgument)
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	balance, err := e.BalanceOf(owner, caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: fund: %s holds %s shares, needs %s", coreerrors.ErrInsufficientShares, types.HexAddress(caller), balance, amount)
	}
	if err := e.chargeCommission(caller, value, cfg.PlatformCommission); err != nil {
		return nil, err
	}
	assets, err := e.Assets(owner)
	if err != nil {
		return nil, err
	}
	proceeds := new(big.Int)
	for _, asset := range assets {
		if asset.PerShare.Sign() == 0 {
			continue
		}
		backing := new(big.Int).Mul(asset.PerShare, amount)
		if asset.Address == types.NativeAsset {
			if err := e.treasury.Withdraw(e.address, owner, types.NativeAsset, backing, caller); err != nil {
				return nil, err
			}
			proceeds.Add(proceeds, backing)
			continue
		}
		paid, err := e.treasury.SellAsset(e.address, owner, asset.Address, backing, caller)
		if err != nil {
			return nil, err
		}
		proceeds.Add(proceeds, paid)
	}
	if err := e.shares().Burn(owner, caller, amount); err != nil {
		return nil, err
	}
	e.emit(shareEvent(EventTypeShareSold, owner, caller, amount, proceeds))
	return proceeds, nil
}

func (e *Engine) addShareholder(owner, holder [20]byte) error {
	return e.state.KVAppend(shareholdersKey(owner), holder[:])
}

// Shareholders lists every account that ever bought shares of owner's
// portfolio, in first-purchase order.
func (e *Engine) Shareholders(owner [20]byte) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var holders [][20]byte
	if err := e.state.KVGetList(shareholdersKey(owner), &holders); err != nil {
		return nil, err
	}
	return holders, nil
}

// BalanceOf returns the number of shares of owner's portfolio held by
// account.
func (e *Engine) BalanceOf(owner, account [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.shares().BalanceOf(owner, account)
}

// TotalShares returns the outstanding shares of owner's portfolio.
func (e *Engine) TotalShares(owner [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.shares().TotalSupply(owner)
}

// PortfolioValue values the treasury holdings of owner's portfolio at oracle
// prices, in wei.
func (e *Engine) PortfolioValue(owner [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list, err := e.assetList(owner)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, asset := range list {
		held, err := e.treasury.GetBalanceOf(owner, asset)
		if err != nil {
			return nil, err
		}
		if held.Sign() == 0 {
			continue
		}
		price, _, err := e.pricer.GetPrice(asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, new(big.Int).Mul(held, price))
	}
	return total, nil
}

// SharePrice returns the portfolio value per outstanding share, rounded
// down. It is zero while no shares are outstanding.
func (e *Engine) SharePrice(owner [20]byte) (*big.Int, error) {
	value, err := e.PortfolioValue(owner)
	if err != nil {
		return nil, err
	}
	outstanding, err := e.TotalShares(owner)
	if err != nil {
		return nil, err
	}
	if outstanding.Sign() == 0 {
		return new(big.Int), nil
	}
	return value.Quo(value, outstanding), nil
}
