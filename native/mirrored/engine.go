package mirrored

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/common"
)

var (
	errNilState   = errors.New("mirrored engine: state not configured")
	errNilPricer  = errors.New("mirrored engine: pricer not configured")
	errNilReserve = errors.New("mirrored engine: reserve not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type mirroredEvent struct {
	evt *types.Event
}

func (e mirroredEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e mirroredEvent) Event() *types.Event { return e.evt }

// Engine deploys and operates mirrored tokens. A mirrored token tracks an
// external reference price: minting costs price*amount plus commission and
// burning pays price*amount minus commission out of the reserve.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pricer  Pricer
	reserve Reserve
}

// NewEngine constructs a mirrored engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPricer wires the oracle.
func (e *Engine) SetPricer(pricer Pricer) { e.pricer = pricer }

// SetReserve wires the settlement reserve.
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

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(mirroredEvent{evt: event})
}

func (e *Engine) ledger() (*common.Ledger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return common.NewLedger(e.state, ledgerNamespace), nil
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

// Deploy creates a mirrored token owned by caller and returns its address.
func (e *Engine) Deploy(caller [20]byte, meta types.TokenMetadata, commission *big.Int) ([20]byte, error) {
	var addr [20]byte
	if e == nil || e.state == nil {
		return addr, errNilState
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.Symbol = strings.TrimSpace(meta.Symbol)
	if meta.Name == "" || meta.Symbol == "" {
		return addr, fmt.Errorf("%w: mirrored: name and symbol required", coreerrors.ErrInvalidArgument)
	}
	if commission == nil {
		commission = new(big.Int)
	}
	if !types.FitsUint256(commission) {
		return addr, fmt.Errorf("%w: mirrored: invalid commission", coreerrors.ErrInvalidArgument)
	}
	var count uint64
	if _, err := e.state.KVGet(tokenCountKey, &count); err != nil {
		return addr, err
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], count)
	addr = types.DeriveAddress("portfolium/mirrored", caller[:], nonce[:])
	details := &Details{
		Name:       meta.Name,
		Symbol:     meta.Symbol,
		Decimals:   meta.Decimals,
		Owner:      caller,
		Commission: new(big.Int).Set(commission),
	}
	if err := e.state.KVPut(detailsKey(addr), details); err != nil {
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
	e.emit(deployedEvent(addr, details))
	return addr, nil
}

// Tokens lists every mirrored token in deployment order.
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
		return nil, fmt.Errorf("%w: mirrored: token %s", coreerrors.ErrNotFound, types.HexAddress(token))
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

// IsToken reports whether token is a mirrored token.
func (e *Engine) IsToken(token [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.KVGet(detailsKey(token), nil)
}

// Commission returns the per-operation commission of token.
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
		return fmt.Errorf("%w: mirrored: caller must be the token owner", coreerrors.ErrUnauthorized)
	}
	if !types.FitsUint256(commission) {
		return fmt.Errorf("%w: mirrored: invalid commission", coreerrors.ErrInvalidArgument)
	}
	details.Commission = new(big.Int).Set(commission)
	if err := e.state.KVPut(detailsKey(token), details); err != nil {
		return err
	}
	e.emit(commissionUpdatedEvent(token, commission))
	return nil
}

// Mint issues amount tokens to caller against value. The buying cost is paid
// into the reserve on behalf of the token; the rest of value stays with the
// caller. It returns the cost charged.
func (e *Engine) Mint(caller, token [20]byte, amount, value *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.AssetDetails(token); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: mirrored: mint amount must be positive", coreerrors.ErrInvalidArgument)
	}
	cost, err := e.pricer.GetBuyingCost(token, amount)
	if err != nil {
		return nil, err
	}
	if err := common.Collect(e.state, caller, token, value, cost); err != nil {
		return nil, err
	}
	if err := e.reserve.Deposit(token, cost); err != nil {
		return nil, err
	}
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	if err := ledger.Mint(token, caller, amount); err != nil {
		return nil, err
	}
	e.emit(supplyEvent(EventTypeMinted, token, caller, amount, cost))
	return cost, nil
}

// Burn destroys amount of caller's tokens and pays the payout amount from the
// reserve. The token must be an accessing account of the reserve.
func (e *Engine) Burn(caller, token [20]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.AssetDetails(token); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: mirrored: burn amount must be positive", coreerrors.ErrInvalidArgument)
	}
	payout, err := e.pricer.GetPayoutAmount(token, amount)
	if err != nil {
		return nil, err
	}
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	if err := ledger.Burn(token, caller, amount); err != nil {
		return nil, err
	}
	if err := e.reserve.Withdraw(token, caller, payout); err != nil {
		return nil, err
	}
	e.emit(supplyEvent(EventTypeBurned, token, caller, amount, payout))
	return payout, nil
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

// BalanceOf returns the token balance of account.
func (e *Engine) BalanceOf(token, account [20]byte) (*big.Int, error) {
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(token, account)
}

// TotalSupply returns the outstanding supply of token.
func (e *Engine) TotalSupply(token [20]byte) (*big.Int, error) {
	ledger, err := e.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply(token)
}
