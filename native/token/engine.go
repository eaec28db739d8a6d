package token

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

var errNilState = errors.New("token engine: state not configured")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

// Details describes a fungible token created through the engine.
type Details struct {
	Name     string
	Symbol   string
	Decimals uint8
	Owner    [20]byte
}

// Metadata returns the descriptive subset of the details.
func (d *Details) Metadata() types.TokenMetadata {
	return types.TokenMetadata{Name: d.Name, Symbol: d.Symbol, Decimals: d.Decimals}
}

// Engine is an ERC-20 style token factory. Every token lives at a derived
// address and shares one balance ledger.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine constructs a token engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
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

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(tokenEvent{evt: event})
}

func (e *Engine) ledger() (*common.Ledger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return common.NewLedger(e.state, ledgerNamespace), nil
}

// Create registers a new token owned by caller and returns its address.
func (e *Engine) Create(caller [20]byte, symbol, name string, decimals uint8) ([20]byte, error) {
	var addr [20]byte
	if e == nil || e.state == nil {
		return addr, errNilState
	}
	symbol = strings.TrimSpace(symbol)
	name = strings.TrimSpace(name)
	if symbol == "" || name == "" {
		return addr, fmt.Errorf("%w: token: name and symbol required", coreerrors.ErrInvalidArgument)
	}
	if decimals > 36 {
		return addr, fmt.Errorf("%w: token: decimals %d out of range", coreerrors.ErrInvalidArgument, decimals)
	}
	var count uint64
	if _, err := e.state.KVGet(tokenCountKey, &count); err != nil {
		return addr, err
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], count)
	addr = types.DeriveAddress("portfolium/token", caller[:], nonce[:])
	details := &Details{Name: name, Symbol: symbol, Decimals: decimals, Owner: caller}
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
	e.emit(createdEvent(addr, details))
	return addr, nil
}

// Details returns the token description.
func (e *Engine) Details(token [20]byte) (*Details, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	details := new(Details)
	ok, err := e.state.KVGet(detailsKey(token), details)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: token: %s", coreerrors.ErrNotFound, types.HexAddress(token))
	}
	return details, nil
}

// Metadata implements the treasury's asset directory.
func (e *Engine) Metadata(token [20]byte) (types.TokenMetadata, error) {
	details, err := e.Details(token)
	if err != nil {
		return types.TokenMetadata{}, err
	}
	return details.Metadata(), nil
}

// Exists reports whether token was created by the engine.
func (e *Engine) Exists(token [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.KVGet(detailsKey(token), nil)
}

// Tokens lists every token in creation order.
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

// Mint issues amount of token to recipient. Only the token owner may mint.
func (e *Engine) Mint(caller, token, to [20]byte, amount *big.Int) error {
	details, err := e.Details(token)
	if err != nil {
		return err
	}
	if caller != details.Owner {
		return fmt.Errorf("%w: token: caller must be the token owner", coreerrors.ErrUnauthorized)
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if err := ledger.Mint(token, to, amount); err != nil {
		return err
	}
	e.emit(mintedEvent(token, to, amount))
	return nil
}

// Transfer moves amount of token from caller to recipient.
func (e *Engine) Transfer(caller, token, to [20]byte, amount *big.Int) error {
	if _, err := e.Details(token); err != nil {
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
