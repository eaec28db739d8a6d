package reserve

import (
	"errors"
	"fmt"
	"math/big"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/common"
)

var (
	errNilState   = errors.New("reserve engine: state not configured")
	errNilAddress = errors.New("reserve engine: address not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

type reserveEvent struct {
	evt *types.Event
}

func (e reserveEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e reserveEvent) Event() *types.Event { return e.evt }

// Engine holds the pooled native-currency settlement balance. Anyone may
// deposit; only accessing accounts may withdraw.
type Engine struct {
	state   engineState
	emitter events.Emitter
	address [20]byte
}

// NewEngine constructs a reserve engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAddress configures the account that custodies the pooled balance.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the reserve account.
func (e *Engine) Address() [20]byte { return e.address }

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
	e.emitter.Emit(reserveEvent{evt: event})
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

// Init records the owner, who becomes the first accessing account.
func (e *Engine) Init(owner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	var existing [20]byte
	ok, err := e.state.KVGet(ownerKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: reserve: already initialised", coreerrors.ErrAlreadyExists)
	}
	if types.IsZeroAddress(owner) {
		return fmt.Errorf("%w: reserve: owner required", coreerrors.ErrInvalidArgument)
	}
	if err := e.state.KVPut(ownerKey, owner); err != nil {
		return err
	}
	return e.addAccount(owner, owner)
}

// Owner returns the reserve owner.
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
		return owner, fmt.Errorf("%w: reserve: not initialised", coreerrors.ErrInvalidState)
	}
	return owner, nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	owner, err := e.Owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: reserve: caller must be the owner", coreerrors.ErrUnauthorized)
	}
	return nil
}

// AddAccount allows account to withdraw from the pool.
func (e *Engine) AddAccount(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return fmt.Errorf("%w: reserve: account required", coreerrors.ErrInvalidArgument)
	}
	active, err := e.IsAccessingAccount(account)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: reserve: account %s already has access", coreerrors.ErrAlreadyExists, types.HexAddress(account))
	}
	return e.addAccount(account, caller)
}

func (e *Engine) addAccount(account, sender [20]byte) error {
	if err := e.state.KVPut(accessKey(account), true); err != nil {
		return err
	}
	accounts, err := e.Accounts()
	if err != nil {
		return err
	}
	listed := false
	for _, existing := range accounts {
		if existing == account {
			listed = true
			break
		}
	}
	if !listed {
		accounts = append(accounts, account)
		if err := e.state.KVPut(accountsKey, accounts); err != nil {
			return err
		}
	}
	e.emit(accountEvent(EventTypeAccountAdded, account, sender))
	return nil
}

// RemoveAccount revokes withdrawal access. The ordered account list keeps the
// entry; only the membership flag is cleared.
func (e *Engine) RemoveAccount(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	active, err := e.IsAccessingAccount(account)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: reserve: account %s has no access", coreerrors.ErrNotFound, types.HexAddress(account))
	}
	if err := e.state.KVPut(accessKey(account), false); err != nil {
		return err
	}
	e.emit(accountEvent(EventTypeAccountRemoved, account, caller))
	return nil
}

// IsAccessingAccount reports whether account may withdraw.
func (e *Engine) IsAccessingAccount(account [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	var active bool
	if _, err := e.state.KVGet(accessKey(account), &active); err != nil {
		return false, err
	}
	return active, nil
}

// Accounts returns every account ever granted access, in grant order.
func (e *Engine) Accounts() ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var accounts [][20]byte
	if _, err := e.state.KVGet(accountsKey, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// AccessingAccountCount returns the length of the ordered account list.
func (e *Engine) AccessingAccountCount() (uint64, error) {
	accounts, err := e.Accounts()
	if err != nil {
		return 0, err
	}
	return uint64(len(accounts)), nil
}

// Deposit moves value from caller into the pool.
func (e *Engine) Deposit(caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("%w: reserve: deposit must be positive", coreerrors.ErrInvalidArgument)
	}
	if err := common.Pay(e.state, caller, e.address, value); err != nil {
		return err
	}
	e.emit(movementEvent(EventTypeDeposited, caller, value))
	return nil
}

// Withdraw pays amount from the pool to recipient. Only accessing accounts may
// withdraw.
func (e *Engine) Withdraw(caller, recipient [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	active, err := e.IsAccessingAccount(caller)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: reserve: caller is not an accessing account", coreerrors.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: reserve: withdrawal must be non-negative", coreerrors.ErrInvalidArgument)
	}
	if amount.Sign() == 0 {
		return nil
	}
	pool, err := e.Balance()
	if err != nil {
		return err
	}
	if pool.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserve: pool holds %s, requested %s", coreerrors.ErrInsufficientFunds, pool, amount)
	}
	if err := e.state.Transfer(e.address, recipient, amount); err != nil {
		return err
	}
	e.emit(movementEvent(EventTypeWithdrawn, recipient, amount))
	return nil
}

// Balance returns the pooled balance.
func (e *Engine) Balance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.Balance(e.address)
}
