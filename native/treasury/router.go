package treasury

import (
	"fmt"
	"math/big"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/common"
)

const bpsDenominator = 10_000

// PriceReader exposes oracle prices in wei per smallest token unit.
type PriceReader interface {
	GetPrice(asset [20]byte) (*big.Int, uint64, error)
}

// TokenTransferrer is the token surface the router settles through.
type TokenTransferrer interface {
	Transfer(caller, token, to [20]byte, amount *big.Int) error
	BalanceOf(token, account [20]byte) (*big.Int, error)
}

// InventoryRouter swaps between the native currency and ERC-20 tokens out of
// its own inventory. Quotes use oracle prices less a fee in basis points.
type InventoryRouter struct {
	address [20]byte
	feeBps  uint64
	bank    common.Bank
	tokens  TokenTransferrer
	prices  PriceReader
	emitter events.Emitter
}

// NewInventoryRouter constructs a router holding its inventory at address.
func NewInventoryRouter(address [20]byte, feeBps uint64) *InventoryRouter {
	if feeBps > bpsDenominator {
		feeBps = bpsDenominator
	}
	return &InventoryRouter{address: address, feeBps: feeBps, emitter: events.NoopEmitter{}}
}

// SetBank wires the native currency bank.
func (r *InventoryRouter) SetBank(bank common.Bank) { r.bank = bank }

// SetTokens wires the ERC-20 token engine.
func (r *InventoryRouter) SetTokens(tokens TokenTransferrer) { r.tokens = tokens }

// SetPrices wires the oracle.
func (r *InventoryRouter) SetPrices(prices PriceReader) { r.prices = prices }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (r *InventoryRouter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Address returns the inventory account.
func (r *InventoryRouter) Address() [20]byte { return r.address }

// FeeBps returns the swap fee in basis points.
func (r *InventoryRouter) FeeBps() uint64 { return r.feeBps }

func (r *InventoryRouter) price(asset [20]byte) (*big.Int, error) {
	if r.prices == nil {
		return nil, fmt.Errorf("%w: router: price source not configured", coreerrors.ErrInvalidState)
	}
	price, _, err := r.prices.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("%w: router: no price for %s", coreerrors.ErrInvalidState, types.HexAddress(asset))
	}
	return price, nil
}

// Quote returns the output amount for swapping amountIn of from into to.
func (r *InventoryRouter) Quote(from, to [20]byte, amountIn *big.Int) (*big.Int, error) {
	if from == to {
		return nil, fmt.Errorf("%w: router: identical assets", coreerrors.ErrInvalidArgument)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: router: amount must be positive", coreerrors.ErrInvalidArgument)
	}
	priceIn, err := r.price(from)
	if err != nil {
		return nil, err
	}
	priceOut, err := r.price(to)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amountIn, priceIn)
	value.Mul(value, new(big.Int).SetUint64(bpsDenominator-r.feeBps))
	value.Quo(value, big.NewInt(bpsDenominator))
	return value.Quo(value, priceOut), nil
}

func (r *InventoryRouter) move(asset, from, to [20]byte, amount *big.Int) error {
	if asset == types.NativeAsset {
		if r.bank == nil {
			return fmt.Errorf("%w: router: bank not configured", coreerrors.ErrInvalidState)
		}
		return common.Pay(r.bank, from, to, amount)
	}
	if r.tokens == nil {
		return fmt.Errorf("%w: router: token engine not configured", coreerrors.ErrInvalidState)
	}
	return r.tokens.Transfer(from, asset, to, amount)
}

// Swap implements SwapRouter.
func (r *InventoryRouter) Swap(caller, from, to [20]byte, amountIn, minOut *big.Int, recipient [20]byte) (*big.Int, error) {
	out, err := r.Quote(from, to, amountIn)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: router: output %s below minimum %s", coreerrors.ErrInsufficientFunds, out, minOut)
	}
	if err := r.move(from, caller, r.address, amountIn); err != nil {
		return nil, err
	}
	if err := r.move(to, r.address, recipient, out); err != nil {
		return nil, err
	}
	r.emitter.Emit(treasuryEvent{evt: swapEvent(EventTypeRouterSwap, caller, from, to, amountIn, out)})
	return out, nil
}
