// core/genesis/spec.go
package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"portfolium/core/types"
	"portfolium/crypto"
)

const maxBps = 10_000

// GenesisSpec describes the initial ledger: governance accounts, the platform
// commission, native balances and the assets available to portfolios.
type GenesisSpec struct {
	GenesisTime        string            `json:"genesisTime"`
	Admin              string            `json:"admin"`
	Signers            []string          `json:"signers"`
	Quorum             uint64            `json:"quorum"`
	Application        string            `json:"application"`
	PlatformCommission string            `json:"platformCommission"`
	Native             *NativeSpec       `json:"native,omitempty"`
	Alloc              map[string]string `json:"alloc"` // addr -> native amount
	Router             RouterSpec        `json:"router"`
	Tokens             []TokenSpec       `json:"tokens,omitempty"`
	Mirrored           []MirroredSpec    `json:"mirrored,omitempty"`
	Synthetic          []SyntheticSpec   `json:"synthetic,omitempty"`

	genesisTimestamp time.Time
	admin            [20]byte
	signers          [][20]byte
	application      [20]byte
	commission       *big.Int
	allocations      []Allocation
}

// NativeSpec overrides the metadata registered for the native currency.
type NativeSpec struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// RouterSpec configures the in-ledger swap router used for ERC-20 assets.
type RouterSpec struct {
	FeeBps    uint64 `json:"feeBps"`
	Inventory string `json:"inventory"` // native inventory

	inventory *big.Int
}

// AssetSpec carries the fields shared by every asset class.
type AssetSpec struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	Price     string `json:"price"` // wei per smallest unit
	Supported bool   `json:"supported"`

	price *big.Int
}

// TokenSpec declares an ERC-20 asset created at genesis.
type TokenSpec struct {
	AssetSpec
	Alloc     map[string]string `json:"alloc,omitempty"`
	Inventory string            `json:"inventory"` // router inventory

	allocations []Allocation
	inventory   *big.Int
}

// MirroredSpec declares a mirrored asset deployed at genesis.
type MirroredSpec struct {
	AssetSpec
	Commission string `json:"commission"`

	commission *big.Int
}

// SyntheticSpec declares a synthetic asset deployed at genesis.
type SyntheticSpec struct {
	AssetSpec
	CompanyName string `json:"companyName"`
	CompanyID   string `json:"companyId"`
	DepotID     string `json:"depotId"`
	Commission  string `json:"commission"`

	commission *big.Int
}

// Allocation is a resolved genesis balance.
type Allocation struct {
	Account [20]byte
	Amount  *big.Int
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) AdminAccount() [20]byte { return s.admin }

func (s *GenesisSpec) SignerAccounts() [][20]byte {
	return append([][20]byte(nil), s.signers...)
}

func (s *GenesisSpec) ApplicationAccount() [20]byte { return s.application }

// PlatformCommissionAmount returns the fee charged on portfolio creation and
// on every share purchase and sale.
func (s *GenesisSpec) PlatformCommissionAmount() *big.Int {
	return copyAmount(s.commission)
}

// Allocations returns the native balances ordered by account.
func (s *GenesisSpec) Allocations() []Allocation {
	return copyAllocations(s.allocations)
}

// NativeMetadata returns the metadata registered for the native currency.
func (s *GenesisSpec) NativeMetadata() types.TokenMetadata {
	if s.Native == nil {
		return types.NativeMetadata
	}
	return types.TokenMetadata{
		Name:     strings.TrimSpace(s.Native.Name),
		Symbol:   strings.TrimSpace(s.Native.Symbol),
		Decimals: s.Native.Decimals,
	}
}

func (r *RouterSpec) InventoryAmount() *big.Int { return copyAmount(r.inventory) }

func (a *AssetSpec) PriceAmount() *big.Int { return copyAmount(a.price) }

// Metadata returns the descriptive fields of the asset.
func (a *AssetSpec) Metadata() types.TokenMetadata {
	return types.TokenMetadata{
		Name:     strings.TrimSpace(a.Name),
		Symbol:   strings.TrimSpace(a.Symbol),
		Decimals: a.Decimals,
	}
}

func (t *TokenSpec) Allocations() []Allocation { return copyAllocations(t.allocations) }

func (t *TokenSpec) InventoryAmount() *big.Int { return copyAmount(t.inventory) }

func (m *MirroredSpec) CommissionAmount() *big.Int { return copyAmount(m.commission) }

func (s *SyntheticSpec) CommissionAmount() *big.Int { return copyAmount(s.commission) }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if s.admin, err = parseAccount(s.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if len(s.Signers) == 0 {
		return fmt.Errorf("signers: at least one signer must be provided")
	}
	s.signers = make([][20]byte, 0, len(s.Signers))
	seenSigners := make(map[[20]byte]struct{}, len(s.Signers))
	for i, raw := range s.Signers {
		signer, err := parseAccount(raw)
		if err != nil {
			return fmt.Errorf("signers[%d]: %w", i, err)
		}
		if _, dup := seenSigners[signer]; dup {
			return fmt.Errorf("signers[%d]: duplicate signer %q", i, raw)
		}
		seenSigners[signer] = struct{}{}
		s.signers = append(s.signers, signer)
	}
	if s.Quorum == 0 || s.Quorum > uint64(len(s.signers)) {
		return fmt.Errorf("quorum must be between 1 and %d", len(s.signers))
	}
	if s.application, err = parseAccount(s.Application); err != nil {
		return fmt.Errorf("application: %w", err)
	}
	if s.commission, err = parseAmountString(s.PlatformCommission); err != nil {
		return fmt.Errorf("platformCommission: %w", err)
	}
	if s.Native != nil {
		meta := s.NativeMetadata()
		if meta.Name == "" || meta.Symbol == "" {
			return fmt.Errorf("native: name and symbol must be provided")
		}
	}
	if s.allocations, err = parseAllocations(s.Alloc); err != nil {
		return fmt.Errorf("alloc: %w", err)
	}

	if s.Router.FeeBps > maxBps {
		return fmt.Errorf("router: feeBps must be %d or fewer", maxBps)
	}
	if s.Router.inventory, err = parseAmountString(s.Router.Inventory); err != nil {
		return fmt.Errorf("router.inventory: %w", err)
	}

	symbols := map[string]struct{}{
		strings.ToUpper(s.NativeMetadata().Symbol): {},
	}
	claim := func(asset *AssetSpec) error {
		if err := asset.validate(); err != nil {
			return err
		}
		key := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if _, exists := symbols[key]; exists {
			return fmt.Errorf("duplicate symbol %q", asset.Symbol)
		}
		symbols[key] = struct{}{}
		return nil
	}
	for i := range s.Tokens {
		token := &s.Tokens[i]
		if err := claim(&token.AssetSpec); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if token.allocations, err = parseAllocations(token.Alloc); err != nil {
			return fmt.Errorf("tokens[%d].alloc: %w", i, err)
		}
		if token.inventory, err = parseAmountString(token.Inventory); err != nil {
			return fmt.Errorf("tokens[%d].inventory: %w", i, err)
		}
	}
	for i := range s.Mirrored {
		asset := &s.Mirrored[i]
		if err := claim(&asset.AssetSpec); err != nil {
			return fmt.Errorf("mirrored[%d]: %w", i, err)
		}
		if asset.commission, err = parseAmountString(asset.Commission); err != nil {
			return fmt.Errorf("mirrored[%d].commission: %w", i, err)
		}
	}
	for i := range s.Synthetic {
		asset := &s.Synthetic[i]
		if err := claim(&asset.AssetSpec); err != nil {
			return fmt.Errorf("synthetic[%d]: %w", i, err)
		}
		if strings.TrimSpace(asset.CompanyName) == "" {
			return fmt.Errorf("synthetic[%d]: companyName must be provided", i)
		}
		if asset.commission, err = parseAmountString(asset.Commission); err != nil {
			return fmt.Errorf("synthetic[%d].commission: %w", i, err)
		}
	}
	return nil
}

func (a *AssetSpec) validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if a.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	price, err := parseAmountString(a.Price)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	a.price = price
	return nil
}

func parseAccount(raw string) ([20]byte, error) {
	account, err := crypto.ParseAccount(raw)
	if err != nil {
		return account, err
	}
	if types.IsZeroAddress(account) {
		return account, fmt.Errorf("zero address not allowed")
	}
	return account, nil
}

func parseAllocations(raw map[string]string) ([]Allocation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	seen := make(map[[20]byte]struct{}, len(keys))
	out := make([]Allocation, 0, len(keys))
	for _, key := range keys {
		account, err := parseAccount(key)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		if _, dup := seen[account]; dup {
			return nil, fmt.Errorf("%q: duplicate account", key)
		}
		seen[account] = struct{}{}
		if strings.TrimSpace(raw[key]) == "" {
			return nil, fmt.Errorf("%q: amount must be provided", key)
		}
		amount, err := parseAmountString(raw[key])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		out = append(out, Allocation{Account: account, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Account[:]) < string(out[j].Account[:])
	})
	return out, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if !types.FitsUint256(amount) {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	return amount, nil
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func copyAllocations(in []Allocation) []Allocation {
	out := make([]Allocation, len(in))
	for i, alloc := range in {
		out[i] = Allocation{Account: alloc.Account, Amount: copyAmount(alloc.Amount)}
	}
	return out
}
