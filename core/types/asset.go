package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AssetType enumerates the asset classes a fund can hold. The numeric values
// match the on-chain enum so worker decoding stays a plain cast.
type AssetType uint8

const (
	AssetTypeNative AssetType = iota
	AssetTypeERC20
	AssetTypeERC721
	AssetTypeSynthetic
	AssetTypeMirrored
)

// String renders the asset type label.
func (t AssetType) String() string {
	switch t {
	case AssetTypeNative:
		return "native"
	case AssetTypeERC20:
		return "erc20"
	case AssetTypeERC721:
		return "erc721"
	case AssetTypeSynthetic:
		return "synthetic"
	case AssetTypeMirrored:
		return "mirrored"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether the asset type is one of the known classes.
func (t AssetType) Valid() bool { return t <= AssetTypeMirrored }

// ParseAssetType converts a label produced by String back into an AssetType.
func ParseAssetType(raw string) (AssetType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "native":
		return AssetTypeNative, nil
	case "erc20":
		return AssetTypeERC20, nil
	case "erc721":
		return AssetTypeERC721, nil
	case "synthetic":
		return AssetTypeSynthetic, nil
	case "mirrored":
		return AssetTypeMirrored, nil
	default:
		return 0, fmt.Errorf("unknown asset type %q", raw)
	}
}

// PriceOrigin selects where the oracle sources an asset price from.
type PriceOrigin uint8

const (
	PriceOriginStored PriceOrigin = iota
	PriceOriginChainlink
)

// String renders the price origin label.
func (o PriceOrigin) String() string {
	switch o {
	case PriceOriginStored:
		return "stored"
	case PriceOriginChainlink:
		return "chainlink"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// NativeAsset is the sentinel address used for the chain's native currency.
var NativeAsset = [20]byte{19: 0x01}

// Role identifiers are keccak256 hashes of the role names.
var (
	AdminRole      = RoleID("ADMIN_ROLE")
	SignerRole     = RoleID("SIGNER_ROLE")
	PortfoliumRole = RoleID("PORTFOLIUM_ROLE")
	UserRole       = RoleID("USER_ROLE")
)

// RoleID derives the bytes32 identifier for a role name.
func RoleID(name string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(name)))
	return out
}

// RoleName returns the human readable label for the well-known roles and the
// hex encoding for anything else.
func RoleName(role [32]byte) string {
	switch role {
	case AdminRole:
		return "ADMIN_ROLE"
	case SignerRole:
		return "SIGNER_ROLE"
	case PortfoliumRole:
		return "PORTFOLIUM_ROLE"
	case UserRole:
		return "USER_ROLE"
	default:
		return common.Hash(role).Hex()
	}
}

// ParseRole accepts either a well-known role name or a 0x-prefixed bytes32.
func ParseRole(raw string) ([32]byte, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToUpper(trimmed) {
	case "ADMIN_ROLE", "ADMIN":
		return AdminRole, nil
	case "SIGNER_ROLE", "SIGNER":
		return SignerRole, nil
	case "PORTFOLIUM_ROLE", "PORTFOLIUM":
		return PortfoliumRole, nil
	case "USER_ROLE", "USER":
		return UserRole, nil
	}
	if !strings.HasPrefix(trimmed, "0x") || len(trimmed) != 66 {
		return [32]byte{}, fmt.Errorf("unknown role %q", raw)
	}
	return common.HexToHash(trimmed), nil
}

// DeriveAddress computes a deterministic contract address from a label. The
// ledger uses it to place engines and deployed tokens at stable locations.
func DeriveAddress(label string, parts ...[]byte) [20]byte {
	data := [][]byte{[]byte(label)}
	data = append(data, parts...)
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256(data...)[12:])
	return out
}

// HexAddress renders an address in EIP-55 checksum form.
func HexAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

// ParseHexAddress decodes a 0x-prefixed hex address.
func ParseHexAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr [20]byte) bool { return addr == [20]byte{} }

// FitsUint256 reports whether v is a non-negative integer representable in a
// single EVM word.
func FitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

// FormatAmount renders an amount for event attributes.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// TokenMetadata is the descriptive part of a token shared by every token
// engine and mirrored into the treasury registry.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// NativeMetadata describes the native currency in asset registries.
var NativeMetadata = TokenMetadata{Name: "Polygon", Symbol: "MATIC", Decimals: 18}
