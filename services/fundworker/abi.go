package fundworker

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const fundABIJSON = `[
 {"type":"function","name":"assetCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"assetAddresses","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"assets","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[
  {"name":"assetAddress","type":"address"},
  {"name":"name","type":"string"},
  {"name":"symbol","type":"string"},
  {"name":"decimals","type":"uint8"},
  {"name":"perShareAmount","type":"uint256"},
  {"name":"assetType","type":"uint8"},
  {"name":"weight","type":"uint256"}]},
 {"type":"function","name":"getFundValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"updateMultipleAllocations","stateMutability":"nonpayable","inputs":[{"name":"allocations","type":"tuple[]","components":[
  {"name":"assetAddress","type":"address"},
  {"name":"perShareAmount","type":"uint256"}]}],"outputs":[]}
]`

const oracleABIJSON = `[
 {"type":"function","name":"getPrice","stateMutability":"view","inputs":[{"name":"assetAddress","type":"address"}],"outputs":[
  {"name":"price","type":"uint256"},
  {"name":"updatedAt","type":"uint256"}]},
 {"type":"function","name":"assetPriceOrigin","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"setPrice","stateMutability":"nonpayable","inputs":[
  {"name":"assetAddress","type":"address"},
  {"name":"newPrice","type":"uint256"}],"outputs":[]}
]`

const syntheticABIJSON = `[
 {"type":"function","name":"buyOrderCompleted","stateMutability":"nonpayable","inputs":[{"name":"orderIndex","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"sellOrderCompleted","stateMutability":"nonpayable","inputs":[{"name":"orderIndex","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"NewBuyOrder","anonymous":false,"inputs":[{"name":"orderIndex","type":"uint256","indexed":false}]},
 {"type":"event","name":"NewSellOrder","anonymous":false,"inputs":[{"name":"orderIndex","type":"uint256","indexed":false}]}
]`

var (
	fundABI      = mustParseABI("fund", fundABIJSON)
	oracleABI    = mustParseABI("oracle", oracleABIJSON)
	syntheticABI = mustParseABI("synthetic", syntheticABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("fundworker: parse %s abi: %v", name, err))
	}
	return parsed
}

// fundAssetTuple mirrors the return tuple of the fund's assets(address).
type fundAssetTuple struct {
	AssetAddress   common.Address
	Name           string
	Symbol         string
	Decimals       uint8
	PerShareAmount *big.Int
	AssetType      uint8
	Weight         *big.Int
}

// priceTuple mirrors the return tuple of the oracle's getPrice(address).
type priceTuple struct {
	Price     *big.Int
	UpdatedAt *big.Int
}

// allocationTuple is one element of updateMultipleAllocations.
type allocationTuple struct {
	AssetAddress   common.Address
	PerShareAmount *big.Int
}

// orderLog is the data of NewBuyOrder and NewSellOrder.
type orderLog struct {
	OrderIndex *big.Int
}
