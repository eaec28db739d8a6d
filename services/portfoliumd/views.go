package portfoliumd

import (
	"math/big"

	"portfolium/core/types"
	"portfolium/native/fund"
	"portfolium/native/guard"
	"portfolium/native/synthetic"
	"portfolium/native/treasury"
)

// Amounts travel as base-10 strings so clients never lose precision.

type roleRequestView struct {
	ID        uint64   `json:"id"`
	Target    string   `json:"target"`
	Role      string   `json:"role"`
	Creator   string   `json:"creator"`
	Approvals []string `json:"approvals"`
	Status    string   `json:"status"`
	Rejector  string   `json:"rejector,omitempty"`
	CreatedAt uint64   `json:"createdAt"`
	DecidedAt uint64   `json:"decidedAt,omitempty"`
}

func roleRequestFrom(req *guard.RoleRequest) roleRequestView {
	view := roleRequestView{
		ID:        req.ID,
		Target:    types.HexAddress(req.Target),
		Role:      types.RoleName(req.Role),
		Creator:   types.HexAddress(req.Creator),
		Approvals: hexAddresses(req.Approvals),
		Status:    req.Status.StatusString(),
		CreatedAt: req.CreatedAt,
		DecidedAt: req.DecidedAt,
	}
	if !types.IsZeroAddress(req.Rejector) {
		view.Rejector = types.HexAddress(req.Rejector)
	}
	return view
}

type assetView struct {
	Address  string `json:"address"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func assetFrom(a fund.Asset) assetView {
	return assetView{
		Address:  types.HexAddress(a.Address),
		Type:     a.Type.String(),
		Name:     a.Name,
		Symbol:   a.Symbol,
		Decimals: a.Decimals,
	}
}

func tokenFrom(t *treasury.Token) assetView {
	return assetView{
		Address:  types.HexAddress(t.Address),
		Type:     t.Type.String(),
		Name:     t.Name,
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}

type portfolioAssetView struct {
	assetView
	PerShare string `json:"perShare"`
	Weight   uint64 `json:"weight"`
}

type portfolioView struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	ShareCap    string `json:"shareCap"`
	AssetCount  uint64 `json:"assetCount"`
	CreatedAt   uint64 `json:"createdAt"`
	TotalShares string `json:"totalShares"`
	Value       string `json:"value"`
	SharePrice  string `json:"sharePrice"`
}

type orderView struct {
	Token       string `json:"token"`
	Side        string `json:"side"`
	Index       uint64 `json:"index"`
	Trader      string `json:"trader"`
	Amount      string `json:"amount"`
	Value       string `json:"value"`
	Status      string `json:"status"`
	CreatedAt   uint64 `json:"createdAt"`
	CompletedAt uint64 `json:"completedAt,omitempty"`
}

func orderFrom(token [20]byte, side synthetic.OrderSide, o *synthetic.Order) orderView {
	return orderView{
		Token:       types.HexAddress(token),
		Side:        side.String(),
		Index:       o.Index,
		Trader:      types.HexAddress(o.Trader),
		Amount:      amountString(o.Amount),
		Value:       amountString(o.Value),
		Status:      o.Status.StatusString(),
		CreatedAt:   o.CreatedAt,
		CompletedAt: o.CompletedAt,
	}
}

func hexAddresses(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, types.HexAddress(addr))
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
