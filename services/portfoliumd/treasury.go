package portfoliumd

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/native/synthetic"
)

func (s *Server) treasuryRoutes(read, write chi.Router) {
	read.Get("/tokens", s.ListTreasuryTokens)
	read.Get("/tokens/{asset}", s.GetTreasuryToken)
	read.Get("/balances/{account}/{asset}", s.GetTreasuryBalance)
	read.Get("/quote", s.QuoteSwap)
	read.Get("/orders/{token}/{side}/{index}", s.GetPendingOrder)

	write.Post("/tokens", s.AddTreasuryToken)
	write.Delete("/tokens/{asset}", s.RemoveTreasuryToken)
	write.Post("/swap", s.SwapTokens)
}

func sideParam(r *http.Request) (synthetic.OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(chi.URLParam(r, "side"))) {
	case "buy":
		return synthetic.OrderSideBuy, nil
	case "sell":
		return synthetic.OrderSideSell, nil
	default:
		return 0, badRequest("side must be buy or sell")
	}
}

// ListTreasuryTokens lists every asset the treasury holds in custody.
func (s *Server) ListTreasuryTokens(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		addrs, err := e.Treasury.Tokens()
		if err != nil {
			return nil, err
		}
		out := make([]assetView, 0, len(addrs))
		for _, addr := range addrs {
			token, err := e.Treasury.GetToken(addr)
			if err != nil {
				return nil, err
			}
			out = append(out, tokenFrom(token))
		}
		return out, nil
	})
}

// GetTreasuryToken returns one registered asset with its custody totals.
func (s *Server) GetTreasuryToken(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		token, err := e.Treasury.GetToken(asset)
		if err != nil {
			return nil, err
		}
		total, err := e.Treasury.TotalOf(asset)
		if err != nil {
			return nil, err
		}
		custody, err := e.Treasury.Custody(asset)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"token":   tokenFrom(token),
			"total":   amountString(total),
			"custody": amountString(custody),
		}, nil
	})
}

// GetTreasuryBalance returns the ledger balance of account in asset.
func (s *Server) GetTreasuryBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		balance, err := e.Treasury.GetBalanceOf(account, asset)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"account": types.HexAddress(account),
			"asset":   types.HexAddress(asset),
			"balance": amountString(balance),
		}, nil
	})
}

// QuoteSwap prices a router swap without executing it.
func (s *Server) QuoteSwap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseAccount("from", q.Get("from"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseAccount("to", q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	amountIn, err := amountQuery(r, "amountIn")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		out, err := e.Router.Quote(from, to, amountIn)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"amountIn":  amountIn.String(),
			"amountOut": amountString(out),
			"feeBps":    e.Router.FeeBps(),
		}, nil
	})
}

// GetPendingOrder returns the treasury side of an open synthetic order.
func (s *Server) GetPendingOrder(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	side, err := sideParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		pending, err := e.Treasury.PendingOrder(token, side, index)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"account":   types.HexAddress(pending.Account),
			"recipient": types.HexAddress(pending.Recipient),
			"amount":    amountString(pending.Amount),
		}, nil
	})
}

// AddTreasuryToken registers an asset for custody.
func (s *Server) AddTreasuryToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
		Type  string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	asset, err := parseAccount("asset", req.Asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	assetType, err := types.ParseAssetType(req.Type)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	s.apply(w, r, core.ModuleTreasury, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Treasury.AddAsset(caller, asset, assetType); err != nil {
			return nil, err
		}
		token, err := e.Treasury.GetToken(asset)
		if err != nil {
			return nil, err
		}
		return tokenFrom(token), nil
	})
}

// RemoveTreasuryToken unregisters an asset with no outstanding balances.
func (s *Server) RemoveTreasuryToken(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleTreasury, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Treasury.RemoveToken(caller, asset); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed"}, nil
	})
}

// SwapTokens exchanges part of account's ledger balance through the router.
func (s *Server) SwapTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		From     string `json:"from"`
		To       string `json:"to"`
		AmountIn string `json:"amountIn"`
		MinOut   string `json:"minOut"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAccount("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	from, err := parseAccount("from", req.From)
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amountIn, err := parseAmount("amountIn", req.AmountIn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	minOut, err := parseAmount("minOut", req.MinOut)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleTreasury, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		out, err := e.Treasury.SwapTokens(caller, account, from, to, amountIn, minOut)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amountOut": amountString(out)}, nil
	})
}
