package portfoliumd

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/native/synthetic"
)

func (s *Server) syntheticRoutes(read, write chi.Router) {
	read.Get("/tokens", s.ListSyntheticTokens)
	read.Get("/tokens/{token}", s.GetSyntheticToken)
	read.Get("/tokens/{token}/balances/{account}", s.GetSyntheticBalance)
	read.Get("/tokens/{token}/orders/{side}", s.CountOrders)
	read.Get("/tokens/{token}/orders/{side}/{index}", s.GetOrder)

	write.Post("/tokens/{token}/buy", s.PlaceBuyOrder)
	write.Post("/tokens/{token}/sell", s.PlaceSellOrder)
	write.Post("/tokens/{token}/orders/{side}/{index}/complete", s.CompleteOrder)
	write.Post("/tokens/{token}/transfer", s.TransferSynthetic)
}

type syntheticTokenView struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	CompanyName string `json:"companyName"`
	CompanyID   string `json:"companyId"`
	DepotID     string `json:"depotId"`
	Commission  string `json:"commission"`
	TotalSupply string `json:"totalSupply"`
}

func syntheticTokenFrom(e *core.Engines, token [20]byte) (syntheticTokenView, error) {
	details, err := e.Synthetic.AssetDetails(token)
	if err != nil {
		return syntheticTokenView{}, err
	}
	supply, err := e.Synthetic.TotalSupply(token)
	if err != nil {
		return syntheticTokenView{}, err
	}
	return syntheticTokenView{
		Address:     types.HexAddress(token),
		Name:        details.Name,
		Symbol:      details.Symbol,
		Decimals:    details.Decimals,
		CompanyName: details.CompanyName,
		CompanyID:   details.CompanyID,
		DepotID:     details.DepotID,
		Commission:  amountString(details.Commission),
		TotalSupply: amountString(supply),
	}, nil
}

// ListSyntheticTokens lists the deployed synthetic tokens.
func (s *Server) ListSyntheticTokens(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		tokens, err := e.Synthetic.Tokens()
		if err != nil {
			return nil, err
		}
		out := make([]syntheticTokenView, 0, len(tokens))
		for _, token := range tokens {
			view, err := syntheticTokenFrom(e, token)
			if err != nil {
				return nil, err
			}
			out = append(out, view)
		}
		return out, nil
	})
}

// GetSyntheticToken returns one synthetic token.
func (s *Server) GetSyntheticToken(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		return syntheticTokenFrom(e, token)
	})
}

// GetSyntheticBalance returns the token balance of account.
func (s *Server) GetSyntheticBalance(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		balance, err := e.Synthetic.BalanceOf(token, account)
		if err != nil {
			return nil, err
		}
		return map[string]string{"token": types.HexAddress(token), "account": types.HexAddress(account), "balance": amountString(balance)}, nil
	})
}

// CountOrders returns the number of orders ever placed on one side.
func (s *Server) CountOrders(w http.ResponseWriter, r *http.Request) {
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
	s.view(w, func(e *core.Engines) (interface{}, error) {
		count := e.Synthetic.BuyOrderCount
		if side == synthetic.OrderSideSell {
			count = e.Synthetic.SellOrderCount
		}
		n, err := count(token)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"token": types.HexAddress(token), "side": side.String(), "count": n}, nil
	})
}

// GetOrder returns one order.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
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
		order, err := e.Synthetic.Order(token, side, index)
		if err != nil {
			return nil, err
		}
		return orderFrom(token, side, order), nil
	})
}

// PlaceBuyOrder escrows value and queues a buy order for the caller.
func (s *Server) PlaceBuyOrder(w http.ResponseWriter, r *http.Request) {
	s.placeOrder(w, r, synthetic.OrderSideBuy)
}

// PlaceSellOrder escrows the caller's tokens and queues a sell order.
func (s *Server) PlaceSellOrder(w http.ResponseWriter, r *http.Request) {
	s.placeOrder(w, r, synthetic.OrderSideSell)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request, side synthetic.OrderSide) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleSynthetic, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		var (
			index uint64
			err   error
		)
		if side == synthetic.OrderSideBuy {
			index, err = e.Synthetic.PlaceBuyOrder(caller, token, amount, value)
		} else {
			index, err = e.Synthetic.PlaceSellOrder(caller, token, amount)
		}
		if err != nil {
			return nil, err
		}
		order, err := e.Synthetic.Order(token, side, index)
		if err != nil {
			return nil, err
		}
		return orderFrom(token, side, order), nil
	})
}

// CompleteOrder settles an open order. Only the application account may
// complete orders.
func (s *Server) CompleteOrder(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleSynthetic, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		complete := e.Synthetic.CompleteBuyOrder
		if side == synthetic.OrderSideSell {
			complete = e.Synthetic.CompleteSellOrder
		}
		if err := complete(caller, token, index); err != nil {
			return nil, err
		}
		order, err := e.Synthetic.Order(token, side, index)
		if err != nil {
			return nil, err
		}
		return orderFrom(token, side, order), nil
	})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (req transferRequest) parse() ([20]byte, *big.Int, error) {
	to, err := parseAccount("to", req.To)
	if err != nil {
		return [20]byte{}, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return [20]byte{}, nil, err
	}
	return to, amount, nil
}

// TransferSynthetic moves synthetic tokens from the caller.
func (s *Server) TransferSynthetic(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, core.ModuleSynthetic, func(e *core.Engines, caller, token, to [20]byte, amount *big.Int) error {
		return e.Synthetic.Transfer(caller, token, to, amount)
	})
}
