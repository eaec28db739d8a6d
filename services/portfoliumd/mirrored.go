package portfoliumd

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
)

func (s *Server) mirroredRoutes(read, write chi.Router) {
	read.Get("/tokens", s.ListMirroredTokens)
	read.Get("/tokens/{token}/balances/{account}", s.GetMirroredBalance)

	write.Post("/tokens/{token}/mint", s.MintMirrored)
	write.Post("/tokens/{token}/burn", s.BurnMirrored)
	write.Post("/tokens/{token}/transfer", s.TransferMirrored)
}

func (s *Server) tokenRoutes(read, write chi.Router) {
	read.Get("/", s.ListTokens)
	read.Get("/{token}/balances/{account}", s.GetTokenBalance)

	write.Post("/{token}/transfer", s.TransferToken)
}

func (s *Server) accountRoutes(read, write chi.Router) {
	read.Get("/{account}", s.GetAccount)
}

type mirroredTokenView struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Commission  string `json:"commission"`
	TotalSupply string `json:"totalSupply"`
}

// ListMirroredTokens lists the deployed mirrored tokens.
func (s *Server) ListMirroredTokens(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		tokens, err := e.Mirrored.Tokens()
		if err != nil {
			return nil, err
		}
		out := make([]mirroredTokenView, 0, len(tokens))
		for _, token := range tokens {
			details, err := e.Mirrored.AssetDetails(token)
			if err != nil {
				return nil, err
			}
			supply, err := e.Mirrored.TotalSupply(token)
			if err != nil {
				return nil, err
			}
			out = append(out, mirroredTokenView{
				Address:     types.HexAddress(token),
				Name:        details.Name,
				Symbol:      details.Symbol,
				Decimals:    details.Decimals,
				Commission:  amountString(details.Commission),
				TotalSupply: amountString(supply),
			})
		}
		return out, nil
	})
}

func (s *Server) tokenBalance(w http.ResponseWriter, r *http.Request, balanceOf func(e *core.Engines, token, account [20]byte) (*big.Int, error)) {
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
		balance, err := balanceOf(e, token, account)
		if err != nil {
			return nil, err
		}
		return map[string]string{"token": types.HexAddress(token), "account": types.HexAddress(account), "balance": amountString(balance)}, nil
	})
}

// GetMirroredBalance returns the mirrored token balance of account.
func (s *Server) GetMirroredBalance(w http.ResponseWriter, r *http.Request) {
	s.tokenBalance(w, r, func(e *core.Engines, token, account [20]byte) (*big.Int, error) {
		return e.Mirrored.BalanceOf(token, account)
	})
}

// MintMirrored issues mirrored tokens to the caller against value.
func (s *Server) MintMirrored(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleMirrored, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		cost, err := e.Mirrored.Mint(caller, token, amount, value)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String(), "cost": amountString(cost)}, nil
	})
}

// BurnMirrored redeems the caller's mirrored tokens from the reserve.
func (s *Server) BurnMirrored(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleMirrored, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		payout, err := e.Mirrored.Burn(caller, token, amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String(), "payout": amountString(payout)}, nil
	})
}

// TransferMirrored moves mirrored tokens from the caller.
func (s *Server) TransferMirrored(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, core.ModuleMirrored, func(e *core.Engines, caller, token, to [20]byte, amount *big.Int) error {
		return e.Mirrored.Transfer(caller, token, to, amount)
	})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request, module string, move func(e *core.Engines, caller, token, to [20]byte, amount *big.Int) error) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	to, amount, err := req.parse()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, module, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := move(e, caller, token, to, amount); err != nil {
			return nil, err
		}
		return map[string]string{"status": "transferred"}, nil
	})
}

// ListTokens lists the ERC-20 style tokens.
func (s *Server) ListTokens(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		tokens, err := e.Tokens.Tokens()
		if err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, 0, len(tokens))
		for _, token := range tokens {
			details, err := e.Tokens.Details(token)
			if err != nil {
				return nil, err
			}
			supply, err := e.Tokens.TotalSupply(token)
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]interface{}{
				"address":     types.HexAddress(token),
				"name":        details.Name,
				"symbol":      details.Symbol,
				"decimals":    details.Decimals,
				"totalSupply": amountString(supply),
			})
		}
		return out, nil
	})
}

// GetTokenBalance returns the token balance of account.
func (s *Server) GetTokenBalance(w http.ResponseWriter, r *http.Request) {
	s.tokenBalance(w, r, func(e *core.Engines, token, account [20]byte) (*big.Int, error) {
		return e.Tokens.BalanceOf(token, account)
	})
}

// TransferToken moves tokens from the caller.
func (s *Server) TransferToken(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, core.ModuleToken, func(e *core.Engines, caller, token, to [20]byte, amount *big.Int) error {
		return e.Tokens.Transfer(caller, token, to, amount)
	})
}

// GetAccount returns the native balance of an account.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		balance, err := e.Bank.Balance(account)
		if err != nil {
			return nil, err
		}
		return map[string]string{"account": types.HexAddress(account), "balance": amountString(balance)}, nil
	})
}
