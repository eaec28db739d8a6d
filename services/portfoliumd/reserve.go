package portfoliumd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
)

func (s *Server) reserveRoutes(read, write chi.Router) {
	read.Get("/", s.GetReserve)
	read.Get("/accounts/{account}", s.IsAccessingAccount)

	write.Post("/accounts", s.AddReserveAccount)
	write.Delete("/accounts/{account}", s.RemoveReserveAccount)
	write.Post("/deposit", s.DepositReserve)
	write.Post("/withdraw", s.WithdrawReserve)
}

// GetReserve reports the reserve balance and its accessing accounts.
func (s *Server) GetReserve(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		balance, err := e.Reserve.Balance()
		if err != nil {
			return nil, err
		}
		accounts, err := e.Reserve.Accounts()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"address":  types.HexAddress(e.Reserve.Address()),
			"balance":  amountString(balance),
			"accounts": hexAddresses(accounts),
		}, nil
	})
}

// IsAccessingAccount reports whether account may draw on the reserve.
func (s *Server) IsAccessingAccount(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		ok, err := e.Reserve.IsAccessingAccount(account)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": types.HexAddress(account), "accessing": ok}, nil
	})
}

// AddReserveAccount lets account draw on the reserve.
func (s *Server) AddReserveAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAccount("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleReserve, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Reserve.AddAccount(caller, account); err != nil {
			return nil, err
		}
		return map[string]string{"status": "added"}, nil
	})
}

// RemoveReserveAccount revokes reserve access.
func (s *Server) RemoveReserveAccount(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleReserve, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Reserve.RemoveAccount(caller, account); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed"}, nil
	})
}

// DepositReserve moves value from the caller into the reserve.
func (s *Server) DepositReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleReserve, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Reserve.Deposit(caller, value); err != nil {
			return nil, err
		}
		balance, err := e.Reserve.Balance()
		if err != nil {
			return nil, err
		}
		return map[string]string{"balance": amountString(balance)}, nil
	})
}

// WithdrawReserve pays amount from the reserve to recipient.
func (s *Server) WithdrawReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	recipient, err := parseAccount("recipient", req.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleReserve, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Reserve.Withdraw(caller, recipient, amount); err != nil {
			return nil, err
		}
		balance, err := e.Reserve.Balance()
		if err != nil {
			return nil, err
		}
		return map[string]string{"balance": amountString(balance)}, nil
	})
}
