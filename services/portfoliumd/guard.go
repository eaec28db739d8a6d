package portfoliumd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
)

func (s *Server) guardRoutes(read, write chi.Router) {
	read.Get("/signers", s.GetSigners)
	read.Get("/requests/{id}", s.GetRoleRequest)
	read.Get("/roles/{role}", s.GetRoleMembers)
	read.Get("/roles/{role}/{account}", s.HasRole)

	write.Post("/requests", s.CreateRoleRequest)
	write.Post("/requests/{id}/approve", s.ApproveRoleRequest)
	write.Post("/requests/{id}/reject", s.RejectRoleRequest)
	write.Post("/users", s.AddUser)
	write.Post("/portfolium", s.GrantPortfoliumRole)
	write.Delete("/roles/{role}/{account}", s.RemoveRole)
}

func roleParam(r *http.Request) ([32]byte, error) {
	role, err := types.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return [32]byte{}, badRequest("%v", err)
	}
	return role, nil
}

// GetSigners lists the signer set and the approval quorum.
func (s *Server) GetSigners(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		signers, err := e.Guard.Signers()
		if err != nil {
			return nil, err
		}
		quorum, err := e.Guard.Quorum()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"signers": hexAddresses(signers), "quorum": quorum}, nil
	})
}

// GetRoleRequest returns one role request.
func (s *Server) GetRoleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		req, err := e.Guard.Request(id)
		if err != nil {
			return nil, err
		}
		return roleRequestFrom(req), nil
	})
}

// GetRoleMembers lists the holders of a role.
func (s *Server) GetRoleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		members, err := e.Guard.RoleMembers(role)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"role": types.RoleName(role), "members": hexAddresses(members)}, nil
	})
}

// HasRole reports whether an account holds a role.
func (s *Server) HasRole(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
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
		has, err := e.Guard.HasPortfoliumRole(role, account)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"role":    types.RoleName(role),
			"account": types.HexAddress(account),
			"hasRole": has,
		}, nil
	})
}

// CreateRoleRequest opens a request granting role to target.
func (s *Server) CreateRoleRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
		Role   string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	target, err := parseAccount("target", req.Target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	role, err := types.ParseRole(req.Role)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	s.apply(w, r, core.ModuleGuard, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		id, err := e.Guard.CreateRequest(caller, target, role)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"id": id}, nil
	})
}

// ApproveRoleRequest records the caller's approval.
func (s *Server) ApproveRoleRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRoleRequest(w, r, true)
}

// RejectRoleRequest vetoes the request.
func (s *Server) RejectRoleRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRoleRequest(w, r, false)
}

func (s *Server) decideRoleRequest(w http.ResponseWriter, r *http.Request, approve bool) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleGuard, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		decide := e.Guard.RejectRequest
		if approve {
			decide = e.Guard.ApproveRequest
		}
		req, err := decide(caller, id)
		if err != nil {
			return nil, err
		}
		return roleRequestFrom(req), nil
	})
}

type accountRequest struct {
	Account string `json:"account"`
}

// AddUser grants USER_ROLE.
func (s *Server) AddUser(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleGuard, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Guard.AddUser(caller, account); err != nil {
			return nil, err
		}
		return map[string]string{"status": "granted"}, nil
	})
}

// GrantPortfoliumRole grants PORTFOLIUM_ROLE directly.
func (s *Server) GrantPortfoliumRole(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleGuard, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Guard.GrantPortfoliumRole(caller, account); err != nil {
			return nil, err
		}
		return map[string]string{"status": "granted"}, nil
	})
}

// RemoveRole revokes role from account.
func (s *Server) RemoveRole(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleGuard, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Guard.RemoveRole(caller, account, role); err != nil {
			return nil, err
		}
		return map[string]string{"status": "revoked"}, nil
	})
}
