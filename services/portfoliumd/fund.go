package portfoliumd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/native/fund"
)

func (s *Server) fundRoutes(read, write chi.Router) {
	read.Get("/assets", s.ListSupportedAssets)
	read.Get("/commission", s.GetPlatformCommission)
	read.Get("/portfolios", s.ListPortfolios)
	read.Get("/portfolios/{owner}", s.GetPortfolio)
	read.Get("/portfolios/{owner}/assets", s.GetPortfolioAssets)
	read.Get("/portfolios/{owner}/managers", s.GetManagers)
	read.Get("/portfolios/{owner}/shareholders", s.GetShareholders)
	read.Get("/portfolios/{owner}/balances/{account}", s.GetShareBalance)
	read.Get("/portfolios/{owner}/cost", s.GetBuyingCost)

	write.Post("/assets", s.AddSupportedAsset)
	write.Put("/commission", s.UpdatePlatformCommission)
	write.Post("/portfolios", s.CreatePortfolio)
	write.Post("/portfolio/assets", s.AddPortfolioAsset)
	write.Post("/portfolio/managers", s.AddManager)
	write.Delete("/portfolio/managers/{manager}", s.RemoveManager)
	write.Put("/portfolios/{owner}/allocations", s.UpdateAllocations)
	write.Put("/portfolios/{owner}/weights", s.UpdateWeights)
	write.Post("/portfolios/{owner}/buy", s.BuyShares)
	write.Post("/portfolios/{owner}/sell", s.SellShares)
}

// ListSupportedAssets lists the assets portfolios may hold.
func (s *Server) ListSupportedAssets(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		addrs, err := e.Fund.SupportedAssets()
		if err != nil {
			return nil, err
		}
		out := make([]assetView, 0, len(addrs))
		for _, addr := range addrs {
			asset, err := e.Fund.AvailableAsset(addr)
			if err != nil {
				return nil, err
			}
			out = append(out, assetFrom(*asset))
		}
		return out, nil
	})
}

// GetPlatformCommission returns the commission charged per portfolio call.
func (s *Server) GetPlatformCommission(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		commission, err := e.Fund.PlatformCommission()
		if err != nil {
			return nil, err
		}
		return map[string]string{"commission": amountString(commission)}, nil
	})
}

// ListPortfolios lists portfolio owners.
func (s *Server) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *core.Engines) (interface{}, error) {
		owners, err := e.Fund.Portfolios()
		if err != nil {
			return nil, err
		}
		return map[string][]string{"portfolios": hexAddresses(owners)}, nil
	})
}

// GetPortfolio returns a portfolio with its share supply and valuation.
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		p, err := e.Fund.Portfolio(owner)
		if err != nil {
			return nil, err
		}
		shares, err := e.Fund.TotalShares(owner)
		if err != nil {
			return nil, err
		}
		value, err := e.Fund.PortfolioValue(owner)
		if err != nil {
			return nil, err
		}
		price, err := e.Fund.SharePrice(owner)
		if err != nil {
			return nil, err
		}
		return portfolioView{
			Owner:       types.HexAddress(p.Owner),
			Name:        p.Name,
			Symbol:      p.Symbol,
			ShareCap:    amountString(p.ShareCap),
			AssetCount:  p.AssetCount,
			CreatedAt:   p.CreatedAt,
			TotalShares: amountString(shares),
			Value:       amountString(value),
			SharePrice:  amountString(price),
		}, nil
	})
}

// GetPortfolioAssets lists the assets of a portfolio with allocation and
// target weight.
func (s *Server) GetPortfolioAssets(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		assets, err := e.Fund.Assets(owner)
		if err != nil {
			return nil, err
		}
		out := make([]portfolioAssetView, 0, len(assets))
		for _, a := range assets {
			out = append(out, portfolioAssetView{
				assetView: assetFrom(a.Asset),
				PerShare:  amountString(a.PerShare),
				Weight:    a.Weight,
			})
		}
		return out, nil
	})
}

// GetManagers lists the managers of a portfolio.
func (s *Server) GetManagers(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		managers, err := e.Fund.Managers(owner)
		if err != nil {
			return nil, err
		}
		return map[string][]string{"managers": hexAddresses(managers)}, nil
	})
}

// GetShareholders lists the accounts holding shares of a portfolio.
func (s *Server) GetShareholders(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		holders, err := e.Fund.Shareholders(owner)
		if err != nil {
			return nil, err
		}
		return map[string][]string{"shareholders": hexAddresses(holders)}, nil
	})
}

// GetShareBalance returns the shares account holds in a portfolio.
func (s *Server) GetShareBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
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
		balance, err := e.Fund.BalanceOf(owner, account)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"portfolio": types.HexAddress(owner),
			"account":   types.HexAddress(account),
			"shares":    amountString(balance),
		}, nil
	})
}

// GetBuyingCost quotes buying amount shares.
func (s *Server) GetBuyingCost(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := amountQuery(r, "amount")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		cost, err := e.Fund.CalculateBuyingCost(owner, amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String(), "cost": amountString(cost)}, nil
	})
}

// AddSupportedAsset makes an asset available to portfolios.
func (s *Server) AddSupportedAsset(w http.ResponseWriter, r *http.Request) {
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
	s.apply(w, r, core.ModuleFund, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		var err error
		switch assetType {
		case types.AssetTypeERC20:
			err = e.Fund.AddSupportedERC20Asset(caller, asset)
		case types.AssetTypeMirrored:
			err = e.Fund.AddSupportedMirroredAsset(caller, asset)
		case types.AssetTypeSynthetic:
			err = e.Fund.AddSupportedSyntheticAsset(caller, asset)
		default:
			return nil, badRequest("%s assets cannot be added", assetType)
		}
		if err != nil {
			return nil, err
		}
		available, err := e.Fund.AvailableAsset(asset)
		if err != nil {
			return nil, err
		}
		return assetFrom(*available), nil
	})
}

// UpdatePlatformCommission changes the platform commission.
func (s *Server) UpdatePlatformCommission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Commission string `json:"commission"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	commission, err := parseAmount("commission", req.Commission)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.UpdatePlatformCommission(caller, commission); err != nil {
			return nil, err
		}
		return map[string]string{"commission": commission.String()}, nil
	})
}

// CreatePortfolio opens the caller's portfolio.
func (s *Server) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		ShareCap string `json:"shareCap"`
		Value    string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	shareCap, err := parseAmount("shareCap", req.ShareCap)
	if err != nil {
		s.writeError(w, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleFund, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.CreatePortfolio(caller, req.Name, req.Symbol, shareCap, value); err != nil {
			return nil, err
		}
		return map[string]string{"owner": types.HexAddress(caller)}, nil
	})
}

// AddPortfolioAsset adds a supported asset to the caller's portfolio.
func (s *Server) AddPortfolioAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
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
	s.apply(w, r, core.ModuleFund, http.StatusCreated, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.AddAsset(caller, asset); err != nil {
			return nil, err
		}
		return map[string]string{"portfolio": types.HexAddress(caller), "asset": types.HexAddress(asset)}, nil
	})
}

// AddManager lets an account manage the caller's portfolio.
func (s *Server) AddManager(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	manager, err := parseAccount("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.AddManager(caller, manager); err != nil {
			return nil, err
		}
		return map[string]string{"status": "added"}, nil
	})
}

// RemoveManager revokes a manager of the caller's portfolio.
func (s *Server) RemoveManager(w http.ResponseWriter, r *http.Request) {
	manager, err := accountParam(r, "manager")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.RemoveManager(caller, manager); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed"}, nil
	})
}

// UpdateAllocations sets per-share allocations of several assets at once.
func (s *Server) UpdateAllocations(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Allocations []struct {
			Asset    string `json:"asset"`
			PerShare string `json:"perShare"`
		} `json:"allocations"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	allocations := make([]fund.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		asset, err := parseAccount("asset", a.Asset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		perShare, err := parseAmount("perShare", a.PerShare)
		if err != nil {
			s.writeError(w, err)
			return
		}
		allocations = append(allocations, fund.Allocation{Asset: asset, PerShare: perShare})
	}
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.UpdateMultipleAllocations(caller, owner, allocations); err != nil {
			return nil, err
		}
		return map[string]int{"updated": len(allocations)}, nil
	})
}

// UpdateWeights sets the target weights the rebalancer steers toward.
func (s *Server) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Weights []struct {
			Asset string `json:"asset"`
			Bps   uint64 `json:"bps"`
		} `json:"weights"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	weights := make([]fund.Weight, 0, len(req.Weights))
	for _, wt := range req.Weights {
		asset, err := parseAccount("asset", wt.Asset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		weights = append(weights, fund.Weight{Asset: asset, Bps: wt.Bps})
	}
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Fund.UpdateWeights(caller, owner, weights); err != nil {
			return nil, err
		}
		return map[string]int{"updated": len(weights)}, nil
	})
}

type tradeRequest struct {
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

// BuyShares issues shares of a portfolio to the caller.
func (s *Server) BuyShares(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, true)
}

// SellShares redeems the caller's shares of a portfolio.
func (s *Server) SellShares(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, false)
}

func (s *Server) trade(w http.ResponseWriter, r *http.Request, buy bool) {
	owner, err := accountParam(r, "owner")
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
	s.apply(w, r, core.ModuleFund, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if buy {
			cost, err := e.Fund.BuyShares(caller, owner, amount, value)
			if err != nil {
				return nil, err
			}
			return map[string]string{"shares": amount.String(), "cost": amountString(cost)}, nil
		}
		payout, err := e.Fund.SellShares(caller, owner, amount, value)
		if err != nil {
			return nil, err
		}
		return map[string]string{"shares": amount.String(), "payout": amountString(payout)}, nil
	})
}
