package portfoliumd

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/native/oracle"
)

func (s *Server) oracleRoutes(read, write chi.Router) {
	read.Get("/prices/{asset}", s.GetPrice)
	read.Get("/costs/{asset}", s.GetCost)
	read.Get("/feeds/{feed}/latest", s.GetLatestRound)
	read.Get("/trusted/{account}", s.IsTrusted)

	write.Post("/prices", s.SetPrices)
	write.Put("/prices/{asset}", s.SetPrice)
	write.Put("/prices/{asset}/origin", s.SetPriceOrigin)
	write.Put("/prices/{asset}/type", s.SetAssetType)
	write.Put("/feeds/{asset}", s.SetFeedAddress)
	write.Post("/feeds/{feed}/rounds", s.PublishFeedRound)
	write.Put("/trusted/{account}", s.SetTrusted)
}

func parseOrigin(raw string) (types.PriceOrigin, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "stored":
		return types.PriceOriginStored, nil
	case "chainlink":
		return types.PriceOriginChainlink, nil
	default:
		return 0, badRequest("unknown price origin %q", raw)
	}
}

// GetPrice returns the effective price of asset with its origin and type.
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		price, updatedAt, err := e.Oracle.GetPrice(asset)
		if err != nil {
			return nil, err
		}
		origin, err := e.Oracle.PriceOrigin(asset)
		if err != nil {
			return nil, err
		}
		assetType, err := e.Oracle.AssetType(asset)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"asset":     types.HexAddress(asset),
			"price":     amountString(price),
			"updatedAt": updatedAt,
			"origin":    origin.String(),
			"type":      assetType.String(),
		}, nil
	})
}

// GetCost quotes the buying cost (side=buy, the default) or the payout
// (side=sell) of amount units of asset.
func (s *Server) GetCost(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := amountQuery(r, "amount")
	if err != nil {
		s.writeError(w, err)
		return
	}
	side := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("side")))
	if side == "" {
		side = "buy"
	}
	if side != "buy" && side != "sell" {
		s.writeError(w, badRequest("side must be buy or sell"))
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		var (
			value *big.Int
			err   error
		)
		if side == "buy" {
			value, err = e.Oracle.GetBuyingCost(asset, amount)
		} else {
			value, err = e.Oracle.GetPayoutAmount(asset, amount)
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"asset":  types.HexAddress(asset),
			"side":   side,
			"amount": amount.String(),
			"value":  value.String(),
		}, nil
	})
}

// GetLatestRound returns the last answer published to a feed.
func (s *Server) GetLatestRound(w http.ResponseWriter, r *http.Request) {
	feed, err := accountParam(r, "feed")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		round, err := e.Oracle.LatestRound(feed)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"feed":      types.HexAddress(feed),
			"answer":    amountString(round.Answer),
			"decimals":  round.Decimals,
			"updatedAt": round.UpdatedAt,
		}, nil
	})
}

// IsTrusted reports whether account may push prices.
func (s *Server) IsTrusted(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.view(w, func(e *core.Engines) (interface{}, error) {
		trusted, err := e.Oracle.IsTrusted(account)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": types.HexAddress(account), "trusted": trusted}, nil
	})
}

type priceRequest struct {
	Asset string `json:"asset,omitempty"`
	Price string `json:"price"`
}

// SetPrice stores the price of one asset.
func (s *Server) SetPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetPrice(caller, asset, price); err != nil {
			return nil, err
		}
		return map[string]string{"asset": types.HexAddress(asset), "price": price.String()}, nil
	})
}

// SetPrices stores a batch of prices atomically.
func (s *Server) SetPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prices []priceRequest `json:"prices"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	updates := make([]oracle.PriceUpdate, 0, len(req.Prices))
	for _, p := range req.Prices {
		asset, err := parseAccount("asset", p.Asset)
		if err != nil {
			s.writeError(w, err)
			return
		}
		price, err := parseAmount("price", p.Price)
		if err != nil {
			s.writeError(w, err)
			return
		}
		updates = append(updates, oracle.PriceUpdate{Asset: asset, Price: price})
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetPrices(caller, updates); err != nil {
			return nil, err
		}
		return map[string]int{"updated": len(updates)}, nil
	})
}

// SetPriceOrigin switches where the asset price is read from.
func (s *Server) SetPriceOrigin(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Origin string `json:"origin"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	origin, err := parseOrigin(req.Origin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetPriceOrigin(caller, asset, origin); err != nil {
			return nil, err
		}
		return map[string]string{"asset": types.HexAddress(asset), "origin": origin.String()}, nil
	})
}

// SetAssetType records the asset class used for pricing.
func (s *Server) SetAssetType(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	assetType, err := types.ParseAssetType(req.Type)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetAssetType(caller, asset, assetType); err != nil {
			return nil, err
		}
		return map[string]string{"asset": types.HexAddress(asset), "type": assetType.String()}, nil
	})
}

// SetFeedAddress binds asset to an external price feed.
func (s *Server) SetFeedAddress(w http.ResponseWriter, r *http.Request) {
	asset, err := accountParam(r, "asset")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Feed string `json:"feed"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	feed, err := parseAccount("feed", req.Feed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetChainlinkPriceFeedAddress(caller, asset, feed); err != nil {
			return nil, err
		}
		return map[string]string{"asset": types.HexAddress(asset), "feed": types.HexAddress(feed)}, nil
	})
}

// PublishFeedRound records a new answer for feed.
func (s *Server) PublishFeedRound(w http.ResponseWriter, r *http.Request) {
	feed, err := accountParam(r, "feed")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Answer   string `json:"answer"`
		Decimals uint8  `json:"decimals"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	answer, err := parseAmount("answer", req.Answer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.PublishFeedRound(caller, feed, answer, req.Decimals); err != nil {
			return nil, err
		}
		return map[string]string{"feed": types.HexAddress(feed), "answer": answer.String()}, nil
	})
}

// SetTrusted adds or removes a price pusher.
func (s *Server) SetTrusted(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Trusted bool `json:"trusted"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.apply(w, r, core.ModuleOracle, http.StatusOK, func(caller [20]byte, e *core.Engines) (interface{}, error) {
		if err := e.Oracle.SetTrustedAccount(caller, account, req.Trusted); err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": types.HexAddress(account), "trusted": req.Trusted}, nil
	})
}
