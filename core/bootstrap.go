package core

import (
	"fmt"
	"math/big"
	"time"

	"portfolium/core/genesis"
	"portfolium/core/types"
	"portfolium/native/oracle"
	"portfolium/native/synthetic"
)

// bootstrap executes the genesis spec against an empty state. Records created
// during genesis are stamped with the genesis time.
func (p *Platform) bootstrap(spec *genesis.GenesisSpec) error {
	clock := p.nowFn
	genesisTime := spec.GenesisTimestamp()
	p.nowFn = func() time.Time { return genesisTime }
	defer func() { p.nowFn = clock }()

	e := p.engines
	admin := spec.AdminAccount()
	app := spec.ApplicationAccount()
	fundAddr := e.Fund.Address()

	if err := e.Guard.Init(admin, spec.SignerAccounts(), spec.Quorum); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	if err := e.Guard.GrantPortfoliumRole(admin, fundAddr); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	if err := e.Reserve.Init(admin); err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if err := e.Oracle.Init(admin, app); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := e.Synthetic.Init(admin, app); err != nil {
		return fmt.Errorf("synthetic: %w", err)
	}
	if err := e.Treasury.Init(admin); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if err := e.Treasury.SetPortfoliumAddress(admin, fundAddr); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if err := e.Fund.Init(admin, spec.PlatformCommissionAmount(), spec.NativeMetadata()); err != nil {
		return fmt.Errorf("fund: %w", err)
	}

	for _, alloc := range spec.Allocations() {
		if err := p.state.Credit(alloc.Account, alloc.Amount); err != nil {
			return fmt.Errorf("alloc %s: %w", types.HexAddress(alloc.Account), err)
		}
	}
	if inventory := spec.Router.InventoryAmount(); inventory.Sign() > 0 {
		if err := p.state.Credit(e.Router.Address(), inventory); err != nil {
			return fmt.Errorf("router inventory: %w", err)
		}
	}

	for i := range spec.Tokens {
		if err := p.bootstrapToken(admin, app, &spec.Tokens[i]); err != nil {
			return fmt.Errorf("token %s: %w", spec.Tokens[i].Symbol, err)
		}
	}
	for i := range spec.Mirrored {
		asset := &spec.Mirrored[i]
		addr, err := e.Mirrored.Deploy(admin, asset.Metadata(), asset.CommissionAmount())
		if err != nil {
			return fmt.Errorf("mirrored %s: %w", asset.Symbol, err)
		}
		if err := p.bootstrapListed(admin, app, addr, &asset.AssetSpec, types.AssetTypeMirrored); err != nil {
			return fmt.Errorf("mirrored %s: %w", asset.Symbol, err)
		}
	}
	for i := range spec.Synthetic {
		asset := &spec.Synthetic[i]
		meta := asset.Metadata()
		addr, err := e.Synthetic.Deploy(admin, synthetic.Details{
			CompanyName: asset.CompanyName,
			CompanyID:   asset.CompanyID,
			DepotID:     asset.DepotID,
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
		}, asset.CommissionAmount())
		if err != nil {
			return fmt.Errorf("synthetic %s: %w", asset.Symbol, err)
		}
		if err := p.bootstrapListed(admin, app, addr, &asset.AssetSpec, types.AssetTypeSynthetic); err != nil {
			return fmt.Errorf("synthetic %s: %w", asset.Symbol, err)
		}
	}
	return nil
}

func (p *Platform) bootstrapToken(admin, app [20]byte, spec *genesis.TokenSpec) error {
	e := p.engines
	meta := spec.Metadata()
	addr, err := e.Tokens.Create(admin, meta.Symbol, meta.Name, meta.Decimals)
	if err != nil {
		return err
	}
	if inventory := spec.InventoryAmount(); inventory.Sign() > 0 {
		if err := e.Tokens.Mint(admin, addr, e.Router.Address(), inventory); err != nil {
			return err
		}
	}
	for _, alloc := range spec.Allocations() {
		if alloc.Amount.Sign() == 0 {
			continue
		}
		if err := e.Tokens.Mint(admin, addr, alloc.Account, alloc.Amount); err != nil {
			return err
		}
	}
	if err := p.bootstrapPrice(app, addr, spec.PriceAmount(), types.AssetTypeERC20); err != nil {
		return err
	}
	if spec.Supported {
		return e.Fund.AddSupportedERC20Asset(admin, addr)
	}
	return nil
}

// bootstrapListed finishes a mirrored or synthetic deployment: the token gets
// reserve access for its payouts, a price and optionally fund support.
func (p *Platform) bootstrapListed(admin, app, addr [20]byte, spec *genesis.AssetSpec, assetType types.AssetType) error {
	e := p.engines
	if err := e.Reserve.AddAccount(admin, addr); err != nil {
		return err
	}
	if err := p.bootstrapPrice(app, addr, spec.PriceAmount(), assetType); err != nil {
		return err
	}
	if !spec.Supported {
		return nil
	}
	if assetType == types.AssetTypeMirrored {
		return e.Fund.AddSupportedMirroredAsset(admin, addr)
	}
	return e.Fund.AddSupportedSyntheticAsset(admin, addr)
}

func (p *Platform) bootstrapPrice(app, addr [20]byte, price *big.Int, assetType types.AssetType) error {
	e := p.engines
	if price.Sign() > 0 {
		if err := e.Oracle.SetPrices(app, []oracle.PriceUpdate{{Asset: addr, Price: price}}); err != nil {
			return err
		}
	}
	return e.Oracle.SetAssetType(app, addr, assetType)
}
