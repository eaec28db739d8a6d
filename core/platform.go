package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/genesis"
	"portfolium/core/state"
	"portfolium/core/types"
	nativecommon "portfolium/native/common"
	"portfolium/native/fund"
	"portfolium/native/guard"
	"portfolium/native/mirrored"
	"portfolium/native/oracle"
	"portfolium/native/reserve"
	"portfolium/native/synthetic"
	"portfolium/native/token"
	"portfolium/native/treasury"
	"portfolium/observability"
	"portfolium/storage"
	"portfolium/storage/trie"
)

// Module names used for pause flags, metrics and engine address derivation.
const (
	ModuleGuard     = "guard"
	ModuleReserve   = "reserve"
	ModuleOracle    = "oracle"
	ModuleToken     = "token"
	ModuleMirrored  = "mirrored"
	ModuleSynthetic = "synthetic"
	ModuleTreasury  = "treasury"
	ModuleRouter    = "router"
	ModuleFund      = "fund"
)

var (
	rootMetaKey      = []byte("platform/root")
	heightMetaKey    = []byte("platform/height")
	routerFeeMetaKey = []byte("platform/router_fee")

	errNilDatabase = errors.New("platform: database must not be nil")
	errNoGenesis   = errors.New("platform: empty database and no genesis spec")
)

// ModuleAddress returns the fixed account of an engine that holds funds.
func ModuleAddress(module string) [20]byte {
	return types.DeriveAddress("portfolium/" + module)
}

// Engines groups every native engine of the platform. Engines are only safe to
// use inside Apply or View.
type Engines struct {
	Guard     *guard.Engine
	Reserve   *reserve.Engine
	Oracle    *oracle.Engine
	Tokens    *token.Engine
	Mirrored  *mirrored.Engine
	Synthetic *synthetic.Engine
	Treasury  *treasury.Engine
	Router    *treasury.InventoryRouter
	Fund      *fund.Engine
	Bank      *state.Manager
}

// Option customises a Platform.
type Option func(*Platform)

// WithLogger sets the logger used for call tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Platform) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the clock every engine stamps records with.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) {
		if now != nil {
			p.nowFn = now
		}
	}
}

// Platform executes engine calls against one state manager. Every call runs
// under a mutex inside a state snapshot: a failing call is reverted and its
// events dropped, a successful call publishes its events to subscribers.
type Platform struct {
	mu       sync.Mutex
	db       storage.Database
	state    *state.Manager
	engines  *Engines
	recorder *events.Recorder
	bus      *events.Bus
	logger   *slog.Logger
	metrics  *observability.PlatformMetrics
	nowFn    func() time.Time

	pauseMu sync.RWMutex
	paused  map[string]bool
}

// NewPlatform opens the ledger stored in db. An empty database is bootstrapped
// from spec and committed; otherwise the last committed root is restored and
// spec is ignored. The router fee is fixed at genesis.
func NewPlatform(db storage.Database, spec *genesis.GenesisSpec, opts ...Option) (*Platform, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	p := &Platform{
		db:       db,
		recorder: events.NewRecorder(),
		bus:      events.NewBus(),
		logger:   slog.Default(),
		metrics:  observability.Platform(),
		nowFn:    func() time.Time { return time.Now().UTC() },
		paused:   make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	root, height, feeBps, found, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	if !found {
		if spec == nil {
			return nil, errNoGenesis
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		feeBps = spec.Router.FeeBps
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("platform: open state trie: %w", err)
	}
	stateTrie.SetHeight(height)
	p.state = state.NewManager(stateTrie)

	p.engines = p.wire(feeBps)

	if found {
		p.logger.Info("platform restored",
			slog.String("root", common.BytesToHash(root).Hex()),
			slog.Uint64("height", height))
		return p, nil
	}
	if err := p.bootstrap(spec); err != nil {
		return nil, fmt.Errorf("platform: genesis: %w", err)
	}
	// Genesis events are not streamed.
	p.recorder.Reset()
	if err := db.Put(routerFeeMetaKey, encodeUint64(feeBps)); err != nil {
		return nil, fmt.Errorf("platform: write router fee: %w", err)
	}
	if _, err := p.Commit(); err != nil {
		return nil, err
	}
	p.logger.Info("platform bootstrapped from genesis",
		slog.String("root", p.state.Root().Hex()),
		slog.Time("genesis_time", spec.GenesisTimestamp()))
	return p, nil
}

func loadHead(db storage.Database) (root []byte, height, feeBps uint64, found bool, err error) {
	root, err = db.Get(rootMetaKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, 0, false, nil
	}
	if err != nil {
		return nil, 0, 0, false, fmt.Errorf("platform: read root: %w", err)
	}
	if height, err = readUint64(db, heightMetaKey); err != nil {
		return nil, 0, 0, false, err
	}
	if feeBps, err = readUint64(db, routerFeeMetaKey); err != nil {
		return nil, 0, 0, false, err
	}
	return root, height, feeBps, true, nil
}

func readUint64(db storage.Database, key []byte) (uint64, error) {
	raw, err := db.Get(key)
	if err != nil {
		return 0, fmt.Errorf("platform: read %s: %w", key, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("platform: corrupt %s record", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeUint64(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}

func (p *Platform) now() time.Time { return p.nowFn() }

func (p *Platform) wire(feeBps uint64) *Engines {
	st := p.state
	rec := p.recorder

	g := guard.NewEngine()
	g.SetState(st)
	g.SetEmitter(rec)
	g.SetNowFunc(p.now)

	res := reserve.NewEngine()
	res.SetState(st)
	res.SetAddress(ModuleAddress(ModuleReserve))
	res.SetEmitter(rec)

	orc := oracle.NewEngine()
	orc.SetState(st)
	orc.SetEmitter(rec)
	orc.SetNowFunc(p.now)

	tok := token.NewEngine()
	tok.SetState(st)
	tok.SetEmitter(rec)

	mir := mirrored.NewEngine()
	mir.SetState(st)
	mir.SetPricer(orc)
	mir.SetReserve(res)
	mir.SetEmitter(rec)

	syn := synthetic.NewEngine()
	syn.SetState(st)
	syn.SetPricer(orc)
	syn.SetReserve(res)
	syn.SetEmitter(rec)
	syn.SetNowFunc(p.now)

	orc.SetCommissionSource(oracle.CommissionSourceFunc(func(asset [20]byte) (*big.Int, error) {
		ok, err := mir.IsToken(asset)
		if err != nil {
			return nil, err
		}
		if ok {
			return mir.Commission(asset)
		}
		if ok, err = syn.IsToken(asset); err != nil {
			return nil, err
		}
		if ok {
			return syn.Commission(asset)
		}
		return new(big.Int), nil
	}))

	router := treasury.NewInventoryRouter(ModuleAddress(ModuleRouter), feeBps)
	router.SetBank(st)
	router.SetTokens(tok)
	router.SetPrices(orc)
	router.SetEmitter(rec)

	tre := treasury.NewEngine()
	tre.SetState(st)
	tre.SetAddress(ModuleAddress(ModuleTreasury))
	tre.SetTokens(tok)
	tre.SetMirrored(mir)
	tre.SetSynthetic(syn)
	tre.SetRouter(router)
	tre.SetEmitter(rec)
	syn.SetSettlementHook(tre)

	fnd := fund.NewEngine()
	fnd.SetState(st)
	fnd.SetAddress(ModuleAddress(ModuleFund))
	fnd.SetGuard(g)
	fnd.SetTreasury(tre)
	fnd.SetPricer(orc)
	fnd.SetReserve(res)
	fnd.SetEmitter(rec)
	fnd.SetNowFunc(p.now)

	return &Engines{
		Guard:     g,
		Reserve:   res,
		Oracle:    orc,
		Tokens:    tok,
		Mirrored:  mir,
		Synthetic: syn,
		Treasury:  tre,
		Router:    router,
		Fund:      fnd,
		Bank:      st,
	}
}

// IsPaused implements common.PauseView.
func (p *Platform) IsPaused(module string) bool {
	p.pauseMu.RLock()
	defer p.pauseMu.RUnlock()
	return p.paused[module]
}

// SetPaused toggles whether calls into module are rejected.
func (p *Platform) SetPaused(module string, paused bool) {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}

// Apply runs fn as one all-or-nothing call attributed to module. When fn fails
// every state change is reverted and no event is published. The events of a
// successful call are returned and fanned out to subscribers.
func (p *Platform) Apply(module string, fn func(*Engines) error) ([]*types.Event, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: platform: nil call", coreerrors.ErrInvalidArgument)
	}
	start := time.Now()
	if err := nativecommon.Guard(p, module); err != nil {
		p.observe(module, err, time.Since(start))
		return nil, err
	}

	p.mu.Lock()
	snapshot := p.state.Snapshot()
	p.recorder.Reset()
	err := fn(p.engines)
	if err != nil {
		if revertErr := p.state.RevertToSnapshot(snapshot); revertErr != nil {
			err = errors.Join(err, revertErr)
		}
		p.recorder.Reset()
		p.mu.Unlock()
		p.observe(module, err, time.Since(start))
		return nil, err
	}
	p.state.DiscardSnapshot(snapshot)
	emitted := p.recorder.Drain()
	p.mu.Unlock()

	dropped := p.bus.Dropped()
	p.bus.Publish(emitted...)
	observability.Events().RecordDropped(p.bus.Dropped() - dropped)
	for _, evt := range emitted {
		observability.Events().RecordEmitted(evt.Type)
	}
	p.observe(module, nil, time.Since(start))
	return emitted, nil
}

func (p *Platform) observe(module string, err error, d time.Duration) {
	code, _ := coreerrors.Code(err)
	p.metrics.ObserveCall(module, code, d)
	if err != nil {
		p.logger.Debug("platform call reverted",
			slog.String("module", module),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}
}

// View runs fn against the current state and discards anything it changes.
func (p *Platform) View(fn func(*Engines) error) error {
	if fn == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := p.state.Snapshot()
	err := fn(p.engines)
	if revertErr := p.state.RevertToSnapshot(snapshot); revertErr != nil {
		err = errors.Join(err, revertErr)
	}
	p.recorder.Reset()
	return err
}

// Commit persists the current state and records the new head so a restarted
// platform resumes from it.
func (p *Platform) Commit() (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	root, err := p.state.Commit()
	if err != nil {
		return common.Hash{}, fmt.Errorf("platform: commit: %w", err)
	}
	height := p.state.Height()
	if err := p.db.Put(rootMetaKey, root.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("platform: write root: %w", err)
	}
	if err := p.db.Put(heightMetaKey, encodeUint64(height)); err != nil {
		return common.Hash{}, fmt.Errorf("platform: write height: %w", err)
	}
	p.metrics.RecordCommit(height)
	return root, nil
}

// Root returns the hash of the current state.
func (p *Platform) Root() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Root()
}

// Height returns the number of commits applied to the state.
func (p *Platform) Height() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Height()
}

// Subscribe streams the events of successful calls. The cancel function must
// be called once the subscriber is done.
func (p *Platform) Subscribe(buffer int) (<-chan *types.Event, func()) {
	return p.bus.Subscribe(buffer)
}

// DroppedEvents reports deliveries lost to slow subscribers.
func (p *Platform) DroppedEvents() uint64 { return p.bus.Dropped() }

// Addresses returns the fixed accounts of the fund-holding engines.
func (p *Platform) Addresses() map[string][20]byte {
	return map[string][20]byte{
		ModuleReserve:  p.engines.Reserve.Address(),
		ModuleTreasury: p.engines.Treasury.Address(),
		ModuleRouter:   p.engines.Router.Address(),
		ModuleFund:     p.engines.Fund.Address(),
	}
}
