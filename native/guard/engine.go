package guard

import (
	"errors"
	"fmt"
	"time"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
)

var (
	errNilState       = errors.New("guard engine: state not configured")
	errNotInitialised = fmt.Errorf("%w: guard: not initialised", coreerrors.ErrInvalidState)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type guardEvent struct {
	evt *types.Event
}

func (e guardEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e guardEvent) Event() *types.Event { return e.evt }

// Engine implements the quorum-gated role registry. Requests need approvals
// from Quorum distinct signers to execute while a single signer rejection
// vetoes them.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewEngine constructs a guard engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp requests. Nil restores the
// default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(guardEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn().Unix())
}

// Init stores the guard configuration and grants the admin and signer roles.
// It may only run once.
func (e *Engine) Init(admin [20]byte, signers [][20]byte, quorum uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.config(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: guard: already initialised", coreerrors.ErrAlreadyExists)
	}
	if types.IsZeroAddress(admin) {
		return fmt.Errorf("%w: guard: admin required", coreerrors.ErrInvalidArgument)
	}
	unique := make(map[[20]byte]struct{}, len(signers))
	for _, signer := range signers {
		if types.IsZeroAddress(signer) {
			return fmt.Errorf("%w: guard: zero signer address", coreerrors.ErrInvalidArgument)
		}
		if _, dup := unique[signer]; dup {
			return fmt.Errorf("%w: guard: duplicate signer %s", coreerrors.ErrInvalidArgument, types.HexAddress(signer))
		}
		unique[signer] = struct{}{}
	}
	if quorum == 0 || quorum > uint64(len(signers)) {
		return fmt.Errorf("%w: guard: quorum %d outside 1..%d", coreerrors.ErrInvalidArgument, quorum, len(signers))
	}
	cfg := Config{Admin: admin, Signers: append([][20]byte(nil), signers...), Quorum: quorum}
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	if err := e.grant(types.AdminRole, admin, admin); err != nil {
		return err
	}
	for _, signer := range signers {
		if err := e.grant(types.SignerRole, signer, admin); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) config() (Config, bool, error) {
	var cfg Config
	if e == nil || e.state == nil {
		return cfg, false, errNilState
	}
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return cfg, false, err
	}
	return cfg, ok, nil
}

func (e *Engine) mustConfig() (Config, error) {
	cfg, ok, err := e.config()
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, errNotInitialised
	}
	return cfg, nil
}

// Quorum returns the number of distinct approvals needed to execute a request.
func (e *Engine) Quorum() (uint64, error) {
	cfg, err := e.mustConfig()
	if err != nil {
		return 0, err
	}
	return cfg.Quorum, nil
}

// Signers returns the accounts currently holding the signer role.
func (e *Engine) Signers() ([][20]byte, error) {
	return e.RoleMembers(types.SignerRole)
}

// HasPortfoliumRole reports whether account holds role.
func (e *Engine) HasPortfoliumRole(role [32]byte, account [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var held bool
	if _, err := e.state.KVGet(roleKey(role, account), &held); err != nil {
		return false, err
	}
	return held, nil
}

// RoleMembers lists the accounts holding role in grant order.
func (e *Engine) RoleMembers(role [32]byte) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var members [][20]byte
	if _, err := e.state.KVGet(roleMembersKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (e *Engine) require(role [32]byte, caller [20]byte, reason string) error {
	held, err := e.HasPortfoliumRole(role, caller)
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: guard: %s", coreerrors.ErrUnauthorized, reason)
	}
	return nil
}

func (e *Engine) grant(role [32]byte, account, sender [20]byte) error {
	held, err := e.HasPortfoliumRole(role, account)
	if err != nil {
		return err
	}
	if held {
		return nil
	}
	if err := e.state.KVPut(roleKey(role, account), true); err != nil {
		return err
	}
	members, err := e.RoleMembers(role)
	if err != nil {
		return err
	}
	members = append(members, account)
	if err := e.state.KVPut(roleMembersKey(role), members); err != nil {
		return err
	}
	e.emit(roleGrantedEvent(role, account, sender))
	return nil
}

func (e *Engine) revoke(role [32]byte, account, sender [20]byte) error {
	if err := e.state.KVDelete(roleKey(role, account)); err != nil {
		return err
	}
	members, err := e.RoleMembers(role)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, member := range members {
		if member != account {
			kept = append(kept, member)
		}
	}
	if err := e.state.KVPut(roleMembersKey(role), kept); err != nil {
		return err
	}
	e.emit(roleRevokedEvent(role, account, sender))
	return nil
}

// CreateRequest opens a request to grant role to target. Only admins may
// create requests. The returned id is sequential and never reused.
func (e *Engine) CreateRequest(caller, target [20]byte, role [32]byte) (uint64, error) {
	if _, err := e.mustConfig(); err != nil {
		return 0, err
	}
	if err := e.require(types.AdminRole, caller, "caller must be an admin"); err != nil {
		return 0, err
	}
	if types.IsZeroAddress(target) {
		return 0, fmt.Errorf("%w: guard: target required", coreerrors.ErrInvalidArgument)
	}
	var next uint64
	if _, err := e.state.KVGet(requestCountKey, &next); err != nil {
		return 0, err
	}
	req := &RoleRequest{
		ID:        next,
		Target:    target,
		Role:      role,
		Creator:   caller,
		Status:    RequestStatusPending,
		CreatedAt: e.now(),
	}
	if err := e.putRequest(req); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(requestCountKey, next+1); err != nil {
		return 0, err
	}
	e.emit(requestCreatedEvent(req))
	return req.ID, nil
}

// ApproveRequest records caller's approval. Once Quorum distinct signers have
// approved, the role is granted and the request is executed.
func (e *Engine) ApproveRequest(caller [20]byte, id uint64) (*RoleRequest, error) {
	cfg, err := e.mustConfig()
	if err != nil {
		return nil, err
	}
	if err := e.require(types.SignerRole, caller, "caller must be a signer"); err != nil {
		return nil, err
	}
	req, err := e.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: guard: request %d already %s", coreerrors.ErrAlreadyDecided, id, req.Status.StatusString())
	}
	if err := e.dropLapsedApprovals(req); err != nil {
		return nil, err
	}
	if req.HasApproved(caller) {
		return nil, fmt.Errorf("%w: guard: signer already approved request %d", coreerrors.ErrAlreadyExists, id)
	}
	req.Approvals = append(req.Approvals, caller)
	e.emit(approvalGrantedEvent(req, caller, cfg.Quorum))
	if uint64(len(req.Approvals)) >= cfg.Quorum {
		req.Status = RequestStatusExecuted
		req.DecidedAt = e.now()
		if err := e.grant(req.Role, req.Target, caller); err != nil {
			return nil, err
		}
	}
	if err := e.putRequest(req); err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// dropLapsedApprovals removes approvals of accounts that no longer hold the
// signer role, so only current signers count towards the quorum.
func (e *Engine) dropLapsedApprovals(req *RoleRequest) error {
	kept := make([][20]byte, 0, len(req.Approvals))
	for _, approver := range req.Approvals {
		signer, err := e.HasPortfoliumRole(types.SignerRole, approver)
		if err != nil {
			return err
		}
		if signer {
			kept = append(kept, approver)
		}
	}
	req.Approvals = kept
	return nil
}

// RejectRequest vetoes a pending request. The rejection is terminal.
func (e *Engine) RejectRequest(caller [20]byte, id uint64) (*RoleRequest, error) {
	if _, err := e.mustConfig(); err != nil {
		return nil, err
	}
	if err := e.require(types.SignerRole, caller, "caller must be a signer"); err != nil {
		return nil, err
	}
	req, err := e.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: guard: request %d already %s", coreerrors.ErrAlreadyDecided, id, req.Status.StatusString())
	}
	req.Status = RequestStatusRejected
	req.Rejector = caller
	req.DecidedAt = e.now()
	if err := e.putRequest(req); err != nil {
		return nil, err
	}
	e.emit(requestRejectedEvent(req))
	return req.Clone(), nil
}

// AddUser grants the user role directly. Only the portfolium contract may do
// so; no quorum is involved.
func (e *Engine) AddUser(caller, account [20]byte) error {
	if _, err := e.mustConfig(); err != nil {
		return err
	}
	if err := e.require(types.PortfoliumRole, caller, "caller must be the portfolium contract"); err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return fmt.Errorf("%w: guard: account required", coreerrors.ErrInvalidArgument)
	}
	return e.grant(types.UserRole, account, caller)
}

// GrantPortfoliumRole lets an admin grant the portfolium role without quorum.
func (e *Engine) GrantPortfoliumRole(caller, account [20]byte) error {
	if _, err := e.mustConfig(); err != nil {
		return err
	}
	if err := e.require(types.AdminRole, caller, "caller must be an admin"); err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return fmt.Errorf("%w: guard: account required", coreerrors.ErrInvalidArgument)
	}
	return e.grant(types.PortfoliumRole, account, caller)
}

// RemoveRole revokes role from account immediately. Only admins may revoke.
func (e *Engine) RemoveRole(caller, account [20]byte, role [32]byte) error {
	if _, err := e.mustConfig(); err != nil {
		return err
	}
	if err := e.require(types.AdminRole, caller, "caller must be an admin"); err != nil {
		return err
	}
	held, err := e.HasPortfoliumRole(role, account)
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: guard: %s does not hold %s", coreerrors.ErrNotFound, types.HexAddress(account), types.RoleName(role))
	}
	return e.revoke(role, account, caller)
}

// Request returns a copy of the stored request.
func (e *Engine) Request(id uint64) (*RoleRequest, error) {
	req, err := e.loadRequest(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// RequestCount returns the number of requests ever created.
func (e *Engine) RequestCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var count uint64
	if _, err := e.state.KVGet(requestCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (e *Engine) loadRequest(id uint64) (*RoleRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req := new(RoleRequest)
	ok, err := e.state.KVGet(requestKey(id), req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: guard: request %d", coreerrors.ErrNotFound, id)
	}
	return req, nil
}

func (e *Engine) putRequest(req *RoleRequest) error {
	return e.state.KVPut(requestKey(req.ID), req)
}
