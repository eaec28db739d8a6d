package guard

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
	"portfolium/core/types"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type fixture struct {
	engine   *Engine
	recorder *events.Recorder
	admin    [20]byte
	signer1  [20]byte
	signer2  [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := state.NewMemoryManager()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	rec := events.NewRecorder()
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	f := &fixture{
		engine:   engine,
		recorder: rec,
		admin:    newTestAddress(0xA0),
		signer1:  newTestAddress(0x51),
		signer2:  newTestAddress(0x52),
	}
	if err := engine.Init(f.admin, [][20]byte{f.signer1, f.signer2}, 2); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec.Reset()
	return f
}

func TestInitGrantsAdminAndSigners(t *testing.T) {
	f := newFixture(t)
	if ok, _ := f.engine.HasPortfoliumRole(types.AdminRole, f.admin); !ok {
		t.Fatalf("deployer should hold the admin role")
	}
	signers, err := f.engine.Signers()
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	if len(signers) != 2 || signers[0] != f.signer1 || signers[1] != f.signer2 {
		t.Fatalf("unexpected signers: %x", signers)
	}
	if err := f.engine.Init(f.admin, [][20]byte{f.signer1}, 1); !errors.Is(err, coreerrors.ErrAlreadyExists) {
		t.Fatalf("expected re-init to fail, got %v", err)
	}
}

func TestInitValidatesQuorum(t *testing.T) {
	st, _ := state.NewMemoryManager()
	engine := NewEngine()
	engine.SetState(st)
	err := engine.Init(newTestAddress(1), [][20]byte{newTestAddress(2)}, 2)
	if !errors.Is(err, coreerrors.ErrInvalidArgument) {
		t.Fatalf("expected quorum validation error, got %v", err)
	}
}

func TestQuorumApprovalGrantsRoleOnce(t *testing.T) {
	f := newFixture(t)
	target := newTestAddress(0xCC)

	id, err := f.engine.CreateRequest(f.admin, target, types.PortfoliumRole)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created := f.recorder.Filter(EventTypeRequestCreated)
	if len(created) != 1 || created[0].Attr("requestId") != "0" || id != 0 {
		t.Fatalf("expected request id 0 in first event, got %+v", created)
	}

	if _, err := f.engine.ApproveRequest(f.signer1, id); err != nil {
		t.Fatalf("approve 1: %v", err)
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.PortfoliumRole, target); ok {
		t.Fatalf("role must not be granted after 1 of 2 approvals")
	}
	if _, err := f.engine.ApproveRequest(f.signer1, id); !errors.Is(err, coreerrors.ErrAlreadyExists) {
		t.Fatalf("expected duplicate approval error, got %v", err)
	}

	req, err := f.engine.ApproveRequest(f.signer2, id)
	if err != nil {
		t.Fatalf("approve 2: %v", err)
	}
	if req.Status != RequestStatusExecuted {
		t.Fatalf("expected executed status, got %s", req.Status.StatusString())
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.PortfoliumRole, target); !ok {
		t.Fatalf("role should be granted after quorum")
	}
	if granted := f.recorder.Filter(EventTypeRoleGranted); len(granted) != 1 {
		t.Fatalf("expected exactly one grant event, got %d", len(granted))
	}
	if _, err := f.engine.ApproveRequest(f.signer1, id); !errors.Is(err, coreerrors.ErrAlreadyDecided) {
		t.Fatalf("expected already decided after execution, got %v", err)
	}
	if _, err := f.engine.RejectRequest(f.signer1, id); !errors.Is(err, coreerrors.ErrAlreadyDecided) {
		t.Fatalf("expected reject after execution to fail, got %v", err)
	}
}

func TestSingleRejectionVetoes(t *testing.T) {
	f := newFixture(t)
	target := newTestAddress(0xCD)
	id, err := f.engine.CreateRequest(f.admin, target, types.PortfoliumRole)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.ApproveRequest(f.signer1, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	req, err := f.engine.RejectRequest(f.signer2, id)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if req.Status != RequestStatusRejected || req.Rejector != f.signer2 {
		t.Fatalf("unexpected request after reject: %+v", req)
	}
	if _, err := f.engine.ApproveRequest(f.signer2, id); !errors.Is(err, coreerrors.ErrAlreadyDecided) {
		t.Fatalf("expected approval after veto to fail, got %v", err)
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.PortfoliumRole, target); ok {
		t.Fatalf("vetoed request must never grant the role")
	}
}

func TestRequestIDsAreSequential(t *testing.T) {
	f := newFixture(t)
	for want := uint64(0); want < 3; want++ {
		id, err := f.engine.CreateRequest(f.admin, newTestAddress(byte(0x10+want)), types.UserRole)
		if err != nil {
			t.Fatalf("create %d: %v", want, err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	count, err := f.engine.RequestCount()
	if err != nil || count != 3 {
		t.Fatalf("expected count 3, got %d (%v)", count, err)
	}
}

func TestNonAdminCannotCreateOrRemove(t *testing.T) {
	f := newFixture(t)
	outsider := newTestAddress(0xEE)
	if _, err := f.engine.CreateRequest(outsider, outsider, types.PortfoliumRole); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized create, got %v", err)
	}
	if _, err := f.engine.CreateRequest(f.signer1, outsider, types.PortfoliumRole); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("signers must not create requests, got %v", err)
	}
	if err := f.engine.RemoveRole(outsider, f.signer1, types.SignerRole); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized remove, got %v", err)
	}
	if _, err := f.engine.ApproveRequest(outsider, 0); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized approval, got %v", err)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.ApproveRequest(f.signer1, 99); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveRoleRevokesImmediately(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RemoveRole(f.admin, f.signer2, types.AdminRole); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected not found for unheld role, got %v", err)
	}
	if err := f.engine.RemoveRole(f.admin, f.signer2, types.SignerRole); err != nil {
		t.Fatalf("remove: %v", err)
	}
	revoked := f.recorder.Filter(EventTypeRoleRevoked)
	if len(revoked) != 1 || revoked[0].Attr("role") != "SIGNER_ROLE" {
		t.Fatalf("expected role revoked event, got %+v", revoked)
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.SignerRole, f.signer2); ok {
		t.Fatalf("role should be revoked")
	}
	if _, err := f.engine.ApproveRequest(f.signer2, 0); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("revoked signer must not approve, got %v", err)
	}
}

func TestRemovedSignerApprovalDoesNotCount(t *testing.T) {
	f := newFixture(t)
	signer3 := newTestAddress(0x53)
	addSigner, err := f.engine.CreateRequest(f.admin, signer3, types.SignerRole)
	if err != nil {
		t.Fatalf("create signer request: %v", err)
	}
	for _, signer := range [][20]byte{f.signer1, f.signer2} {
		if _, err := f.engine.ApproveRequest(signer, addSigner); err != nil {
			t.Fatalf("approve signer request: %v", err)
		}
	}

	target := newTestAddress(0xCC)
	id, err := f.engine.CreateRequest(f.admin, target, types.PortfoliumRole)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.ApproveRequest(f.signer1, id); err != nil {
		t.Fatalf("approve 1: %v", err)
	}
	if err := f.engine.RemoveRole(f.admin, f.signer1, types.SignerRole); err != nil {
		t.Fatalf("remove: %v", err)
	}

	req, err := f.engine.ApproveRequest(f.signer2, id)
	if err != nil {
		t.Fatalf("approve 2: %v", err)
	}
	if req.Status != RequestStatusPending {
		t.Fatalf("approval of a removed signer reached quorum: %s", req.Status.StatusString())
	}
	if len(req.Approvals) != 1 || req.Approvals[0] != f.signer2 {
		t.Fatalf("expected only the current signer's approval, got %x", req.Approvals)
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.PortfoliumRole, target); ok {
		t.Fatalf("role must not be granted without a quorum of current signers")
	}

	req, err = f.engine.ApproveRequest(signer3, id)
	if err != nil {
		t.Fatalf("approve 3: %v", err)
	}
	if req.Status != RequestStatusExecuted {
		t.Fatalf("expected executed status, got %s", req.Status.StatusString())
	}
}

func TestAddUserRequiresPortfoliumRole(t *testing.T) {
	f := newFixture(t)
	portfolium := newTestAddress(0x77)
	user := newTestAddress(0x78)
	if err := f.engine.AddUser(portfolium, user); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized add user, got %v", err)
	}
	if err := f.engine.GrantPortfoliumRole(f.admin, portfolium); err != nil {
		t.Fatalf("grant portfolium: %v", err)
	}
	if err := f.engine.AddUser(portfolium, user); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if ok, _ := f.engine.HasPortfoliumRole(types.UserRole, user); !ok {
		t.Fatalf("user role should be granted")
	}
}
