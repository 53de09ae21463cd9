package vault

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/keyvaluedb/boltdb"
	"github.com/zintix-labs/flipvault/keyvaluedb/memorydb"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/rng"
	"github.com/zintix-labs/flipvault/vrf"
)

var (
	principal = common.HexToAddress("0x0000000000000000000000000000000000000001")
	vaultAddr = common.HexToAddress("0x000000000000000000000000000000000000fa17")
	coordAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	player    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	stranger  = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	keyHash   = common.HexToHash("0x787d74caea10b2b357790d5b5247c2f63d1d91572a9846f780606e4d953677ae")

	evenWord = []*uint256.Int{uint256.NewInt(2)} // heads
	oddWord  = []*uint256.Int{uint256.NewInt(3)} // tails
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	t     *testing.T
	ctx   context.Context
	store keyvaluedb.KeyValueDB
	mock  *vrf.Mock
	v     *Vault
	clock *fakeClock
}

func newHarness(t *testing.T, store keyvaluedb.KeyValueDB, expire time.Duration) *harness {
	t.Helper()
	if store == nil {
		store = memorydb.New()
	}
	mock := vrf.NewMock(vrf.MockConfig{Address: coordAddr, BaseFee: money.Wei(1), Seed: 5})
	sub := mock.CreateSubscription(principal)
	if err := mock.FundSubscription(sub, money.MustEther("100")); err != nil {
		t.Fatalf("fund: %v", err)
	}
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	v, err := New(Config{
		Principal:            principal,
		Address:              vaultAddr,
		Coordinator:          mock,
		KeyHash:              keyHash,
		SubID:                sub,
		CallbackGasLimit:     100_000,
		RequestConfirmations: 1,
		ExpireAfter:          expire,
		Store:                store,
		Clock:                clock.Now,
	})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	if err := mock.AddConsumer(sub, v); err != nil {
		t.Fatalf("add consumer: %v", err)
	}
	h := &harness{t: t, ctx: context.Background(), store: store, mock: mock, v: v, clock: clock}
	h.mint(principal, "10")
	h.mint(player, "10")
	return h
}

func (h *harness) mint(addr common.Address, ether string) {
	h.t.Helper()
	if err := bank.Mint(h.store, addr, money.MustEther(ether)); err != nil {
		h.t.Fatalf("mint: %v", err)
	}
}

func (h *harness) balance(addr common.Address) *uint256.Int {
	h.t.Helper()
	b, err := h.v.Balance(addr)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return b
}

func (h *harness) treasury() *uint256.Int {
	h.t.Helper()
	b, err := h.v.Treasury()
	if err != nil {
		h.t.Fatalf("treasury: %v", err)
	}
	return b
}

func (h *harness) liability() *uint256.Int {
	h.t.Helper()
	l, err := h.v.Liability()
	if err != nil {
		h.t.Fatalf("liability: %v", err)
	}
	return l
}

func (h *harness) deposit(ether string) {
	h.t.Helper()
	if err := h.v.Deposit(h.ctx, principal, money.MustEther(ether)); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) flip(side Side, ether string) vrf.RequestID {
	h.t.Helper()
	id, err := h.v.Flip(h.ctx, player, side, money.MustEther(ether))
	if err != nil {
		h.t.Fatalf("flip: %v", err)
	}
	return id
}

func (h *harness) checkSolvent() {
	h.t.Helper()
	if h.treasury().Lt(h.liability()) {
		h.t.Fatalf("treasury %s < liability %s", h.treasury().Dec(), h.liability().Dec())
	}
}

func eth(s string) *uint256.Int { return money.MustEther(s) }

func TestDepositAndWithdraw(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("0.1")
	if !h.treasury().Eq(eth("0.1")) {
		t.Fatalf("treasury after deposit = %s", h.treasury().Dec())
	}
	if err := h.v.Withdraw(h.ctx, principal, eth("0.1")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !h.treasury().IsZero() {
		t.Fatalf("treasury after withdraw = %s", h.treasury().Dec())
	}
	if !h.balance(principal).Eq(eth("10")) {
		t.Fatalf("principal balance = %s", h.balance(principal).Dec())
	}
}

func TestTreasuryOpsRequirePrincipal(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	if err := h.v.Deposit(h.ctx, player, eth("0.1")); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("deposit by player: expected AccessDenied, got %v", err)
	}
	if err := h.v.Withdraw(h.ctx, player, eth("0.1")); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("withdraw by player: expected AccessDenied, got %v", err)
	}
	if !h.treasury().Eq(eth("1")) || !h.balance(player).Eq(eth("10")) {
		t.Fatalf("state changed by rejected calls")
	}
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t, nil, 0)
	if err := h.v.Deposit(h.ctx, principal, money.Zero()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero deposit: expected InvalidArgument, got %v", err)
	}
	if err := h.v.Deposit(h.ctx, principal, eth("11")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw deposit: expected InsufficientFunds, got %v", err)
	}
}

func TestFlipWinPaysDouble(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("0.002")
	id := h.flip(Heads, "0.0001")
	if !h.liability().Eq(eth("0.0002")) {
		t.Fatalf("liability = %s", h.liability().Dec())
	}
	playerBefore, treasuryBefore := h.balance(player), h.treasury()

	out, err := h.v.Fulfill(h.ctx, coordAddr, id, evenWord)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if out.Result != Heads || !out.Won {
		t.Fatalf("unexpected outcome %+v", out)
	}
	gain := new(uint256.Int).Sub(h.balance(player), playerBefore)
	loss := new(uint256.Int).Sub(treasuryBefore, h.treasury())
	if !gain.Eq(eth("0.0002")) || !loss.Eq(eth("0.0002")) {
		t.Fatalf("gain=%s loss=%s", gain.Dec(), loss.Dec())
	}
	if !h.liability().IsZero() {
		t.Fatalf("liability not released: %s", h.liability().Dec())
	}
	if _, err := h.v.Wager(id); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("wager should be gone, got %v", err)
	}
}

func TestFlipLossKeepsStake(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("0.002")
	id := h.flip(Heads, "0.0001")
	if !h.balance(player).Eq(eth("9.9999")) || !h.treasury().Eq(eth("0.0021")) {
		t.Fatalf("stake not collected")
	}
	out, err := h.v.Fulfill(h.ctx, coordAddr, id, oddWord)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if out.Won || out.Result != Tails || !out.Payout.IsZero() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !h.balance(player).Eq(eth("9.9999")) || !h.treasury().Eq(eth("0.0021")) {
		t.Fatalf("balances moved on a loss")
	}
	h.checkSolvent()
}

func TestFlipInsufficientReserve(t *testing.T) {
	h := newHarness(t, nil, 0)
	_, err := h.v.Flip(h.ctx, player, Heads, eth("0.1"))
	if !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected InsufficientReserve, got %v", err)
	}
	if ErrInsufficientReserve.Message != "Contract balance too low to cover potential winnings" {
		t.Fatalf("unexpected message %q", ErrInsufficientReserve.Message)
	}
	if !h.balance(player).Eq(eth("10")) || !h.treasury().IsZero() || len(h.mock.Pending()) != 0 {
		t.Fatalf("rejected flip changed state")
	}
	// 邊界：available == 2 × stake 可以接受
	h.deposit("0.2")
	h.flip(Tails, "0.1")
	h.checkSolvent()
}

func TestFlipValidation(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	if _, err := h.v.Flip(h.ctx, player, Heads, money.Zero()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero stake: %v", err)
	}
	if _, err := h.v.Flip(h.ctx, player, Side(9), eth("0.1")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad side: %v", err)
	}
	if _, err := h.v.Flip(h.ctx, stranger, Heads, eth("0.1")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("unfunded player: %v", err)
	}
	if !h.liability().IsZero() {
		t.Fatalf("liability changed by rejected flips")
	}
}

func TestFulfillUnknownAndReplay(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	bogus := vrf.RequestIDFromInt(uint256.NewInt(42))
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, bogus, evenWord); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("unknown id: expected UnknownRequest, got %v", err)
	}
	id := h.flip(Heads, "0.1")
	if err := h.v.FulfillRandomWords(h.ctx, stranger, id, evenWord); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("non-coordinator: expected AccessDenied, got %v", err)
	}
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, evenWord); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	treasury, playerBal := h.treasury(), h.balance(player)
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, evenWord); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("replay: expected UnknownRequest, got %v", err)
	}
	if !h.treasury().Eq(treasury) || !h.balance(player).Eq(playerBal) {
		t.Fatalf("replay paid twice")
	}
}

func TestLiabilityIsCumulative(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	h.flip(Heads, "0.25")
	h.flip(Tails, "0.25")
	// treasury 1.5, liability 1.0, available 0.5
	if !h.liability().Eq(eth("1")) {
		t.Fatalf("liability = %s", h.liability().Dec())
	}
	_, err := h.v.Flip(h.ctx, player, Heads, eth("0.3"))
	if !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected cumulative check to reject, got %v", err)
	}
	h.flip(Heads, "0.25")
	h.checkSolvent()
	ws, err := h.v.Pending()
	if err != nil || len(ws) != 3 {
		t.Fatalf("pending = %d err %v", len(ws), err)
	}
}

func TestWithdrawRespectsLiability(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	h.flip(Heads, "0.25")
	// treasury 1.25, liability 0.5
	if err := h.v.Withdraw(h.ctx, principal, eth("0.76")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if err := h.v.Withdraw(h.ctx, principal, eth("0.75")); err != nil {
		t.Fatalf("withdraw available: %v", err)
	}
	h.checkSolvent()
	if a, _ := h.v.Available(); !a.IsZero() {
		t.Fatalf("available = %s", a.Dec())
	}
}

func TestPayoutFailureKeepsWagerForRetry(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	id := h.flip(Heads, "0.1")
	if err := bank.SetReject(h.store, player, true); err != nil {
		t.Fatalf("set reject: %v", err)
	}
	treasury, liab := h.treasury(), h.liability()

	err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, evenWord)
	if !errors.Is(err, ErrPayoutTransferFailed) {
		t.Fatalf("expected PayoutTransferFailed, got %v", err)
	}
	if _, err := h.v.Wager(id); err != nil {
		t.Fatalf("wager must survive failed payout: %v", err)
	}
	if !h.treasury().Eq(treasury) || !h.liability().Eq(liab) {
		t.Fatalf("failed payout changed treasury or liability")
	}

	_ = bank.SetReject(h.store, player, false)
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, evenWord); err != nil {
		t.Fatalf("retry: %v", err)
	}
	m, _ := h.v.Metrics()
	if m.PayoutFailures != 1 || m.Wins != 1 {
		t.Fatalf("metrics %+v", m)
	}
}

func TestMockDrivenSettlement(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	id := h.flip(Tails, "0.01")
	res, err := h.mock.FulfillRandomWords(h.ctx, id, vaultAddr)
	if err != nil {
		t.Fatalf("mock fulfill: %v", err)
	}
	evs, _ := h.v.Events(1, 10)
	last := evs[len(evs)-1]
	if last.Kind != EventCoinFlipped || last.Result != Result(res.Words[0]) {
		t.Fatalf("unexpected last event %+v", last)
	}
	if last.Won != (last.Result == Tails) {
		t.Fatalf("won flag inconsistent: %+v", last)
	}
	if len(h.mock.Pending()) != 0 {
		t.Fatalf("mock request not cleared")
	}
}

func TestExpireRefundsStake(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	h.deposit("1")
	id := h.flip(Heads, "0.1")

	if _, err := h.v.Expire(h.ctx, player, id); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("early expire: expected NotExpired, got %v", err)
	}
	h.clock.Advance(time.Hour)
	if _, err := h.v.Expire(h.ctx, stranger, id); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("stranger expire: expected AccessDenied, got %v", err)
	}
	w, err := h.v.Expire(h.ctx, player, id)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !w.Stake.Eq(eth("0.1")) || !h.balance(player).Eq(eth("10")) {
		t.Fatalf("stake not refunded")
	}
	if !h.liability().IsZero() || !h.treasury().Eq(eth("1")) {
		t.Fatalf("treasury=%s liability=%s", h.treasury().Dec(), h.liability().Dec())
	}
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, evenWord); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("late fulfill: expected UnknownRequest, got %v", err)
	}
}

func TestExpiredWagerLeavesNoOracleRequest(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	h.deposit("1")
	id := h.flip(Heads, "0.1")
	h.clock.Advance(time.Hour)
	if _, err := h.v.Expire(h.ctx, player, id); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(h.mock.Pending()) != 1 {
		t.Fatalf("mock should still hold the request before the next tick")
	}

	af := vrf.NewAutoFulfiller(h.mock, 0, nil)
	for i := 0; i < 3; i++ {
		if n := af.Tick(h.ctx); n != 0 {
			t.Fatalf("tick %d fulfilled %d", i, n)
		}
	}
	if len(h.mock.Pending()) != 0 {
		t.Fatalf("refunded wager left %d oracle requests", len(h.mock.Pending()))
	}
	if info := h.mock.Info(); info.Dropped != 1 || info.Fulfilled != 0 {
		t.Fatalf("oracle info = %+v", info)
	}
	if !h.balance(player).Eq(eth("10")) || !h.treasury().Eq(eth("1")) {
		t.Fatalf("late callback moved funds")
	}
}

func TestDepositIntoRejectingVault(t *testing.T) {
	h := newHarness(t, nil, 0)
	if err := h.v.SetRejectPayments(h.ctx, vaultAddr, true); err != nil {
		t.Fatalf("set reject: %v", err)
	}
	err := h.v.Deposit(h.ctx, principal, eth("1"))
	if !errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrPayoutTransferFailed) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if !h.treasury().IsZero() || !h.balance(principal).Eq(eth("10")) {
		t.Fatalf("rejected deposit moved funds")
	}
}

// scanFailStore 讓 Find 失敗，其他操作照常。
type scanFailStore struct{ keyvaluedb.KeyValueDB }

func (scanFailStore) Find([]byte) keyvaluedb.Iterator {
	return keyvaluedb.NewErrIterator(errs.NewFatal("disk read failed"))
}

func TestPendingReportsScanError(t *testing.T) {
	h := newHarness(t, nil, time.Minute)
	h.deposit("1")
	h.flip(Heads, "0.1")
	h.v.store = scanFailStore{h.store}

	if ws, err := h.v.Pending(); err == nil {
		t.Fatalf("scan failure reported as %d pending wagers", len(ws))
	}
	h.clock.Advance(2 * time.Minute)
	if _, err := h.v.ExpireOverdue(h.ctx); err == nil {
		t.Fatalf("sweep hid the scan failure")
	}
	if _, err := h.v.Snapshot(); err == nil {
		t.Fatalf("snapshot hid the scan failure")
	}
}

func TestExpireDisabled(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.deposit("1")
	id := h.flip(Heads, "0.1")
	h.clock.Advance(1000 * time.Hour)
	if _, err := h.v.Expire(h.ctx, principal, id); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected NotExpired when disabled, got %v", err)
	}
	if ws, err := h.v.ExpireOverdue(h.ctx); err != nil || len(ws) != 0 {
		t.Fatalf("sweep with expiry disabled: %d %v", len(ws), err)
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	h := newHarness(t, nil, time.Minute)
	h.deposit("1")
	h.flip(Heads, "0.1")
	h.clock.Advance(2 * time.Minute)
	fresh := h.flip(Tails, "0.1")

	ws, err := h.v.ExpireOverdue(h.ctx)
	if err != nil || len(ws) != 1 {
		t.Fatalf("sweep refunded %d err %v", len(ws), err)
	}
	pending, _ := h.v.Pending()
	if len(pending) != 1 || pending[0].RequestID != fresh {
		t.Fatalf("unexpected pending after sweep: %+v", pending)
	}
	m, _ := h.v.Metrics()
	if m.Refunds != 1 || m.Flips != 2 {
		t.Fatalf("metrics %+v", m)
	}
}

func TestEventsAndSubscribe(t *testing.T) {
	h := newHarness(t, nil, 0)
	ch, cancel := h.v.Subscribe(8)
	defer cancel()

	h.deposit("1")
	id := h.flip(Heads, "0.1")
	if err := h.v.FulfillRandomWords(h.ctx, coordAddr, id, oddWord); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := h.v.Withdraw(h.ctx, principal, eth("0.5")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	want := []EventKind{EventDeposited, EventRandomnessRequested, EventCoinFlipped, EventWithdrawn}
	evs, err := h.v.Events(0, 0)
	if err != nil || len(evs) != len(want) {
		t.Fatalf("events %d err %v", len(evs), err)
	}
	for i, e := range evs {
		if e.Kind != want[i] || e.Seq != uint64(i+1) {
			t.Fatalf("event %d = %s seq %d", i, e.Kind, e.Seq)
		}
		got := <-ch
		if got.Seq != e.Seq || got.Kind != e.Kind {
			t.Fatalf("subscriber got %s seq %d, want %s seq %d", got.Kind, got.Seq, e.Kind, e.Seq)
		}
	}
	if evs[1].RequestID != id || evs[1].Side != Heads || !evs[1].Amount.Eq(eth("0.1")) {
		t.Fatalf("RandomnessRequested payload %+v", evs[1])
	}
	if page, _ := h.v.Events(3, 1); len(page) != 1 || page[0].Kind != EventCoinFlipped {
		t.Fatalf("paging failed: %+v", page)
	}
	if seq, _ := h.v.LastEventSeq(); seq != 4 {
		t.Fatalf("last seq = %d", seq)
	}
}

func TestSubscriberDropsWhenFull(t *testing.T) {
	h := newHarness(t, nil, 0)
	_, cancel := h.v.Subscribe(1)
	defer cancel()
	h.deposit("1")
	h.deposit("1")
	m, _ := h.v.Metrics()
	if m.EventsDropped != 1 {
		t.Fatalf("events dropped = %d", m.EventsDropped)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := boltdb.New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := newHarness(t, db, 0)
	h.deposit("1")
	id := h.flip(Heads, "0.1")
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = boltdb.New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	mock := vrf.NewMock(vrf.MockConfig{Address: coordAddr})
	sub := mock.CreateSubscription(principal)
	v, err := New(Config{Principal: principal, Address: vaultAddr, Coordinator: mock, SubID: sub, Store: db})
	if err != nil {
		t.Fatalf("new vault on reopened store: %v", err)
	}
	w, err := v.Wager(id)
	if err != nil || w.Side != Heads || !w.Stake.Eq(eth("0.1")) {
		t.Fatalf("wager after reopen: %+v %v", w, err)
	}
	if l, _ := v.Liability(); !l.Eq(eth("0.2")) {
		t.Fatalf("liability after reopen = %s", l.Dec())
	}
	if tr, _ := v.Treasury(); !tr.Eq(eth("1.1")) {
		t.Fatalf("treasury after reopen = %s", tr.Dec())
	}
	if err := v.FulfillRandomWords(context.Background(), coordAddr, id, oddWord); err != nil {
		t.Fatalf("fulfill after reopen: %v", err)
	}
}

func TestStoreBelongsToOneVault(t *testing.T) {
	store := memorydb.New()
	newHarness(t, store, 0)
	mock := vrf.NewMock(vrf.MockConfig{Address: coordAddr})
	_, err := New(Config{Principal: stranger, Address: vaultAddr, Coordinator: mock, SubID: money.Wei(1), Store: store})
	if !errors.Is(err, ErrStoreMismatch) {
		t.Fatalf("expected ErrStoreMismatch, got %v", err)
	}
}

// 隨機操作序列下，Treasury >= Liability 與對帳式恆成立。
func TestRandomOperationsKeepInvariants(t *testing.T) {
	h := newHarness(t, nil, time.Minute)
	h.mint(principal, "1000")
	h.mint(player, "1000")
	r := rng.NewWithSeed(99)

	deposits, withdrawals := money.Zero(), money.Zero()
	stakes, payouts, refunds := money.Zero(), money.Zero(), money.Zero()
	var pending []vrf.RequestID
	for i := 0; i < 400; i++ {
		switch r.IntN(5) {
		case 0:
			amt := money.Wei(uint64(1+r.IntN(1000)) * 1e15)
			if err := h.v.Deposit(h.ctx, principal, amt); err == nil {
				deposits.Add(deposits, amt)
			}
		case 1:
			amt := money.Wei(uint64(1+r.IntN(500)) * 1e15)
			if err := h.v.Withdraw(h.ctx, principal, amt); err == nil {
				withdrawals.Add(withdrawals, amt)
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("withdraw: %v", err)
			}
		case 2, 3:
			stake := money.Wei(uint64(1+r.IntN(200)) * 1e15)
			id, err := h.v.Flip(h.ctx, player, Side(1+r.IntN(2)), stake)
			if err == nil {
				stakes.Add(stakes, stake)
				pending = append(pending, id)
			} else if !errors.Is(err, ErrInsufficientReserve) {
				t.Fatalf("flip: %v", err)
			}
		case 4:
			if len(pending) == 0 {
				continue
			}
			k := r.IntN(len(pending))
			id := pending[k]
			pending = append(pending[:k], pending[k+1:]...)
			if r.IntN(10) == 0 {
				h.clock.Advance(time.Minute)
				w, err := h.v.Expire(h.ctx, player, id)
				if err != nil {
					t.Fatalf("expire: %v", err)
				}
				refunds.Add(refunds, w.Stake)
				continue
			}
			out, err := h.v.Fulfill(h.ctx, coordAddr, id, []*uint256.Int{r.Word()})
			if err != nil {
				t.Fatalf("fulfill: %v", err)
			}
			payouts.Add(payouts, out.Payout)
		}

		h.checkSolvent()
		want := new(uint256.Int).Add(deposits, stakes)
		want.Sub(want, withdrawals)
		want.Sub(want, payouts)
		want.Sub(want, refunds)
		if !h.treasury().Eq(want) {
			t.Fatalf("step %d: treasury %s does not reconcile with %s", i, h.treasury().Dec(), want.Dec())
		}
		ws, _ := h.v.Pending()
		sum := money.Zero()
		for _, w := range ws {
			sum.Add(sum, w.Reserve)
		}
		if !sum.Eq(h.liability()) || len(ws) != len(pending) {
			t.Fatalf("step %d: liability %s != reserves %s", i, h.liability().Dec(), sum.Dec())
		}
	}
}
