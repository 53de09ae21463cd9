package vrf

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
)

var (
	coordAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keyHash   = common.HexToHash("0x787d74caea10b2b357790d5b5247c2f63d1d91572a9846f780606e4d953677ae")
)

type recordingConsumer struct {
	addr   common.Address
	calls  map[RequestID][]*uint256.Int
	caller common.Address
	fail   error
}

func newRecordingConsumer(addr common.Address) *recordingConsumer {
	return &recordingConsumer{addr: addr, calls: map[RequestID][]*uint256.Int{}}
}

func (c *recordingConsumer) Address() common.Address { return c.addr }

func (c *recordingConsumer) FulfillRandomWords(_ context.Context, caller common.Address, id RequestID, words []*uint256.Int) error {
	if c.fail != nil {
		return c.fail
	}
	c.caller = caller
	c.calls[id] = words
	return nil
}

func setup(t *testing.T, fee uint64) (*Mock, *uint256.Int, *recordingConsumer) {
	t.Helper()
	m := NewMock(MockConfig{Address: coordAddr, BaseFee: money.Wei(fee), Seed: 11})
	sub := m.CreateSubscription(ownerAddr)
	if err := m.FundSubscription(sub, money.Wei(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	c := newRecordingConsumer(common.HexToAddress("0x0000000000000000000000000000000000000c01"))
	if err := m.AddConsumer(sub, c); err != nil {
		t.Fatalf("add consumer: %v", err)
	}
	return m, sub, c
}

func request(m *Mock, sub *uint256.Int, consumer common.Address) (RequestID, error) {
	return m.RequestRandomWords(context.Background(), Request{
		KeyHash:              keyHash,
		SubID:                sub,
		RequestConfirmations: 3,
		CallbackGasLimit:     100_000,
		NumWords:             1,
		Consumer:             consumer,
	})
}

func TestRequestIDsAreUnique(t *testing.T) {
	m, sub, c := setup(t, 1)
	seen := map[RequestID]bool{}
	for i := 0; i < 50; i++ {
		id, err := request(m, sub, c.addr)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
	if len(m.Pending()) != 50 {
		t.Fatalf("pending = %d", len(m.Pending()))
	}
}

func TestRequestRejectsUnknownConsumer(t *testing.T) {
	m, sub, _ := setup(t, 1)
	_, err := request(m, sub, common.HexToAddress("0xdead"))
	if !errors.Is(err, ErrInvalidConsumer) {
		t.Fatalf("expected ErrInvalidConsumer, got %v", err)
	}
	_, err = request(m, money.Wei(12345), common.HexToAddress("0xdead"))
	if !errors.Is(err, ErrInvalidSubscription) {
		t.Fatalf("expected ErrInvalidSubscription, got %v", err)
	}
}

func TestFulfillChargesAndRemoves(t *testing.T) {
	m, sub, c := setup(t, 10)
	id, _ := request(m, sub, c.addr)
	res, err := m.FulfillRandomWords(context.Background(), id, c.addr)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(res.Words) != 1 || c.calls[id] == nil || c.caller != coordAddr {
		t.Fatalf("consumer not called correctly: %+v", c)
	}
	s, _ := m.Subscription(sub)
	if s.Balance.Uint64() != 90 || s.ReqCount != 1 {
		t.Fatalf("subscription after fulfill: %+v", s)
	}
	if _, err := m.FulfillRandomWords(context.Background(), id, c.addr); !errors.Is(err, ErrNonexistentRequest) {
		t.Fatalf("second fulfill should fail, got %v", err)
	}
}

func TestFulfillInsufficientBalance(t *testing.T) {
	m, sub, c := setup(t, 1000)
	id, _ := request(m, sub, c.addr)
	if _, err := m.FulfillRandomWords(context.Background(), id, c.addr); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(m.Pending()) != 1 {
		t.Fatalf("request should stay pending")
	}
}

func TestFailedCallbackKeepsRequest(t *testing.T) {
	m, sub, c := setup(t, 1)
	id, _ := request(m, sub, c.addr)
	sentinel := errs.NewCode(errs.Warn, "PayoutTransferFailed", "payout failed")
	c.fail = sentinel
	if _, err := m.FulfillRandomWords(context.Background(), id, c.addr); !errors.Is(err, sentinel) {
		t.Fatalf("expected consumer error, got %v", err)
	}
	c.fail = nil
	words := []*uint256.Int{uint256.NewInt(2)}
	if _, err := m.FulfillRandomWordsWithOverride(context.Background(), id, c.addr, words); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.calls[id][0].Uint64() != 2 {
		t.Fatalf("override words not delivered")
	}
}

func TestConsumerDroppedRequest(t *testing.T) {
	m, sub, c := setup(t, 10)
	id, _ := request(m, sub, c.addr)
	c.fail = errs.NewCode(errs.Warn, CodeUnknownRequest, "unknown request id")
	if _, err := m.FulfillRandomWords(context.Background(), id, c.addr); errs.CodeOf(err) != CodeUnknownRequest {
		t.Fatalf("expected UnknownRequest, got %v", err)
	}
	if len(m.Pending()) != 0 {
		t.Fatalf("dropped request still pending")
	}
	s, _ := m.Subscription(sub)
	if s.Balance.Uint64() != 100 || s.ReqCount != 0 {
		t.Fatalf("dropped request was charged: %+v", s)
	}
	if info := m.Info(); info.Dropped != 1 || info.Fulfilled != 0 {
		t.Fatalf("info = %+v", info)
	}

	// AutoFulfiller 也不會一直重試
	id2, _ := request(m, sub, c.addr)
	af := NewAutoFulfiller(m, 0, nil)
	for i := 0; i < 5; i++ {
		if n := af.Tick(context.Background()); n != 0 {
			t.Fatalf("tick %d fulfilled %d", i, n)
		}
	}
	if len(m.Pending()) != 0 {
		t.Fatalf("request %s still pending after ticks", id2)
	}
	if info := m.Info(); info.Dropped != 2 {
		t.Fatalf("dropped = %d", info.Dropped)
	}
}

func TestSeededWordsAreReproducible(t *testing.T) {
	draw := func() *uint256.Int {
		m, sub, c := setup(t, 0)
		id, _ := request(m, sub, c.addr)
		res, err := m.FulfillRandomWords(context.Background(), id, c.addr)
		if err != nil {
			t.Fatalf("fulfill: %v", err)
		}
		return res.Words[0]
	}
	if a, b := draw(), draw(); !a.Eq(b) {
		t.Fatalf("same seed produced %s and %s", a.Hex(), b.Hex())
	}
}

func TestAutoFulfillerWaitsForConfirmations(t *testing.T) {
	m, sub, c := setup(t, 1)
	id, _ := request(m, sub, c.addr)
	af := NewAutoFulfiller(m, 0, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if n := af.Tick(ctx); n != 0 {
			t.Fatalf("tick %d fulfilled too early", i)
		}
	}
	if n := af.Tick(ctx); n != 1 {
		t.Fatalf("third tick should fulfill, got %d", n)
	}
	if _, ok := c.calls[id]; !ok {
		t.Fatalf("consumer not called")
	}
}

func TestParseRequestID(t *testing.T) {
	id := RequestIDFromInt(uint256.NewInt(255))
	for _, s := range []string{"255", "0xff", id.Hex()} {
		got, err := ParseRequestID(s)
		if err != nil || got != id {
			t.Fatalf("%s: got %s err %v", s, got, err)
		}
	}
	for _, s := range []string{"", "-1", "0x", "abc"} {
		if _, err := ParseRequestID(s); err == nil {
			t.Fatalf("%q should fail", s)
		}
	}
	b, _ := id.MarshalText()
	var back RequestID
	if err := back.UnmarshalText(b); err != nil || back != id {
		t.Fatalf("text round trip failed")
	}
}
