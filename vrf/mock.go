// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vrf

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/rng"
)

// MockConfig 設定本地 coordinator。
type MockConfig struct {
	// Address 是 coordinator 的身分；Consumer 以它檢查回呼來源。
	Address common.Address
	// BaseFee 是每次成功回填向 subscription 收取的固定費用（wei）。
	BaseFee *uint256.Int
	// Seed 決定亂數序列；0 代表使用加密隨機 seed。
	Seed int64
	Log  *slog.Logger
}

// Subscription 是預付費帳戶的快照。
type Subscription struct {
	ID        *uint256.Int     `json:"id"`
	Owner     common.Address   `json:"owner"`
	Balance   *uint256.Int     `json:"balance"`
	ReqCount  uint64           `json:"req_count"`
	Consumers []common.Address `json:"consumers"`
}

// PendingRequest 是尚未回填的請求。
type PendingRequest struct {
	ID            RequestID      `json:"request_id"`
	SubID         *uint256.Int   `json:"sub_id"`
	Consumer      common.Address `json:"consumer"`
	NumWords      uint32         `json:"num_words"`
	Block         uint64         `json:"block"` // 發出請求時的區塊高度
	Confirmations uint16         `json:"confirmations"`
	seq           uint64
}

// FulfillResult 描述一次成功回填。
type FulfillResult struct {
	ID      RequestID      `json:"request_id"`
	Words   []*uint256.Int `json:"words"`
	Payment *uint256.Int   `json:"payment"`
}

// MockInfo 是 /dev/oracle 使用的狀態快照。
type MockInfo struct {
	Address       common.Address   `json:"address"`
	Block         uint64           `json:"block"`
	BaseFee       *uint256.Int     `json:"base_fee"`
	Fulfilled     uint64           `json:"fulfilled"`
	Dropped       uint64           `json:"dropped"`
	Pending       []PendingRequest `json:"pending"`
	Subscriptions []Subscription   `json:"subscriptions"`
}

type subscription struct {
	id        *uint256.Int
	owner     common.Address
	balance   *uint256.Int
	reqCount  uint64
	consumers map[common.Address]uint64 // consumer -> nonce
}

// Mock 是本地 VRF coordinator：行為對齊 VRFCoordinatorV2_5Mock，
// 但回填的亂數來自可重現的 PCG64。
//
// 鎖順序：fulfillMu -> mu。回呼 Consumer 時只持有 fulfillMu，
// 因此 Consumer 在 RequestRandomWords 內持有自己的鎖不會造成死結。
type Mock struct {
	addr    common.Address
	baseFee *uint256.Int
	log     *slog.Logger

	fulfillMu sync.Mutex

	mu        sync.Mutex
	rng       *rng.PCG64
	block     uint64
	subNonce  uint64
	reqSeq    uint64
	fulfilled uint64
	dropped   uint64 // consumer 回 CodeUnknownRequest 而移除的請求數
	subs      map[[32]byte]*subscription
	consumers map[common.Address]Consumer
	requests  map[RequestID]*PendingRequest
}

var _ Coordinator = (*Mock)(nil)

func NewMock(cfg MockConfig) *Mock {
	r := rng.New()
	if cfg.Seed != 0 {
		r = rng.NewWithSeed(cfg.Seed)
	}
	fee := money.Zero()
	if cfg.BaseFee != nil {
		fee = cfg.BaseFee.Clone()
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Mock{
		addr:      cfg.Address,
		baseFee:   fee,
		log:       log.With("component", "vrf_mock"),
		rng:       r,
		subs:      make(map[[32]byte]*subscription),
		consumers: make(map[common.Address]Consumer),
		requests:  make(map[RequestID]*PendingRequest),
	}
}

func (m *Mock) Address() common.Address { return m.addr }

// CreateSubscription 建立新的 subscription 並回傳其 id。
func (m *Mock) CreateSubscription(owner common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subNonce++
	h := crypto.Keccak256Hash(owner.Bytes(), m.addr.Bytes(), word(m.block), word(m.subNonce))
	id := new(uint256.Int).SetBytes32(h[:])
	m.subs[id.Bytes32()] = &subscription{
		id:        id,
		owner:     owner,
		balance:   money.Zero(),
		consumers: make(map[common.Address]uint64),
	}
	m.log.Info("subscription created", "sub_id", id.Dec(), "owner", owner.Hex())
	return id.Clone()
}

// FundSubscription 增加 subscription 餘額。
func (m *Mock) FundSubscription(subID *uint256.Int, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sub(subID)
	if err != nil {
		return err
	}
	nb, ok := money.Add(s.balance, amount)
	if !ok {
		return ErrInsufficientBalance.With("fund overflows subscription balance")
	}
	s.balance = nb
	return nil
}

// AddConsumer 授權 c 使用 subscription，並登記回呼目標。
func (m *Mock) AddConsumer(subID *uint256.Int, c Consumer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sub(subID)
	if err != nil {
		return err
	}
	addr := c.Address()
	if _, ok := s.consumers[addr]; !ok {
		s.consumers[addr] = 0
	}
	m.consumers[addr] = c
	return nil
}

// RemoveConsumer 撤銷授權；已發出的請求仍可被回填。
func (m *Mock) RemoveConsumer(subID *uint256.Int, addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sub(subID)
	if err != nil {
		return err
	}
	if _, ok := s.consumers[addr]; !ok {
		return ErrInvalidConsumer.With(addr.Hex())
	}
	delete(s.consumers, addr)
	return nil
}

// Subscription 回傳 subscription 快照。
func (m *Mock) Subscription(subID *uint256.Int) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sub(subID)
	if err != nil {
		return Subscription{}, err
	}
	return s.snapshot(), nil
}

// RequestRandomWords 登記一筆請求。RequestID 由 keyHash、consumer、subId、nonce 決定，
// 同一 coordinator 生命週期內不會重複。
func (m *Mock) RequestRandomWords(ctx context.Context, req Request) (RequestID, error) {
	if err := ctx.Err(); err != nil {
		return RequestID{}, errs.Wrap(err, "request random words canceled")
	}
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return RequestID{}, ErrNumWordsTooBig.With(fmt.Sprintf("num_words=%d", req.NumWords))
	}
	if req.CallbackGasLimit > MaxCallbackGasLimit {
		return RequestID{}, ErrGasLimitTooBig.With(fmt.Sprintf("callback_gas_limit=%d", req.CallbackGasLimit))
	}
	if req.RequestConfirmations > MaxRequestConfirmation {
		return RequestID{}, ErrInvalidConfirmations.With(fmt.Sprintf("confirmations=%d", req.RequestConfirmations))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sub(req.SubID)
	if err != nil {
		return RequestID{}, err
	}
	nonce, ok := s.consumers[req.Consumer]
	if !ok {
		return RequestID{}, ErrInvalidConsumer.With(req.Consumer.Hex())
	}
	nonce++
	s.consumers[req.Consumer] = nonce

	sub := req.SubID.Bytes32()
	preSeed := crypto.Keccak256Hash(req.KeyHash.Bytes(), common.LeftPadBytes(req.Consumer.Bytes(), 32), sub[:], word(nonce))
	id := RequestID(crypto.Keccak256Hash(req.KeyHash.Bytes(), preSeed.Bytes()))

	m.reqSeq++
	m.requests[id] = &PendingRequest{
		ID:            id,
		SubID:         req.SubID.Clone(),
		Consumer:      req.Consumer,
		NumWords:      req.NumWords,
		Block:         m.block,
		Confirmations: req.RequestConfirmations,
		seq:           m.reqSeq,
	}
	m.log.Debug("random words requested", "request_id", id.String(), "consumer", req.Consumer.Hex(), "block", m.block)
	return id, nil
}

// FulfillRandomWords 以 PCG64 產生亂數並回呼 consumer。
func (m *Mock) FulfillRandomWords(ctx context.Context, id RequestID, consumer common.Address) (FulfillResult, error) {
	return m.fulfill(ctx, id, consumer, nil)
}

// FulfillRandomWordsWithOverride 以指定的 words 回呼 consumer（測試用，可決定輸贏）。
func (m *Mock) FulfillRandomWordsWithOverride(ctx context.Context, id RequestID, consumer common.Address, words []*uint256.Int) (FulfillResult, error) {
	if len(words) == 0 {
		return FulfillResult{}, ErrNumWordsTooBig.With("override words empty")
	}
	return m.fulfill(ctx, id, consumer, words)
}

// fulfill 成功時刪除請求並收費；consumer 回傳錯誤時請求保留，可再次回填。
func (m *Mock) fulfill(ctx context.Context, id RequestID, consumerAddr common.Address, override []*uint256.Int) (FulfillResult, error) {
	if err := ctx.Err(); err != nil {
		return FulfillResult{}, errs.Wrap(err, "fulfill canceled")
	}
	m.fulfillMu.Lock()
	defer m.fulfillMu.Unlock()

	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok {
		m.mu.Unlock()
		return FulfillResult{}, ErrNonexistentRequest.With("request_id=" + id.String())
	}
	if req.Consumer != consumerAddr {
		m.mu.Unlock()
		return FulfillResult{}, ErrInvalidConsumer.With("request_id=" + id.String() + " consumer=" + consumerAddr.Hex())
	}
	c, ok := m.consumers[consumerAddr]
	if !ok {
		m.mu.Unlock()
		return FulfillResult{}, ErrInvalidConsumer.With("no callback bound for " + consumerAddr.Hex())
	}
	s, err := m.sub(req.SubID)
	if err != nil {
		m.mu.Unlock()
		return FulfillResult{}, err
	}
	if s.balance.Lt(m.baseFee) {
		m.mu.Unlock()
		return FulfillResult{}, ErrInsufficientBalance.With("sub_id=" + s.id.Dec() + " balance=" + s.balance.Dec())
	}
	words := override
	if words == nil {
		words = make([]*uint256.Int, req.NumWords)
		for i := range words {
			words[i] = m.rng.Word()
		}
	}
	m.mu.Unlock()

	if err := c.FulfillRandomWords(ctx, m.addr, id, words); err != nil {
		if errs.CodeOf(err) == CodeUnknownRequest {
			// consumer 已經放棄這筆請求，照鏈上 coordinator 的行為移除且不收費
			m.mu.Lock()
			delete(m.requests, id)
			m.dropped++
			m.mu.Unlock()
			m.log.Info("request dropped by consumer", "request_id", id.String(), "err", err)
			return FulfillResult{}, errs.WrapWithExtra(err, "consumer dropped request", "request_id="+id.String())
		}
		m.log.Warn("consumer fulfillment failed", "request_id", id.String(), "err", err)
		return FulfillResult{}, errs.WrapWithExtra(err, "consumer fulfillment failed", "request_id="+id.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	s.balance = money.SubFloor(s.balance, m.baseFee)
	s.reqCount++
	m.fulfilled++
	m.log.Debug("random words fulfilled", "request_id", id.String(), "payment", m.baseFee.Dec())
	return FulfillResult{ID: id, Words: words, Payment: m.baseFee.Clone()}, nil
}

// Mine 推進 n 個區塊並回傳新的高度。
func (m *Mock) Mine(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block += n
	return m.block
}

// Pending 依請求順序回傳尚未回填的請求。
func (m *Mock) Pending() []PendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked()
}

// Ready 回傳已達確認數、可以被回填的請求。
func (m *Mock) Ready() []PendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.pendingLocked()
	out := all[:0]
	for _, r := range all {
		if m.block >= r.Block+uint64(r.Confirmations) {
			out = append(out, r)
		}
	}
	return out
}

// Info 回傳整體狀態快照。
func (m *Mock) Info() MockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s.snapshot())
	}
	slices.SortFunc(subs, func(a, b Subscription) int { return a.ID.Cmp(b.ID) })
	return MockInfo{
		Address:       m.addr,
		Block:         m.block,
		BaseFee:       m.baseFee.Clone(),
		Fulfilled:     m.fulfilled,
		Dropped:       m.dropped,
		Pending:       m.pendingLocked(),
		Subscriptions: subs,
	}
}

// RNGState 以 base64url 匯出亂數狀態，配合 RestoreRNG 可重播同一串結果。
func (m *Mock) RNGState() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.SnapshotString()
}

func (m *Mock) RestoreRNG(state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.RestoreString(state)
}

func (m *Mock) pendingLocked() []PendingRequest {
	out := make([]PendingRequest, 0, len(m.requests))
	for _, r := range m.requests {
		cp := *r
		cp.SubID = r.SubID.Clone()
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b PendingRequest) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

func (m *Mock) sub(id *uint256.Int) (*subscription, error) {
	if id == nil {
		return nil, ErrInvalidSubscription.With("nil sub id")
	}
	s, ok := m.subs[id.Bytes32()]
	if !ok {
		return nil, ErrInvalidSubscription.With("sub_id=" + id.Dec())
	}
	return s, nil
}

func (s *subscription) snapshot() Subscription {
	cs := make([]common.Address, 0, len(s.consumers))
	for a := range s.consumers {
		cs = append(cs, a)
	}
	slices.SortFunc(cs, func(a, b common.Address) int { return a.Cmp(b) })
	return Subscription{
		ID:        s.id.Clone(),
		Owner:     s.owner,
		Balance:   s.balance.Clone(),
		ReqCount:  s.reqCount,
		Consumers: cs,
	}
}

// word 把 uint64 編成 32-byte big-endian（abi.encode 的 uint256）。
func word(v uint64) []byte {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], v)
	return b[:]
}
