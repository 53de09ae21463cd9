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

// Package vault 是硬幣下注帳本：接受下注、向 VRF oracle 請求亂數、
// 在亂數回填時結算，並保證金庫永遠付得起所有未結算下注的最大派彩。
//
// 狀態（liability、下注登記、事件）與原生餘額（package bank）存在同一個 keyvaluedb，
// 每個公開操作都在 vault 鎖內以單一 DB transaction 完成：失敗時沒有任何部分寫入。
//
// 不變量：
//   - Treasury >= Liability（每個操作完成後）
//   - Liability == 所有未結算下注的 Reserve 總和
//   - 每個 RequestID 只會被結算（或退款）一次
package vault

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vrf"
)

// Config 是建構參數，建構後不可變。
type Config struct {
	Principal   common.Address
	Address     common.Address // 持有 Treasury 的帳戶，也是 VRF consumer 位址
	Coordinator vrf.Coordinator

	KeyHash              common.Hash
	SubID                *uint256.Int
	CallbackGasLimit     uint32
	RequestConfirmations uint16
	NativePayment        bool

	// ExpireAfter 之後玩家或 principal 可以取消未結算的下注並退回本金；0 代表停用。
	ExpireAfter time.Duration

	Store keyvaluedb.KeyValueDB
	Log   *slog.Logger
	// Clock 預設為 time.Now，測試可注入。
	Clock func() time.Time
}

func (c *Config) valid() error {
	if c.Store == nil {
		return errs.NewFatal("vault store is required")
	}
	if c.Coordinator == nil {
		return errs.NewFatal("vault coordinator is required")
	}
	if c.Principal == (common.Address{}) {
		return errs.NewFatal("vault principal is required")
	}
	if c.Address == (common.Address{}) {
		return errs.NewFatal("vault address is required")
	}
	if c.Address == c.Principal || c.Address == c.Coordinator.Address() {
		return errs.NewFatal("vault address must differ from principal and coordinator")
	}
	if c.SubID == nil {
		return errs.NewFatal("vault subscription id is required")
	}
	if c.ExpireAfter < 0 {
		return errs.NewFatal("vault expire_after must be >= 0")
	}
	if c.Log == nil {
		c.Log = slog.New(slog.DiscardHandler)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

type Vault struct {
	cfg   Config
	coord common.Address
	store keyvaluedb.KeyValueDB
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex

	met  *vaultMetrics
	subs *subscribers
}

var _ vrf.Consumer = (*Vault)(nil)

// New 建立 Vault。store 若已有資料，必須屬於同一組 principal / 位址 / coordinator。
func New(cfg Config) (*Vault, error) {
	if err := cfg.valid(); err != nil {
		return nil, err
	}
	v := &Vault{
		cfg:   cfg,
		coord: cfg.Coordinator.Address(),
		store: cfg.Store,
		log:   cfg.Log.With("component", "vault", "vault", cfg.Address.Hex()),
		now:   cfg.Clock,
		met:   newVaultMetrics(),
		subs:  newSubscribers(),
	}
	if err := v.checkMeta(); err != nil {
		return nil, err
	}
	v.log.Info("vault ready",
		"principal", cfg.Principal.Hex(),
		"coordinator", v.coord.Hex(),
		"sub_id", cfg.SubID.Dec(),
		"confirmations", cfg.RequestConfirmations,
		"expire_after", cfg.ExpireAfter.String(),
	)
	return v, nil
}

func (v *Vault) checkMeta() error {
	want := metaRecord{Principal: v.cfg.Principal, Address: v.cfg.Address, Coordinator: v.coord}
	var got metaRecord
	found, err := v.store.Read(keyMeta, &got)
	if err != nil {
		return errs.Wrap(err, "read vault meta failed")
	}
	if !found {
		if err := v.store.Write(keyMeta, &want); err != nil {
			return errs.Wrap(err, "write vault meta failed")
		}
		return nil
	}
	if got != want {
		return ErrStoreMismatch.With("stored principal=" + common.Address(got.Principal).Hex() +
			" address=" + common.Address(got.Address).Hex())
	}
	return nil
}

// Address 回傳 vault 帳戶位址（vrf.Consumer）。
func (v *Vault) Address() common.Address { return v.cfg.Address }

func (v *Vault) Principal() common.Address { return v.cfg.Principal }

func (v *Vault) Coordinator() common.Address { return v.coord }

func (v *Vault) ExpireAfter() time.Duration { return v.cfg.ExpireAfter }

// restrictToPrincipal 是唯一的權限檢查：caller 必須是 principal，沒有委派。
func (v *Vault) restrictToPrincipal(caller common.Address) error {
	if caller != v.cfg.Principal {
		return ErrAccessDenied.With("caller=" + caller.Hex() + " is not the principal")
	}
	return nil
}

//---------------------------------------
// 唯讀查詢
//---------------------------------------

// Treasury 回傳 vault 帳戶的原生餘額。
func (v *Vault) Treasury() (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return bank.Balance(v.store, v.cfg.Address)
}

// Liability 回傳所有未結算下注保留的金額總和。
func (v *Vault) Liability() (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return liability(v.store)
}

// Available 回傳 Treasury - Liability（可被新下注或提領使用的部分）。
func (v *Vault) Available() (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return available(v.store, v.cfg.Address)
}

// Balance 回傳任一帳戶的原生餘額。
func (v *Vault) Balance(addr common.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return bank.Balance(v.store, addr)
}

// Wager 回傳未結算的下注；已結算或不存在時回傳 ErrUnknownRequest。
func (v *Vault) Wager(id vrf.RequestID) (Wager, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	w, found, err := loadWager(v.store, id)
	if err != nil {
		return Wager{}, err
	}
	if !found {
		return Wager{}, ErrUnknownRequest.With("request_id=" + id.String())
	}
	return w, nil
}

// Pending 依 RequestID 順序列出所有未結算下注。
func (v *Vault) Pending() ([]Wager, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingLocked()
}

func (v *Vault) pendingLocked() ([]Wager, error) {
	it := v.store.Find(prefixWager)
	defer func() { _ = it.Close() }()
	out := make([]Wager, 0, 8)
	for ; it.Valid(); it.Next() {
		var rec wagerRecord
		if err := it.Value(&rec); err != nil {
			return nil, errs.Wrap(err, "decode wager failed")
		}
		var id vrf.RequestID
		copy(id[:], it.Key()[len(prefixWager):])
		out = append(out, rec.wager(id))
	}
	if err := it.Close(); err != nil {
		return nil, errs.Wrap(err, "scan wagers failed")
	}
	return out, nil
}

// Snapshot 是一致性的帳本快照（同一把鎖內讀取）。
type Snapshot struct {
	Principal   common.Address `json:"principal"`
	Address     common.Address `json:"address"`
	Coordinator common.Address `json:"coordinator"`
	Treasury    *uint256.Int   `json:"treasury"`
	Liability   *uint256.Int   `json:"liability"`
	Available   *uint256.Int   `json:"available"`
	Pending     int            `json:"pending"`
	ExpireAfter string         `json:"expire_after"`
}

func (v *Vault) Snapshot() (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *Vault) snapshotLocked() (Snapshot, error) {
	t, err := bank.Balance(v.store, v.cfg.Address)
	if err != nil {
		return Snapshot{}, err
	}
	l, err := liability(v.store)
	if err != nil {
		return Snapshot{}, err
	}
	ws, err := v.pendingLocked()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Principal:   v.cfg.Principal,
		Address:     v.cfg.Address,
		Coordinator: v.coord,
		Treasury:    t,
		Liability:   l,
		Available:   money.SubFloor(t, l),
		Pending:     len(ws),
		ExpireAfter: v.cfg.ExpireAfter.String(),
	}, nil
}

//---------------------------------------
// 交易與儲存輔助
//---------------------------------------

// update 在單一 DB transaction 內執行 fn；fn 失敗則整筆 rollback。
// 呼叫端必須持有 v.mu。成功 commit 後才發布 fn 產生的事件。
func (v *Vault) update(fn func(tx keyvaluedb.DBTransaction, emit func(Event) error) error) error {
	tx, err := v.store.StartTx()
	if err != nil {
		return errs.Wrap(err, "start tx failed")
	}
	var events []Event
	emit := func(e Event) error {
		saved, err := appendEvent(tx, e)
		if err != nil {
			return err
		}
		events = append(events, saved)
		return nil
	}
	if err := fn(tx, emit); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, "commit tx failed")
	}
	for _, e := range events {
		v.subs.publish(e, v.met)
	}
	return nil
}

func liability(r keyvaluedb.Reader) (*uint256.Int, error) {
	var w [32]byte
	if _, err := r.Read(keyLiability, &w); err != nil {
		return nil, errs.Wrap(err, "read liability failed")
	}
	return money.FromWord(w), nil
}

func putLiability(w keyvaluedb.Writer, v *uint256.Int) error {
	word := money.Word(v)
	if err := w.Write(keyLiability, &word); err != nil {
		return errs.Wrap(err, "write liability failed")
	}
	return nil
}

func available(r keyvaluedb.Reader, vaultAddr common.Address) (*uint256.Int, error) {
	t, err := bank.Balance(r, vaultAddr)
	if err != nil {
		return nil, err
	}
	l, err := liability(r)
	if err != nil {
		return nil, err
	}
	return money.SubFloor(t, l), nil
}

func loadWager(r keyvaluedb.Reader, id vrf.RequestID) (Wager, bool, error) {
	var rec wagerRecord
	found, err := r.Read(wagerKey(id), &rec)
	if err != nil {
		return Wager{}, false, errs.WrapWithExtra(err, "read wager failed", "request_id="+id.String())
	}
	if !found {
		return Wager{}, false, nil
	}
	return rec.wager(id), true, nil
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "vault operation canceled")
	}
	return nil
}
