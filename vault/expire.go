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

package vault

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/vrf"
)

// Expire 取消一筆超過 ExpireAfter 仍未回填的下注：釋放保留額並把本金退給玩家。
// caller 必須是該下注的玩家或 principal。退款後遲到的回填會得到 ErrUnknownRequest。
func (v *Vault) Expire(ctx context.Context, caller common.Address, id vrf.RequestID) (Wager, error) {
	if err := ctxErr(ctx); err != nil {
		return Wager{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expireLocked(caller, id)
}

func (v *Vault) expireLocked(caller common.Address, id vrf.RequestID) (Wager, error) {
	var refunded Wager
	err := v.update(func(tx keyvaluedb.DBTransaction, emit func(Event) error) error {
		w, found, err := loadWager(tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrUnknownRequest.With("request_id=" + id.String())
		}
		if caller != w.Player && caller != v.cfg.Principal {
			return ErrAccessDenied.With("caller=" + caller.Hex() + " cannot expire request " + id.String())
		}
		if !v.overdue(w) {
			return ErrNotExpired.With("request_id=" + id.String() + " created_at=" + w.CreatedAt.Format(time.RFC3339))
		}
		if err := v.release(tx, w); err != nil {
			return err
		}
		if err := bank.Transfer(tx, v.cfg.Address, w.Player, w.Stake); err != nil {
			return payoutErr(err, w)
		}
		refunded = w
		return emit(Event{
			Kind:      EventWagerRefunded,
			Time:      v.now(),
			RequestID: id,
			Account:   w.Player,
			Amount:    w.Stake.Clone(),
			Side:      w.Side,
		})
	})
	if err != nil {
		if errors.Is(err, ErrPayoutTransferFailed) {
			v.met.payoutFailures.Inc(1)
		}
		v.log.Warn("expire rejected", "request_id", id.String(), "caller", caller.Hex(), "err", err)
		return Wager{}, err
	}
	v.met.refunds.Inc(1)
	v.log.Info("wager refunded", "request_id", id.String(), "player", refunded.Player.Hex(), "stake", refunded.Stake.Dec())
	return refunded, nil
}

func (v *Vault) overdue(w Wager) bool {
	if v.cfg.ExpireAfter <= 0 {
		return false
	}
	return v.now().Sub(w.CreatedAt) >= v.cfg.ExpireAfter
}

// ExpireOverdue 以 principal 身分退款所有逾期下注。每筆各自一個 transaction，
// 單筆失敗（例如玩家拒收）不影響其他筆；回傳成功退款的下注與所有失敗。
func (v *Vault) ExpireOverdue(ctx context.Context) ([]Wager, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if v.cfg.ExpireAfter <= 0 {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	pending, err := v.pendingLocked()
	if err != nil {
		return nil, err
	}
	var (
		done []Wager
		errl []error
	)
	for _, w := range pending {
		if ctx.Err() != nil {
			errl = append(errl, ctxErr(ctx))
			break
		}
		if !v.overdue(w) {
			continue
		}
		r, err := v.expireLocked(v.cfg.Principal, w.RequestID)
		if err != nil {
			errl = append(errl, err)
			continue
		}
		done = append(done, r)
	}
	return done, errors.Join(errl...)
}

// Reaper 週期性呼叫 ExpireOverdue。實作 app.Component。
type Reaper struct {
	v        *Vault
	interval time.Duration
	log      *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewReaper(v *Vault, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		v:        v,
		interval: interval,
		log:      v.log.With("worker", "reaper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Run() error {
	defer close(r.done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		select {
		case <-r.stop:
			return nil
		case <-t.C:
			ws, err := r.v.ExpireOverdue(ctx)
			if err != nil {
				r.log.Warn("expire sweep incomplete", "refunded", len(ws), "err", err)
			} else if len(ws) > 0 {
				r.log.Info("expire sweep", "refunded", len(ws))
			}
		}
	}
}

func (r *Reaper) Name() string { return "reaper" }

func (r *Reaper) Shutdown(ctx context.Context) error {
	r.once.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
