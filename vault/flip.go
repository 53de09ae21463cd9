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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vrf"
)

// Flip 接受一筆下注並送出亂數請求，回傳 RequestID；結果要等 oracle 回填後才知道。
//
// 順序（同一 transaction 內）：
//  1. 檢查 Treasury - Liability >= 2 × stake（在收取本金之前）
//  2. 收取本金：player -> vault
//  3. Liability += 2 × stake
//  4. 向 coordinator 請求亂數
//  5. 以 RequestID 登記下注並記錄 RandomnessRequested
func (v *Vault) Flip(ctx context.Context, player common.Address, side Side, stake *uint256.Int) (vrf.RequestID, error) {
	if err := ctxErr(ctx); err != nil {
		return vrf.RequestID{}, err
	}
	if !side.Valid() {
		return vrf.RequestID{}, ErrInvalidArgument.With("side must be heads or tails")
	}
	if stake == nil || stake.IsZero() {
		return vrf.RequestID{}, ErrInvalidArgument.With("stake must be > 0")
	}
	if player == (common.Address{}) || player == v.cfg.Address {
		return vrf.RequestID{}, ErrInvalidArgument.With("invalid player " + player.Hex())
	}
	reserve, ok := money.Double(stake)
	if !ok {
		return vrf.RequestID{}, ErrInvalidArgument.With("stake too large")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var id vrf.RequestID
	err := v.update(func(tx keyvaluedb.DBTransaction, emit func(Event) error) error {
		avail, err := available(tx, v.cfg.Address)
		if err != nil {
			return err
		}
		if avail.Lt(reserve) {
			return ErrInsufficientReserve.With("reserve=" + reserve.Dec() + " available=" + avail.Dec())
		}
		if err := bank.Transfer(tx, player, v.cfg.Address, stake); err != nil {
			return errs.Wrap(err, "collect stake failed")
		}
		liab, err := liability(tx)
		if err != nil {
			return err
		}
		// avail >= reserve 保證不會溢位
		liab.Add(liab, reserve)
		if err := putLiability(tx, liab); err != nil {
			return err
		}

		id, err = v.cfg.Coordinator.RequestRandomWords(ctx, vrf.Request{
			KeyHash:              v.cfg.KeyHash,
			SubID:                v.cfg.SubID,
			RequestConfirmations: v.cfg.RequestConfirmations,
			CallbackGasLimit:     v.cfg.CallbackGasLimit,
			NumWords:             1,
			NativePayment:        v.cfg.NativePayment,
			Consumer:             v.cfg.Address,
		})
		if err != nil {
			return errs.Wrap(err, "randomness request failed")
		}
		if _, dup, err := loadWager(tx, id); err != nil {
			return err
		} else if dup {
			return errs.NewFatal("coordinator returned a request id already in use: " + id.String())
		}

		w := Wager{RequestID: id, Player: player, Stake: stake.Clone(), Side: side, Reserve: reserve, CreatedAt: v.now()}
		rec := w.record()
		if err := tx.Write(wagerKey(id), &rec); err != nil {
			return errs.Wrap(err, "write wager failed")
		}
		return emit(Event{
			Kind:      EventRandomnessRequested,
			Time:      w.CreatedAt,
			RequestID: id,
			Account:   player,
			Amount:    stake.Clone(),
			Side:      side,
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientReserve) {
			v.met.rejectedReserve.Inc(1)
		}
		v.log.Warn("flip rejected", "player", player.Hex(), "stake", stake.Dec(), "side", side.String(), "err", err)
		return vrf.RequestID{}, err
	}
	v.met.flips.Inc(1)
	v.log.Info("randomness requested",
		"request_id", id.String(),
		"player", player.Hex(),
		"stake", stake.Dec(),
		"side", side.String(),
	)
	return id, nil
}
