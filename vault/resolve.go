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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vrf"
)

// Result 把 random word 映射成硬幣結果：偶數為 heads，奇數為 tails。
func Result(word *uint256.Int) Side {
	if word.Uint64()&1 == 0 {
		return Heads
	}
	return Tails
}

// Outcome 是一次結算的結果。
type Outcome struct {
	Wager  Wager        `json:"wager"`
	Result Side         `json:"result"`
	Won    bool         `json:"won"`
	Payout *uint256.Int `json:"payout"`
}

// FulfillRandomWords 是 oracle 回填入口，只接受 coordinator 呼叫。
//
// 先刪除登記並釋放保留額，再付款；付款失敗時整筆 rollback，
// 登記與 liability 保持原狀，之後可以重試。
func (v *Vault) FulfillRandomWords(ctx context.Context, caller common.Address, id vrf.RequestID, words []*uint256.Int) error {
	_, err := v.Fulfill(ctx, caller, id, words)
	return err
}

// Fulfill 與 FulfillRandomWords 相同，但回傳結算結果。
func (v *Vault) Fulfill(ctx context.Context, caller common.Address, id vrf.RequestID, words []*uint256.Int) (Outcome, error) {
	if err := ctxErr(ctx); err != nil {
		return Outcome{}, err
	}
	if caller != v.coord {
		return Outcome{}, ErrAccessDenied.With("only coordinator " + v.coord.Hex() + " can fulfill, caller=" + caller.Hex())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var out Outcome
	err := v.update(func(tx keyvaluedb.DBTransaction, emit func(Event) error) error {
		w, found, err := loadWager(tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrUnknownRequest.With("request_id=" + id.String())
		}
		if len(words) == 0 || words[0] == nil {
			return ErrInvalidArgument.With("random words empty")
		}

		result := Result(words[0])
		won := result == w.Side
		payout := money.Zero()
		if won {
			payout = w.Reserve.Clone()
		}

		if err := v.release(tx, w); err != nil {
			return err
		}
		if won {
			if err := bank.Transfer(tx, v.cfg.Address, w.Player, payout); err != nil {
				return payoutErr(err, w)
			}
		}
		out = Outcome{Wager: w, Result: result, Won: won, Payout: payout}
		return emit(Event{
			Kind:      EventCoinFlipped,
			Time:      v.now(),
			RequestID: id,
			Account:   w.Player,
			Amount:    w.Stake.Clone(),
			Side:      w.Side,
			Result:    result,
			Won:       won,
			Payout:    payout.Clone(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrPayoutTransferFailed) {
			v.met.payoutFailures.Inc(1)
		}
		v.log.Warn("fulfillment rejected", "request_id", id.String(), "err", err)
		return Outcome{}, err
	}

	if out.Won {
		v.met.wins.Inc(1)
	} else {
		v.met.losses.Inc(1)
	}
	v.met.settle.UpdateSince(out.Wager.CreatedAt)
	v.log.Info("coin flipped",
		"request_id", id.String(),
		"player", out.Wager.Player.Hex(),
		"stake", out.Wager.Stake.Dec(),
		"side", out.Wager.Side.String(),
		"result", out.Result.String(),
		"won", out.Won,
	)
	return out, nil
}

// release 刪除登記並把保留額從 liability 扣除。必須在任何付款之前呼叫。
func (v *Vault) release(tx keyvaluedb.DBTransaction, w Wager) error {
	if err := tx.Delete(wagerKey(w.RequestID)); err != nil {
		return errs.Wrap(err, "delete wager failed")
	}
	liab, err := liability(tx)
	if err != nil {
		return err
	}
	rest, ok := money.Sub(liab, w.Reserve)
	if !ok {
		return errs.NewFatal(fmt.Sprintf("liability underflow: liability=%s reserve=%s", liab.Dec(), w.Reserve.Dec()))
	}
	return putLiability(tx, rest)
}

func payoutErr(err error, w Wager) error {
	return ErrPayoutTransferFailed.With(fmt.Sprintf("request_id=%s player=%s: %v", w.RequestID.String(), w.Player.Hex(), err))
}
