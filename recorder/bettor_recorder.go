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

package recorder

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/stats"
)

// BettorRecorder 下注紀錄員
//
// BettorRecorder 負責紀錄一位（或合併後多位）玩家的下注結果，並透過Done輸出統計報表。
// 金額全程以 wei（uint256）累加，只有輸出報表時才轉成 ether 浮點數。
type BettorRecorder struct {
	Label   string
	Stake   *uint256.Int
	Bettors int
	Basic   *BasicRecord
	Streak  *StreakRecord
	Player  *PlayerRecord // 合併後為 nil
}

// BasicRecord 基本下注資料紀錄
type BasicRecord struct {
	Flips          int
	Wins           int
	Losses         int
	Rejected       int
	PayoutFailures int
	Busts          int
	TotalStake     *uint256.Int
	TotalPayout    *uint256.Int
	MultSum        float64 // 派彩倍數總和
	MultSqSum      float64 // 平方和
}

// StreakRecord 連輸 / 連贏紀錄
type StreakRecord struct {
	curLoss     int
	curWin      int
	LongestLoss int
	LongestWin  int
	LossCollect []int
	WinCollect  []int
	closed      bool
}

// PlayerRecord 玩家餘額紀錄
type PlayerRecord struct {
	InitBalance *uint256.Int
	Balance     *uint256.Int
	MaxBalance  *uint256.Int
	MinBalance  *uint256.Int
	Bust        bool
}

func NewBettorRecorder(label string, stake, initBalance *uint256.Int) (*BettorRecorder, error) {
	if stake == nil || stake.IsZero() {
		return nil, errs.NewFatal("stake must be > 0")
	}
	if initBalance == nil {
		initBalance = money.Zero()
	}
	r := &BettorRecorder{
		Label:   label,
		Stake:   stake.Clone(),
		Bettors: 1,
		Basic:   newBasicRecord(),
		Streak:  newStreakRecord(),
		Player: &PlayerRecord{
			InitBalance: initBalance.Clone(),
			Balance:     initBalance.Clone(),
			MaxBalance:  initBalance.Clone(),
			MinBalance:  initBalance.Clone(),
		},
	}
	return r, nil
}

func newBasicRecord() *BasicRecord {
	return &BasicRecord{TotalStake: money.Zero(), TotalPayout: money.Zero()}
}

func newStreakRecord() *StreakRecord {
	return &StreakRecord{
		LossCollect: make([]int, stats.Streaks.Len()),
		WinCollect:  make([]int, stats.Streaks.Len()),
	}
}

// MergeBettorRecorder 合併多位玩家的紀錄（玩家餘額不合併）。
func MergeBettorRecorder(rs []*BettorRecorder) (*BettorRecorder, error) {
	if len(rs) == 0 {
		return nil, errs.NewFatal("merge bettor record err : empty input")
	}
	r0 := rs[0]
	out := &BettorRecorder{
		Label:  r0.Label,
		Stake:  r0.Stake.Clone(),
		Basic:  newBasicRecord(),
		Streak: newStreakRecord(),
	}
	for _, v := range rs {
		if !v.Stake.Eq(r0.Stake) {
			return nil, errs.NewFatal("merge bettor record err : different stake")
		}
		v.Streak.close()
		out.Bettors += v.Bettors
		out.Basic.Flips += v.Basic.Flips
		out.Basic.Wins += v.Basic.Wins
		out.Basic.Losses += v.Basic.Losses
		out.Basic.Rejected += v.Basic.Rejected
		out.Basic.PayoutFailures += v.Basic.PayoutFailures
		out.Basic.Busts += v.Basic.Busts
		out.Basic.TotalStake.Add(out.Basic.TotalStake, v.Basic.TotalStake)
		out.Basic.TotalPayout.Add(out.Basic.TotalPayout, v.Basic.TotalPayout)
		out.Basic.MultSum += v.Basic.MultSum
		out.Basic.MultSqSum += v.Basic.MultSqSum

		// 整合Streak
		for i := range v.Streak.LossCollect {
			out.Streak.LossCollect[i] += v.Streak.LossCollect[i]
			out.Streak.WinCollect[i] += v.Streak.WinCollect[i]
		}
		out.Streak.LongestLoss = max(out.Streak.LongestLoss, v.Streak.LongestLoss)
		out.Streak.LongestWin = max(out.Streak.LongestWin, v.Streak.LongestWin)
	}
	out.Streak.closed = true
	return out, nil
}

// RecordSettled 紀錄一筆已結算的下注；payout 為 0 代表輸。
func (r *BettorRecorder) RecordSettled(stake, payout *uint256.Int, won bool) {
	b := r.Basic
	b.Flips++
	b.TotalStake.Add(b.TotalStake, stake)
	b.TotalPayout.Add(b.TotalPayout, payout)
	mult := ratio(payout, stake)
	b.MultSum += mult
	b.MultSqSum += mult * mult

	s := r.Streak
	if won {
		b.Wins++
		s.curWin++
		s.curLoss = 0
		s.LongestWin = max(s.LongestWin, s.curWin)
		return
	}
	b.Losses++
	s.curLoss++
	s.curWin = 0
	s.LongestLoss = max(s.LongestLoss, s.curLoss)
}

// RecordRejected 紀錄一筆因保留額不足被拒絕的下注。
func (r *BettorRecorder) RecordRejected() { r.Basic.Rejected++ }

// RecordPayoutFailure 紀錄一次付款失敗（之後可能重試成功）。
func (r *BettorRecorder) RecordPayoutFailure() { r.Basic.PayoutFailures++ }

// RecordBalance 更新玩家目前餘額與高低點。
func (r *BettorRecorder) RecordBalance(bal *uint256.Int) {
	p := r.Player
	if p == nil || bal == nil {
		return
	}
	p.Balance = bal.Clone()
	if bal.Gt(p.MaxBalance) {
		p.MaxBalance = bal.Clone()
	}
	if bal.Lt(p.MinBalance) {
		p.MinBalance = bal.Clone()
	}
}

// MarkBust 標記玩家餘額已不足以再下注。
func (r *BettorRecorder) MarkBust() {
	if r.Player != nil && !r.Player.Bust {
		r.Player.Bust = true
		r.Basic.Busts++
	}
}

// Done 輸出統計報表。單一玩家的報表會帶 Bettor 區塊。
func (r *BettorRecorder) Done() *stats.SessionReport {
	r.Streak.close()
	rep := &stats.SessionReport{
		Summary: &stats.SummaryReport{
			Label:          r.Label,
			Bettors:        r.Bettors,
			Flips:          r.Basic.Flips,
			Wins:           r.Basic.Wins,
			Losses:         r.Basic.Losses,
			Rejected:       r.Basic.Rejected,
			PayoutFailures: r.Basic.PayoutFailures,
			Busts:          r.Basic.Busts,
			TotalStakeWei:  r.Basic.TotalStake.Dec(),
			TotalPayoutWei: r.Basic.TotalPayout.Dec(),
			TotalStake:     Ether(r.Basic.TotalStake),
			TotalPayout:    Ether(r.Basic.TotalPayout),
			MultSum:        r.Basic.MultSum,
			MultSqSum:      r.Basic.MultSqSum,
		},
		Streak: &stats.StreakReport{
			StreakBucket:      stats.Streaks.Names(),
			LossStreakCollect: append([]int(nil), r.Streak.LossCollect...),
			WinStreakCollect:  append([]int(nil), r.Streak.WinCollect...),
		},
	}
	if p := r.Player; p != nil {
		rep.Bettor = &stats.BettorReport{
			InitBalance: Ether(p.InitBalance),
			Balance:     Ether(p.Balance),
			MaxBalance:  Ether(p.MaxBalance),
			MinBalance:  Ether(p.MinBalance),
			Bust:        p.Bust,
		}
	}
	rep.Done()
	return rep
}

// close 把最長連續次數落入分桶；只做一次。
func (s *StreakRecord) close() {
	if s.closed {
		return
	}
	s.LossCollect[stats.Streaks.Index(s.LongestLoss)]++
	s.WinCollect[stats.Streaks.Index(s.LongestWin)]++
	s.closed = true
}

// Ether 把 wei 轉成 ether 浮點數，只用於統計。
func Ether(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(v.ToBig(), -money.EtherDecimals).Float64()
	return f
}

func ratio(a, b *uint256.Int) float64 {
	if b == nil || b.IsZero() {
		return 0
	}
	f, _ := decimal.NewFromBigInt(a.ToBig(), 0).Div(decimal.NewFromBigInt(b.ToBig(), 0)).Float64()
	return f
}
