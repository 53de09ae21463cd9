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

package flipvault

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math"
	"math/big"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb/memorydb"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/recorder"
	"github.com/zintix-labs/flipvault/rng"
	"github.com/zintix-labs/flipvault/stats"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
	"golang.org/x/sync/errgroup"
)

// 模擬器使用的固定位址
var (
	simPrincipal   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	simVault       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	simCoordinator = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// 模擬參數上限
const (
	MaxSimBettors = 100_000
	MaxSimFlips   = 1_000_000
	MaxSimBatch   = 64
	MaxSimWorkers = 256
)

// SimConfig 描述一次模擬。
type SimConfig struct {
	Label       string
	Bettors     int          // 玩家數
	Flips       int          // 每位玩家最多下注次數
	Batch       int          // 每位玩家同時未結算的下注數（>1 會讓 liability 累積）
	Workers     int          // 併發數；>1 時結果不保證可重現
	Stake       *uint256.Int // 每注金額
	InitBalance *uint256.Int // 每位玩家初始餘額
	Bankroll    *uint256.Int // principal 存入 vault 的資金
	Seed        int64        // 0 代表隨機
	ShowBar     bool
}

// SimResult 是一次模擬的輸出。
type SimResult struct {
	Report    *stats.SessionReport    // 全體合併報表
	Estimator *stats.EstimatorBettors // 玩家分佈估計
	Used      time.Duration
}

func (c *SimConfig) valid() error {
	switch {
	case c.Bettors < 1 || c.Bettors > MaxSimBettors:
		return errs.NewWarn("bettors must be in [1, " + strconv.Itoa(MaxSimBettors) + "]")
	case c.Flips < 1 || c.Flips > MaxSimFlips:
		return errs.NewWarn("flips must be in [1, " + strconv.Itoa(MaxSimFlips) + "]")
	case c.Stake == nil || c.Stake.IsZero():
		return errs.NewWarn("stake must be > 0")
	case c.Bankroll == nil || c.Bankroll.IsZero():
		return errs.NewWarn("bankroll must be > 0")
	case c.InitBalance == nil || c.InitBalance.Lt(c.Stake):
		return errs.NewWarn("init balance must cover at least one stake")
	}
	if c.Batch < 1 {
		c.Batch = 1
	}
	if c.Batch > MaxSimBatch {
		return errs.NewWarn("batch must be <= " + strconv.Itoa(MaxSimBatch))
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Workers > MaxSimWorkers {
		return errs.NewWarn("workers must be <= " + strconv.Itoa(MaxSimWorkers))
	}
	if c.Label == "" {
		c.Label = "coin flip"
	}
	return nil
}

// Simulator 用記憶體 store 與本地 coordinator 建一個獨立的 vault，
// 讓多位玩家各自下注，最後產出統計與帳本對帳結果。
type Simulator struct {
	cfg       SimConfig
	seed      int64
	seedmaker *seedMaker

	oracle  *vrf.Mock
	vault   *vault.Vault
	bettors []*simBettor
}

type simBettor struct {
	addr common.Address
	rng  *rng.PCG64
	rec  *recorder.BettorRecorder
}

// NewSimulator 建立模擬器；每次模擬都是全新的 vault。
func NewSimulator(cfg SimConfig) (*Simulator, error) {
	if err := cfg.valid(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			return nil, err
		}
		seed = n.Int64()
	}
	return &Simulator{cfg: cfg, seed: seed, seedmaker: newSeedMaker(seed)}, nil
}

// Seed 回傳實際使用的種子。
func (s *Simulator) Seed() int64 { return s.seed }

// Run 執行模擬並回傳統計結果與用時。
func (s *Simulator) Run(ctx context.Context) (*SimResult, error) {
	if err := s.setup(ctx); err != nil {
		return nil, err
	}
	supplyStart, err := s.supply()
	if err != nil {
		return nil, err
	}

	jobs := make(chan *simBettor, 2048)
	bar := pb.StartNew(len(s.bettors))
	if !s.cfg.ShowBar {
		bar.SetWriter(io.Discard)
	}
	g, gctx := errgroup.WithContext(ctx)
	for range s.cfg.Workers {
		g.Go(func() error {
			for b := range jobs {
				if err := s.play(gctx, b); err != nil {
					return err
				}
				bar.Increment()
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for _, b := range s.bettors {
			select {
			case jobs <- b:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	err = g.Wait()
	used := time.Since(bar.StartTime())
	bar.Finish()
	if err != nil {
		return nil, err
	}

	// 玩家分析報表
	reports := make([]*stats.SessionReport, len(s.bettors))
	recs := make([]*recorder.BettorRecorder, len(s.bettors))
	for i, b := range s.bettors {
		reports[i] = b.rec.Done()
		recs[i] = b.rec
	}
	merged, err := recorder.MergeBettorRecorder(recs)
	if err != nil {
		return nil, err
	}
	rep := merged.Done()
	rep.Summary.Seed = s.seed
	if rep.Ledger, err = s.reconcile(merged, supplyStart); err != nil {
		return nil, err
	}
	return &SimResult{Report: rep, Estimator: stats.EstimatorBettorExp(reports), Used: used}, nil
}

func (s *Simulator) setup(ctx context.Context) error {
	s.oracle = vrf.NewMock(vrf.MockConfig{Address: simCoordinator, Seed: s.seedmaker.next()})
	subID := s.oracle.CreateSubscription(simPrincipal)
	v, err := vault.New(vault.Config{
		Principal:        simPrincipal,
		Address:          simVault,
		Coordinator:      s.oracle,
		SubID:            subID,
		CallbackGasLimit: 100_000,
		Store:            memorydb.New(),
	})
	if err != nil {
		return err
	}
	if err := s.oracle.AddConsumer(subID, v); err != nil {
		return err
	}
	s.vault = v
	if err := v.Mint(ctx, simPrincipal, s.cfg.Bankroll); err != nil {
		return err
	}
	if err := v.Deposit(ctx, simPrincipal, s.cfg.Bankroll); err != nil {
		return err
	}

	s.bettors = make([]*simBettor, s.cfg.Bettors)
	for i := range s.bettors {
		rec, err := recorder.NewBettorRecorder(s.cfg.Label, s.cfg.Stake, s.cfg.InitBalance)
		if err != nil {
			return err
		}
		b := &simBettor{addr: bettorAddress(i), rng: rng.NewWithSeed(s.seedmaker.next()), rec: rec}
		if err := v.Mint(ctx, b.addr, s.cfg.InitBalance); err != nil {
			return err
		}
		s.bettors[i] = b
	}
	return nil
}

// play 讓一位玩家下注直到次數用完或餘額不足。
func (s *Simulator) play(ctx context.Context, b *simBettor) error {
	type flip struct {
		id   vrf.RequestID
		side vault.Side
	}
	left := s.cfg.Flips
	batch := make([]flip, 0, s.cfg.Batch)
	for left > 0 && !b.rec.Player.Bust {
		batch = batch[:0]
		for len(batch) < s.cfg.Batch && left > 0 {
			left--
			side := vault.Heads
			if b.rng.IntN(2) == 1 {
				side = vault.Tails
			}
			id, err := s.vault.Flip(ctx, b.addr, side, s.cfg.Stake)
			switch {
			case err == nil:
				batch = append(batch, flip{id: id, side: side})
				continue
			case errors.Is(err, vault.ErrInsufficientReserve):
				b.rec.RecordRejected()
				continue
			case errors.Is(err, vault.ErrInsufficientFunds):
				b.rec.MarkBust()
			default:
				return err
			}
			break
		}
		for _, f := range batch {
			res, err := s.oracle.FulfillRandomWords(ctx, f.id, simVault)
			if err != nil {
				if errors.Is(err, vault.ErrPayoutTransferFailed) {
					b.rec.RecordPayoutFailure()
				}
				return err
			}
			won := vault.Result(res.Words[0]) == f.side
			payout := money.Zero()
			if won {
				payout, _ = money.Double(s.cfg.Stake)
			}
			b.rec.RecordSettled(s.cfg.Stake, payout, won)
		}
		bal, err := s.vault.Balance(b.addr)
		if err != nil {
			return err
		}
		b.rec.RecordBalance(bal)
		if bal.Lt(s.cfg.Stake) {
			b.rec.MarkBust()
		}
	}
	return nil
}

// supply 回傳所有參與帳戶的原生餘額總和。
func (s *Simulator) supply() (*uint256.Int, error) {
	total := money.Zero()
	addrs := []common.Address{simPrincipal, simVault}
	for _, b := range s.bettors {
		addrs = append(addrs, b.addr)
	}
	for _, a := range addrs {
		bal, err := s.vault.Balance(a)
		if err != nil {
			return nil, err
		}
		total.Add(total, bal)
	}
	return total, nil
}

// reconcile 檢查 treasury = 初始 + 總押注 - 總派彩，liability 歸零，且總供給不變。
func (s *Simulator) reconcile(merged *recorder.BettorRecorder, supplyStart *uint256.Int) (*stats.LedgerReport, error) {
	treasury, err := s.vault.Treasury()
	if err != nil {
		return nil, err
	}
	liab, err := s.vault.Liability()
	if err != nil {
		return nil, err
	}
	supplyEnd, err := s.supply()
	if err != nil {
		return nil, err
	}
	want := new(uint256.Int).Add(s.cfg.Bankroll, merged.Basic.TotalStake)
	want = money.SubFloor(want, merged.Basic.TotalPayout)
	return &stats.LedgerReport{
		TreasuryStart: money.FormatEther(s.cfg.Bankroll),
		TreasuryEnd:   money.FormatEther(treasury),
		TreasuryWant:  money.FormatEther(want),
		LiabilityEnd:  money.FormatEther(liab),
		SupplyStart:   money.FormatEther(supplyStart),
		SupplyEnd:     money.FormatEther(supplyEnd),
		Balanced:      treasury.Eq(want) && liab.IsZero() && supplyStart.Eq(supplyEnd),
	}, nil
}

// bettorAddress 以索引推導出固定的玩家位址。
func bettorAddress(i int) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("flipvault-bettor-" + strconv.Itoa(i)))[12:])
}

const mask63 = uint64(1<<63) - 1

type seedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// state 走全週期（不重複），再用可逆 mix63 打散
//
// 注意：此方法可能在併發環境下被多 goroutines 同時呼叫。
// 因此 state 的推進必須是原子的：
//   - 使用 CAS（Compare-And-Swap）迴圈確保每次呼叫都會取得唯一的下一個 state。
//   - 回傳值使用推進後的 state 經 mix63 打散後的結果。
func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()                                            // always masked
		next := (old*6364136223846793005 + 1442695040888963407) & mask63 // full-period LCG mod 2^63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next)) // 一定非負
		}
	}
}

// mix63：只用「可逆」的 bit 操作 + 乘奇數（mod 2^63）
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63 // 乘奇數 ⇒ mod 2^63 可逆
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
