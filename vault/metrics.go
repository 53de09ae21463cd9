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
	"time"

	"github.com/holiman/uint256"
	metrics "github.com/rcrowley/go-metrics"
)

// vaultMetrics 每個 Vault 一組獨立 registry，避免多個 Vault（測試、模擬）互相污染。
type vaultMetrics struct {
	reg metrics.Registry

	flips           metrics.Counter
	wins            metrics.Counter
	losses          metrics.Counter
	refunds         metrics.Counter
	deposits        metrics.Counter
	withdrawals     metrics.Counter
	payoutFailures  metrics.Counter
	rejectedReserve metrics.Counter
	eventsDropped   metrics.Counter
	settle          metrics.Timer
}

func newVaultMetrics() *vaultMetrics {
	r := metrics.NewRegistry()
	return &vaultMetrics{
		reg:             r,
		flips:           metrics.NewRegisteredCounter("flips", r),
		wins:            metrics.NewRegisteredCounter("wins", r),
		losses:          metrics.NewRegisteredCounter("losses", r),
		refunds:         metrics.NewRegisteredCounter("refunds", r),
		deposits:        metrics.NewRegisteredCounter("deposits", r),
		withdrawals:     metrics.NewRegisteredCounter("withdrawals", r),
		payoutFailures:  metrics.NewRegisteredCounter("payout_failures", r),
		rejectedReserve: metrics.NewRegisteredCounter("rejected_reserve", r),
		eventsDropped:   metrics.NewRegisteredCounter("events_dropped", r),
		settle:          metrics.NewRegisteredTimer("settle_latency", r),
	}
}

// Metrics 是拉取式的指標快照。
type Metrics struct {
	Flips           int64 `json:"flips"`
	Wins            int64 `json:"wins"`
	Losses          int64 `json:"losses"`
	Refunds         int64 `json:"refunds"`
	Deposits        int64 `json:"deposits"`
	Withdrawals     int64 `json:"withdrawals"`
	PayoutFailures  int64 `json:"payout_failures"`
	RejectedReserve int64 `json:"rejected_reserve"`
	EventsDropped   int64 `json:"events_dropped"`

	SettleCount int64   `json:"settle_count"`
	SettleMeanS float64 `json:"settle_mean_s"`
	SettleP99S  float64 `json:"settle_p99_s"`

	Treasury  *uint256.Int `json:"treasury"`
	Liability *uint256.Int `json:"liability"`
	Pending   int          `json:"pending"`
}

// Metrics 回傳目前的計數器與帳本狀態。
func (v *Vault) Metrics() (Metrics, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, err := v.snapshotLocked()
	if err != nil {
		return Metrics{}, err
	}
	m := v.met
	st := m.settle.Snapshot()
	return Metrics{
		Flips:           m.flips.Count(),
		Wins:            m.wins.Count(),
		Losses:          m.losses.Count(),
		Refunds:         m.refunds.Count(),
		Deposits:        m.deposits.Count(),
		Withdrawals:     m.withdrawals.Count(),
		PayoutFailures:  m.payoutFailures.Count(),
		RejectedReserve: m.rejectedReserve.Count(),
		EventsDropped:   m.eventsDropped.Count(),
		SettleCount:     st.Count(),
		SettleMeanS:     st.Mean() / float64(time.Second),
		SettleP99S:      st.Percentile(0.99) / float64(time.Second),
		Treasury:        snap.Treasury,
		Liability:       snap.Liability,
		Pending:         snap.Pending,
	}, nil
}

// Registry 回傳底層 go-metrics registry，可交給外部 reporter。
func (v *Vault) Registry() metrics.Registry { return v.met.reg }
