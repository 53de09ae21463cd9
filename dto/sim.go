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

package dto

import (
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/stats"
	"github.com/zintix-labs/flipvault/vault"
)

// HTTP 模擬的上限，比 CLI 更嚴格
const (
	MaxHTTPSimFlips   = 2_000_000 // bettors × flips
	MaxHTTPSimWorkers = 16
)

// SimRequest 是 /v1/sim 的輸入；省略的欄位使用預設值。
type SimRequest struct {
	Bettors     int    `json:"bettors"`
	Flips       int    `json:"flips"`
	Batch       int    `json:"batch"`
	Workers     int    `json:"workers"`
	Stake       string `json:"stake"`
	InitBalance string `json:"init_balance"`
	Bankroll    string `json:"bankroll"`
	Seed        int64  `json:"seed"`
}

// SimResponse 是 /v1/sim 的輸出。
type SimResponse struct {
	Report    *stats.SessionReport    `json:"report"`
	Estimator *stats.EstimatorBettors `json:"estimator"`
	Used      string                  `json:"used"`
}

func (r *SimRequest) withDefaults() {
	if r.Bettors == 0 {
		r.Bettors = 100
	}
	if r.Flips == 0 {
		r.Flips = 100
	}
	if r.Stake == "" {
		r.Stake = "0.01eth"
	}
	if r.InitBalance == "" {
		r.InitBalance = "1eth"
	}
	if r.Bankroll == "" {
		r.Bankroll = "1000eth"
	}
}

// Parse 套用預設值並轉成 flipvault.SimConfig。
func (r *SimRequest) Parse() (flipvault.SimConfig, error) {
	r.withDefaults()
	if r.Bettors < 1 || r.Flips < 1 || r.Bettors*r.Flips > MaxHTTPSimFlips {
		return flipvault.SimConfig{}, vault.ErrInvalidArgument.With("bettors × flips must be in [1, 2000000]")
	}
	if r.Workers < 0 || r.Workers > MaxHTTPSimWorkers {
		return flipvault.SimConfig{}, vault.ErrInvalidArgument.With("workers must be in [0, 16]")
	}
	if r.Batch < 0 || r.Batch > flipvault.MaxSimBatch {
		return flipvault.SimConfig{}, vault.ErrInvalidArgument.With("batch out of range")
	}
	stake, err := parseAmount("stake", r.Stake)
	if err != nil {
		return flipvault.SimConfig{}, err
	}
	initBal, err := parseAmount("init_balance", r.InitBalance)
	if err != nil {
		return flipvault.SimConfig{}, err
	}
	bank, err := parseAmount("bankroll", r.Bankroll)
	if err != nil {
		return flipvault.SimConfig{}, err
	}
	return flipvault.SimConfig{
		Bettors:     r.Bettors,
		Flips:       r.Flips,
		Batch:       r.Batch,
		Workers:     r.Workers,
		Stake:       stake,
		InitBalance: initBal,
		Bankroll:    bank,
		Seed:        r.Seed,
	}, nil
}

// NewSimResponse 把模擬結果轉成輸出格式。
func NewSimResponse(res *flipvault.SimResult) SimResponse {
	return SimResponse{Report: res.Report, Estimator: res.Estimator, Used: res.Used.String()}
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := money.ParseAmount(s)
	if err != nil {
		return nil, errs.WrapWithExtra(err, field+" invalid", s)
	}
	return v, nil
}
