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
	"log/slog"
	"sync"
	"time"

	"github.com/zintix-labs/flipvault/errs"
)

// AutoFulfiller 模擬 oracle 節點：每個 tick 挖一個區塊，並回填已達確認數的請求。
// 實作 app.Component（Run 阻塞、Shutdown 結束）。
type AutoFulfiller struct {
	mock     *Mock
	interval time.Duration
	log      *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewAutoFulfiller(m *Mock, interval time.Duration, log *slog.Logger) *AutoFulfiller {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AutoFulfiller{
		mock:     m,
		interval: interval,
		log:      log.With("component", "vrf_autofulfill"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *AutoFulfiller) Run() error {
	defer close(a.done)
	t := time.NewTicker(a.interval)
	defer t.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		select {
		case <-a.stop:
			return nil
		case <-t.C:
			a.Tick(ctx)
		}
	}
}

// Tick 挖一個區塊並回填所有 ready 的請求，回傳成功筆數。
// 單筆失敗只記錄，不中斷其他請求；失敗的請求下一個 tick 會再試，
// consumer 作廢的請求已由 Mock 移除。
func (a *AutoFulfiller) Tick(ctx context.Context) int {
	a.mock.Mine(1)
	n := 0
	for _, r := range a.mock.Ready() {
		if ctx.Err() != nil {
			return n
		}
		if _, err := a.mock.FulfillRandomWords(ctx, r.ID, r.Consumer); err != nil {
			if errs.CodeOf(err) == CodeUnknownRequest {
				a.log.Debug("auto fulfill dropped request", "request_id", r.ID.String())
				continue
			}
			a.log.Warn("auto fulfill failed", "request_id", r.ID.String(), "err", err)
			continue
		}
		n++
	}
	return n
}

func (a *AutoFulfiller) Name() string { return "vrf_autofulfill" }

func (a *AutoFulfiller) Shutdown(ctx context.Context) error {
	a.once.Do(func() { close(a.stop) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
