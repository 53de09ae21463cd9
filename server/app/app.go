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

// Package app 管理 flipvault 節點各元件的啟動與關閉。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

const DefaultShutdownTimeout = 5 * time.Second

// App 並行啟動所有 Component；收到 SIGINT/SIGTERM、ctx 結束或任一元件停止時，
// 依註冊順序關閉全部元件。
//
// 註冊順序即關閉順序：HTTP server 先註冊，停止接單後才停背景 worker。
type App struct {
	comps   []Component
	log     *slog.Logger
	timeout time.Duration
}

func New() *App {
	return &App{
		log:     slog.New(slog.DiscardHandler),
		timeout: DefaultShutdownTimeout,
	}
}

// NewWith 建立 App 並依序註冊 comps。
func NewWith(comps ...Component) *App {
	a := New()
	for _, c := range comps {
		a.Register(c)
	}
	return a
}

func (a *App) Register(c Component) {
	if c == nil {
		return
	}
	a.comps = append(a.comps, c)
}

// WithLogger 設定啟停日誌的 logger；nil 忽略。
func (a *App) WithLogger(log *slog.Logger) *App {
	if log != nil {
		a.log = log.With("component", "app")
	}
	return a
}

// WithShutdownTimeout 設定整體關閉期限；<=0 忽略。
func (a *App) WithShutdownTimeout(d time.Duration) *App {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// Run 以 OS 信號（SIGINT/SIGTERM）作為結束條件呼叫 RunContext。
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 啟動所有元件並阻塞：
//   - ctx 結束：關閉全部元件，回傳 nil。
//   - 任一元件 Run 返回：關閉全部元件，回傳該元件的結果（可能為 nil）。
func (a *App) RunContext(ctx context.Context) error {
	if len(a.comps) == 0 {
		return nil
	}
	type exit struct {
		name string
		err  error
	}
	exitCh := make(chan exit, len(a.comps))
	for _, c := range a.comps {
		name := nameOf(c)
		a.log.Debug("component start", "name", name)
		go func(c Component) {
			exitCh <- exit{name: name, err: c.Run()}
		}(c)
	}

	var result error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested", "cause", context.Cause(ctx))
	case e := <-exitCh:
		if e.err != nil {
			a.log.Error("component stopped", "name", e.name, "err", e.err)
		} else {
			a.log.Info("component stopped", "name", e.name)
		}
		result = e.err
	}

	if err := a.Shutdown(); err != nil {
		a.log.Warn("shutdown incomplete", "err", err)
	}
	return result
}

// Shutdown 在 timeout 內依序關閉所有元件，回傳合併後的錯誤。
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	var errl []error
	for _, c := range a.comps {
		if err := c.Shutdown(ctx); err != nil {
			errl = append(errl, err)
			a.log.Warn("component shutdown", "name", nameOf(c), "err", err)
		}
	}
	return errors.Join(errl...)
}
