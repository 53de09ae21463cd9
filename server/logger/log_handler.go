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

// Package logger 組裝 flipvault 使用的 slog.Logger：console（dev 文字 / prod JSON）、
// 可選的輪替檔案，以及非阻塞的 AsyncHandler。
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type LogMode uint8

const (
	ModeDev LogMode = iota
	ModeProd
	ModeSilence
)

func (m LogMode) String() string {
	switch m {
	case ModeDev:
		return "dev"
	case ModeProd:
		return "prod"
	case ModeSilence:
		return "silence"
	}
	return "unknown"
}

func (m LogMode) level() slog.Level {
	if m == ModeDev {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// AsyncHandler 把任何 slog.Handler 包成非阻塞：Handle 只做 enqueue，
// 背景 goroutine 逐筆寫出。隊列滿時直接丟棄並計數，不把 I/O 延遲帶回請求路徑
// （flip / fulfill 的 handler 都在持鎖後打 log）。
//
// slog.Logger 會忽略 Handle 的 error，寫出失敗不會回報。
type AsyncHandler struct {
	next slog.Handler
	d    *asyncDispatcher
}

type asyncDispatcher struct {
	ch     chan asyncItem
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	dropCount atomic.Uint64
	// report 是最外層的 handler，Close 時用來補一筆丟棄統計。
	report slog.Handler
}

type asyncItem struct {
	ctx     context.Context
	rec     slog.Record
	handler slog.Handler
}

// NewAsyncHandler 以 buf 大小的隊列包裝 next；buf <= 0 時用 1024。
func NewAsyncHandler(next slog.Handler, buf int) *AsyncHandler {
	if next == nil {
		next = buildHandler(ModeDev)
	}
	if buf <= 0 {
		buf = 1024
	}

	d := &asyncDispatcher{
		ch:     make(chan asyncItem, buf),
		closed: make(chan struct{}),
		report: next,
	}

	d.wg.Add(1)
	go d.worker()

	return &AsyncHandler{next: next, d: d}
}

func (h *AsyncHandler) Ready() bool {
	return (h != nil && h.d != nil)
}

// Dropped 回傳因隊列滿或已關閉而丟棄的筆數。
func (h *AsyncHandler) Dropped() uint64 {
	if h == nil || h.d == nil {
		return 0
	}
	return h.d.dropCount.Load()
}

// Close 停止接收並 drain 隊列；有丟棄時同步補寫一筆 Warn。重複呼叫安全。
func (h *AsyncHandler) Close() {
	if h == nil || h.d == nil {
		return
	}
	first := false
	h.d.once.Do(func() {
		close(h.d.closed)
		first = true
	})
	h.d.wg.Wait()
	if !first {
		return
	}
	if n := h.d.dropCount.Load(); n > 0 && h.d.report.Enabled(context.Background(), slog.LevelWarn) {
		r := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped", 0)
		r.AddAttrs(slog.Uint64("dropped", n))
		_ = h.d.report.Handle(context.Background(), r)
	}
}

func (d *asyncDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case it := <-d.ch:
			it.write()
		case <-d.closed:
			for {
				select {
				case it := <-d.ch:
					it.write()
				default:
					return
				}
			}
		}
	}
}

func (it asyncItem) write() {
	if it.handler != nil {
		_ = it.handler.Handle(it.ctx, it.rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if h == nil || h.d == nil {
		return nil
	}

	select {
	case <-h.d.closed:
		h.d.dropCount.Add(1)
		return nil
	default:
	}

	// Record 跨 goroutine 前必須 Clone。
	it := asyncItem{ctx: context.WithoutCancel(ctx), rec: r.Clone(), handler: h.next}

	select {
	case h.d.ch <- it:
	default:
		h.d.dropCount.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), d: h.d}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), d: h.d}
}

// NewAsync 以 mode 的 console handler 建立非阻塞 logger。
func NewAsync(buf int, mode LogMode) (*slog.Logger, *AsyncHandler) {
	ah := NewAsyncHandler(buildHandler(mode), buf)
	return slog.New(ah), ah
}

// buildHandler 是 console 端的 handler：
//   - dev：文字、stderr、Debug 起，時間只留時分秒。
//   - prod：JSON、stdout、Info 起，帶 service 欄位給收集器分流。
//   - silence：全部丟棄。
func buildHandler(mode LogMode) slog.Handler {
	switch mode {
	case ModeProd:
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: mode.level(),
		}).WithAttrs([]slog.Attr{slog.String("service", "flipvault")})
	case ModeSilence:
		return slog.DiscardHandler
	default:
		return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       ModeDev.level(),
			ReplaceAttr: shortTime,
		})
	}
}

func shortTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().Format("15:04:05.000"))
	}
	return a
}
