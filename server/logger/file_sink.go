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

package logger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/zintix-labs/flipvault/errs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink 設定輪替寫檔。檔案一律寫 JSON（給收集器解析），與 console 輸出並存。
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options 是 Build 的組裝參數。
type Options struct {
	Mode LogMode
	// AsyncBuffer > 0 時整體包一層 AsyncHandler。
	AsyncBuffer int
	File        *FileSink
}

// ParseMode 把設定字串（dev / prod / silence，大小寫不拘，可帶 Mode 前綴）轉成 LogMode。
func ParseMode(s string) (LogMode, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "mode") {
	case "dev", "":
		return ModeDev, nil
	case "prod":
		return ModeProd, nil
	case "silence":
		return ModeSilence, nil
	}
	return ModeDev, errs.Fatalf("unknown log mode %q", s)
}

// Build 依 Options 組裝 logger，回傳的 close 會 drain async buffer 並關閉檔案。
func Build(opt Options) (*slog.Logger, func() error) {
	var (
		h       slog.Handler = buildHandler(opt.Mode)
		closers []func() error
	)
	if opt.File != nil && opt.File.Path != "" && opt.Mode != ModeSilence {
		lj := &lumberjack.Logger{
			Filename:   opt.File.Path,
			MaxSize:    opt.File.MaxSizeMB,
			MaxBackups: opt.File.MaxBackups,
			MaxAge:     opt.File.MaxAgeDays,
			Compress:   opt.File.Compress,
		}
		fh := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: opt.Mode.level()})
		h = &teeHandler{hs: []slog.Handler{h, fh}}
		closers = append(closers, lj.Close)
	}
	if opt.AsyncBuffer > 0 {
		ah := NewAsyncHandler(h, opt.AsyncBuffer)
		h = ah
		// async 必須先 drain，再關檔
		closers = append([]func() error{func() error { ah.Close(); return nil }}, closers...)
	}
	closeAll := func() error {
		var el []error
		for _, c := range closers {
			if err := c(); err != nil {
				el = append(el, err)
			}
		}
		return errors.Join(el...)
	}
	return slog.New(h), closeAll
}

// teeHandler 把同一筆 record 寫到多個 handler。
type teeHandler struct {
	hs []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var el []error
	for _, h := range t.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			el = append(el, err)
		}
	}
	return errors.Join(el...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.hs))
	for i, h := range t.hs {
		hs[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{hs: hs}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.hs))
	for i, h := range t.hs {
		hs[i] = h.WithGroup(name)
	}
	return &teeHandler{hs: hs}
}
