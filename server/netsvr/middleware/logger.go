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

package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// quietPrefixes 是被輪詢的路徑（健康檢查、Dev Panel），成功時降到 Debug。
var quietPrefixes = []string{"/healthz", "/dev/oracle", "/v1/vault"}

type accessRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	wrote  bool
}

func (r *accessRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *accessRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *accessRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog 每個請求輸出一筆 "http.access"（slog），欄位：
// request_id / method / path / status / bytes / latency。
//
// 等級：5xx → Error；409 以外的 4xx → Warn；其餘 Info（含 409 保留額不足、尚未過期）。
// log 為 nil 時不掛任何東西。
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &accessRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			lvl := levelByStatus(rw.status)
			if lvl == slog.LevelInfo && isQuietPath(r.URL.Path) {
				lvl = slog.LevelDebug
			}
			if !log.Enabled(r.Context(), lvl) {
				return
			}
			log.LogAttrs(
				r.Context(),
				lvl,
				"http.access",
				slog.String("request_id", GetReqId(r)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int("bytes", rw.bytes),
				slog.Duration("latency", time.Since(start)),
			)
		})
	}
}

func levelByStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status == http.StatusConflict:
		return slog.LevelInfo
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func isQuietPath(path string) bool {
	for _, p := range quietPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
