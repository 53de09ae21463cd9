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
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/httperr"
)

// Recover 攔截 handler 的 panic，記一筆 Error（含 stack）並回傳 JSON 500。
//
// http.ErrAbortHandler 是 net/http 約定的中止訊號，照原樣往上拋。
// log 為 nil 時只回應、不記錄。
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if log != nil {
					log.LogAttrs(r.Context(), slog.LevelError, "http.panic",
						slog.String("request_id", GetReqId(r)),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)
				}
				// 連線升級後無法再寫回應
				if r.Header.Get("Connection") == "Upgrade" {
					return
				}
				httperr.Errs(w, errs.NewFatal(fmt.Sprintf("internal error: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
