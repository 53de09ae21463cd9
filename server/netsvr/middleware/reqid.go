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
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
)

// HeaderRequestID 同時用於讀取上游帶入的 id 與回寫給呼叫端。
const HeaderRequestID = "X-Request-Id"

// RequestID 為每個請求配發 id（沿用上游 X-Request-Id，否則由 chi 產生），
// 並回寫在 response header，方便對照 access log 與錯誤回報。
func RequestID(next http.Handler) http.Handler {
	return chimid.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimid.GetReqID(r.Context()); id != "" {
			w.Header().Set(HeaderRequestID, id)
		}
		next.ServeHTTP(w, r)
	}))
}

// GetReqId 取得目前請求的 id；未經過 RequestID 時回傳空字串。
func GetReqId(r *http.Request) string {
	return chimid.GetReqID(r.Context())
}
