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

package svrcfg

import (
	"log/slog"
	"time"

	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/auth"
	"github.com/zintix-labs/flipvault/server/logger"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

// SvrCfg 是 server 層需要的全部依賴，由 cmd/svr 或測試組裝後注入。
type SvrCfg struct {
	Log    *slog.Logger
	Vault  *vault.Vault
	Oracle *vrf.Mock // 本地 coordinator；nil 時不註冊 /dev 路由
	Net    netsvr.Options
	Auth   *auth.Verifier // 驗證 /v1 資金操作的簽章；nil 時用 auth.DefaultWindow

	DevRoutes      bool
	RequestTimeout time.Duration // 每個請求的處理上限，預設 5s
}

// Vaild 補上預設值並檢查必要依賴。
func (sc *SvrCfg) Vaild() error {
	if sc.Log != nil {
		if ah, ok := sc.Log.Handler().(*logger.AsyncHandler); ok && !ah.Ready() {
			return errs.NewFatal("nil default log handler: async handler is nil")
		}
	} else {
		// 未注入 logger 時保持安靜
		sc.Log, _ = logger.NewAsync(1024, logger.ModeSilence)
	}

	// 1s <= RequestTimeout <= 60s
	if sc.RequestTimeout <= 0 {
		sc.RequestTimeout = 5 * time.Second
	}
	sc.RequestTimeout = max(time.Second, sc.RequestTimeout)
	sc.RequestTimeout = min(time.Minute, sc.RequestTimeout)
	// handler 的 ctx 必須比 server 的寫出期限先到，才能回出 504 而不是斷線
	if wt := sc.Net.WriteTimeout; wt > time.Second && sc.RequestTimeout >= wt {
		sc.RequestTimeout = wt - time.Second/2
	}
	if sc.Auth == nil {
		sc.Auth = auth.NewVerifier(auth.DefaultWindow, nil)
	}
	if sc.Vault == nil {
		return errs.NewFatal("vault is required")
	}
	if sc.DevRoutes && sc.Oracle == nil {
		return errs.NewFatal("dev routes require the local oracle")
	}
	return nil
}
