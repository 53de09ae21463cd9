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

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/api"
	"github.com/zintix-labs/flipvault/server/app"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
)

// Run 是 server 套件的「組裝器（assembler）」與「啟動入口（runtime entry）」。
//
// 它負責：
//  1. 驗證輸入的 SvrCfg（包含必要依賴，例如 logger 與 vault）。
//  2. 依 sCfg.Net 建立 HTTP server（netsvr）。
//  3. 註冊路由與 middleware（api.RegisterRoutes）。
//  4. 把 server 與背景元件（例如 AutoFulfiller、Reaper）交給 app.Run() 並回傳停止原因。
//
// 注意：
//   - Run 不綁定任何「檔案路徑」或「環境變數」策略；所有依賴都應透過 SvrCfg 明確注入。
//   - workers 的關閉順序與傳入順序相同，server 永遠最先關閉，避免關閉期間還有新請求進來。
func Run(sCfg *svrcfg.SvrCfg, workers ...app.Component) error {
	if err := sCfg.Vaild(); err != nil {
		// 防止外層傳入的logger不可用
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	svr := netsvr.NewChiServer(sCfg.Net)
	return RunWithSvr(sCfg, svr, workers...)
}

// RunWithSvr 與 Run() 相同，但允許呼叫端注入自訂的 NetSvr
// （例如自己包裝的 adapter、自訂 listener 或 TLS 設定）。
//
// 重要行為與合約（contract）：
//   - svr 參數必須非 nil，且 Ready() 必須為 true（避免注入不完整的 server）。
//   - 正常關閉（收到 SIGINT/SIGTERM 或 http.ErrServerClosed）回傳 nil。
func RunWithSvr(sCfg *svrcfg.SvrCfg, svr netsvr.NetSvr, workers ...app.Component) error {
	if err := sCfg.Vaild(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if svr == nil {
		return errs.NewFatal("svr is required")
	}
	if !svr.Ready() {
		return errs.NewFatal("server is not ready: " + svr.Name())
	}

	// 註冊 Api
	if err := api.RegisterRoutes(svr, sCfg); err != nil {
		return err
	}

	// 運行
	a := app.NewWith(svr).WithLogger(sCfg.Log)
	for _, w := range workers {
		a.Register(w)
	}
	sCfg.Log.Info("[flipvault] listening",
		slog.String("addr", svr.Address()),
		slog.String("vault", sCfg.Vault.Address().Hex()),
		slog.Bool("dev_routes", sCfg.DevRoutes),
	)
	if err := a.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sCfg.Log.Error("app stopped", slog.Any("err", err))
		return err
	}
	return nil
}
