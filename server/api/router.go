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

package api

import (
	"log/slog"
	"net/http"

	"github.com/zintix-labs/flipvault/dto"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/api/dev"
	v1 "github.com/zintix-labs/flipvault/server/api/v1"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/server/netsvr/middleware"
	"github.com/zintix-labs/flipvault/server/svrcfg"
)

// RegisterRoutes 註冊
func RegisterRoutes(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	registerMiddleware(svr, sCfg.Log) // 1. 註冊 middleware
	registerIndex(svr)                // 2. 註冊主頁與健康檢查

	// 3. 開發者工具頁（僅本地 coordinator）
	if sCfg.DevRoutes {
		dev.Register(svr, sCfg)
	}
	// 4. 註冊 v1 api
	return registerV1API(svr, sCfg)
}

// 註冊 middleware
func registerMiddleware(svr netsvr.NetSvr, log *slog.Logger) {
	svr.Use(middleware.RequestID)
	svr.Use(middleware.AccessLog(log))
	svr.Use(middleware.Recover(log))
	svr.Use(middleware.Compression)
}

type indexResponse struct {
	Service string   `json:"service"`
	Routes  []string `json:"routes"`
}

var routes = []string{
	"GET  /v1/vault",
	"POST /v1/deposit",
	"POST /v1/withdraw",
	"POST /v1/flip",
	"POST /v1/expire",
	"GET  /v1/wagers",
	"GET  /v1/wagers/{id}",
	"GET  /v1/events?from=&limit=",
	"GET  /v1/metrics",
	"GET  /v1/balance/{addr}",
	"POST /v1/sim",
}

// 註冊主頁
func registerIndex(svr netsvr.NetSvr) {
	svr.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_ = dto.Write(w, http.StatusOK, indexResponse{Service: "flipvault", Routes: routes})
	})
	svr.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = dto.Write(w, http.StatusOK, dto.OK)
	})
}

// 註冊 v1 api
func registerV1API(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	h, err := v1.NewVaultHandler(sCfg)
	if err != nil {
		return errs.Wrap(err, "register v1 routes failed")
	}
	s := v1.NewSimHandler(sCfg)
	svr.Group("/v1", func(vOne netsvr.NetRouter) {
		vOne.Get("/vault", h.Info)
		vOne.Get("/wagers", h.Wagers)
		vOne.Get("/wagers/{id}", h.Wager)
		vOne.Get("/events", h.Events)
		vOne.Get("/metrics", h.Metrics)
		vOne.Get("/balance/{addr}", h.Balance)

		// 資金操作需要 from 的簽章
		signed := sCfg.Auth.Require
		vOne.Post("/deposit", signed(h.Deposit))
		vOne.Post("/withdraw", signed(h.Withdraw))
		vOne.Post("/flip", signed(h.Flip))
		vOne.Post("/expire", signed(h.Expire))
		vOne.Post("/sim", s.Sim)
	})
	return nil
}
