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

package v1

import (
	"net/http"

	"github.com/zintix-labs/flipvault"
	"github.com/zintix-labs/flipvault/dto"
	"github.com/zintix-labs/flipvault/server/httperr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
)

// SimHandler 在獨立的記憶體 vault 上跑模擬，不會動到服務中的 vault。
type SimHandler struct {
	cfg *svrcfg.SvrCfg
}

func NewSimHandler(sCfg *svrcfg.SvrCfg) *SimHandler {
	return &SimHandler{cfg: sCfg}
}

// Sim 執行一次模擬並回傳報表。請求取消時模擬會中止。
func (h *SimHandler) Sim(w http.ResponseWriter, r *http.Request) {
	req := new(dto.SimRequest)
	if err := dto.DecodeJSON(r, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	cfg, err := req.Parse()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	s, err := flipvault.NewSimulator(cfg)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	res, err := s.Run(r.Context())
	if err != nil {
		httperr.Log(h.cfg.Log, "sim", err)
		httperr.Errs(w, err)
		return
	}
	h.cfg.Log.Info("sim done",
		"seed", res.Report.Summary.Seed,
		"bettors", res.Report.Summary.Bettors,
		"flips", res.Report.Summary.Flips,
		"used", res.Used.String(),
	)
	if err := dto.Write(w, http.StatusOK, dto.NewSimResponse(res)); err != nil {
		h.cfg.Log.Warn("write response failed", "err", err)
	}
}
