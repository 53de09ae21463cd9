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
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/zintix-labs/flipvault/dto"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/auth"
	"github.com/zintix-labs/flipvault/server/httperr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

// VaultHandler 把 vault 的操作暴露成 /v1 endpoints。
// 會動到資金的 POST 由 auth.Verifier.Require 包住，body 的 from 必須等於簽署者。
// 亂數回填不在 /v1：只有 coordinator 能呼叫，本地網路走 /dev/fulfill。
type VaultHandler struct {
	cfg *svrcfg.SvrCfg
	v   *vault.Vault
}

func NewVaultHandler(sCfg *svrcfg.SvrCfg) (*VaultHandler, error) {
	if sCfg == nil || sCfg.Vault == nil {
		return nil, errs.NewFatal("vault is required")
	}
	if sCfg.Auth == nil {
		return nil, errs.NewFatal("request verifier is required")
	}
	return &VaultHandler{cfg: sCfg, v: sCfg.Vault}, nil
}

func (h *VaultHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
}

// fail 寫回錯誤並依 status 記錄 log。
func (h *VaultHandler) fail(w http.ResponseWriter, msg string, err error) {
	httperr.Log(h.cfg.Log, msg, err)
	httperr.Errs(w, err)
}

// caller 確認 from 就是簽署這個請求的人。
func caller(r *http.Request, from common.Address) error {
	signer, ok := auth.SignerFrom(r.Context())
	if !ok {
		return auth.ErrUnauthenticated.With("request is not signed")
	}
	if signer != from {
		return vault.ErrAccessDenied.With("from " + from.Hex() + " is not the signer " + signer.Hex())
	}
	return nil
}

func (h *VaultHandler) ok(w http.ResponseWriter, v any) {
	if err := dto.Write(w, http.StatusOK, v); err != nil {
		h.cfg.Log.Warn("write response failed", "err", err)
	}
}

// Info 回傳 treasury / liability / available 與各方位址。
func (h *VaultHandler) Info(w http.ResponseWriter, r *http.Request) {
	snap, err := h.v.Snapshot()
	if err != nil {
		h.fail(w, "vault snapshot", err)
		return
	}
	h.ok(w, dto.NewVaultView(snap))
}

func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	req := new(dto.TransferRequest)
	if err := dto.DecodeJSON(r, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	from, amt, err := req.Parse()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if err := caller(r, from); err != nil {
		httperr.Errs(w, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	if err := h.v.Deposit(ctx, from, amt); err != nil {
		h.fail(w, "deposit", err)
		return
	}
	h.Info(w, r)
}

func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req := new(dto.TransferRequest)
	if err := dto.DecodeJSON(r, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	from, amt, err := req.Parse()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if err := caller(r, from); err != nil {
		httperr.Errs(w, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	if err := h.v.Withdraw(ctx, from, amt); err != nil {
		h.fail(w, "withdraw", err)
		return
	}
	h.Info(w, r)
}

// Flip 下注並回傳 oracle 的 request id；結果要等回填後才會出現在事件裡。
func (h *VaultHandler) Flip(w http.ResponseWriter, r *http.Request) {
	req := new(dto.FlipRequest)
	if err := dto.DecodeJSON(r, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	from, side, stake, err := req.Parse()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if err := caller(r, from); err != nil {
		httperr.Errs(w, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	id, err := h.v.Flip(ctx, from, side, stake)
	if err != nil {
		h.fail(w, "flip", err)
		return
	}
	h.ok(w, dto.FlipResponse{RequestID: id})
}

func (h *VaultHandler) Expire(w http.ResponseWriter, r *http.Request) {
	req := new(dto.ExpireRequest)
	if err := dto.DecodeJSON(r, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	from, id, err := req.Parse()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if err := caller(r, from); err != nil {
		httperr.Errs(w, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	wg, err := h.v.Expire(ctx, from, id)
	if err != nil {
		h.fail(w, "expire", err)
		return
	}
	h.ok(w, dto.NewWagerView(wg))
}

func (h *VaultHandler) Wagers(w http.ResponseWriter, r *http.Request) {
	ws, err := h.v.Pending()
	if err != nil {
		h.fail(w, "list wagers", err)
		return
	}
	h.ok(w, dto.NewWagerViews(ws))
}

func (h *VaultHandler) Wager(w http.ResponseWriter, r *http.Request) {
	id, err := vrf.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	wg, err := h.v.Wager(id)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	h.ok(w, dto.NewWagerView(wg))
}

func (h *VaultHandler) Events(w http.ResponseWriter, r *http.Request) {
	q, err := dto.DecodeEventsQuery(r)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	evs, err := h.v.Events(q.From, q.Limit)
	if err != nil {
		h.fail(w, "list events", err)
		return
	}
	last, err := h.v.LastEventSeq()
	if err != nil {
		h.fail(w, "last event seq", err)
		return
	}
	h.ok(w, dto.NewEventsPage(evs, q.From, last))
}

func (h *VaultHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.v.Metrics()
	if err != nil {
		h.fail(w, "metrics", err)
		return
	}
	h.ok(w, m)
}

func (h *VaultHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, err := dto.ParseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	bal, err := h.v.Balance(addr)
	if err != nil {
		h.fail(w, "balance", err)
		return
	}
	h.ok(w, dto.BalanceView{Address: addr, Balance: dto.NewAmount(bal)})
}
