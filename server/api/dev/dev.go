// Package dev 提供本地開發網路的「Dev Panel」HTTP endpoints。
//
// 目的：
//   - 沒有真實鏈與 oracle 時，讓開發者手動推進區塊、回填亂數、發錢給測試帳號。
//   - 可以指定亂數字（words）回填，重現特定結果（例如必贏/必輸、付款失敗）。
//
// 注意（ contract ）：
//   - 這不是 production API；只有在注入本地 coordinator（vrf.Mock）時才會註冊。
//   - 錯誤處理與 /v1 相同，走 `httperr.Errs`。
package dev

import (
	"context"
	"net/http"

	"github.com/zintix-labs/flipvault/dto"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/httperr"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
	"github.com/zintix-labs/flipvault/vault"
)

// 單次 /dev/mine 最多推進的區塊數
const maxMineBlocks = 10_000

type mineRequest struct {
	Blocks uint64 `json:"blocks"`
}

type rejectRequest struct {
	Address string `json:"address"`
	Reject  bool   `json:"reject"`
}

// Register 註冊 Dev Panel 的 routes。
//
// Routes：
//   - GET  /dev          ：Dev Panel HTML（內嵌 JS）。
//   - GET  /dev/oracle   ：coordinator 狀態（區塊高度、待回填請求、subscription）。
//   - POST /dev/fulfill  ：回填指定 request；words 省略時用 coordinator 的亂數。
//   - POST /dev/mine     ：推進區塊（讓 confirmations 成立）。
//   - POST /dev/faucet   ：鑄幣給測試帳號。
//   - POST /dev/reject   ：切換帳號是否拒收轉帳（重現 PayoutTransferFailed）。
func Register(svr netsvr.NetRouter, cfg *svrcfg.SvrCfg) {
	svr.Get("/dev", devPage)
	svr.Get("/dev/oracle", devOracle(cfg))
	svr.Post("/dev/fulfill", devFulfill(cfg))
	svr.Post("/dev/mine", devMine(cfg))
	svr.Post("/dev/faucet", devFaucet(cfg))
	svr.Post("/dev/reject", devReject(cfg))
}

func devPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(devPageHTML))
}

func devOracle(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Oracle == nil {
			httperr.Errs(w, errs.NewFatal("local oracle is required"))
			return
		}
		_ = dto.Write(w, http.StatusOK, cfg.Oracle.Info())
	}
}

func devFulfill(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(dto.OracleFulfillRequest)
		if err := dto.DecodeJSON(r, req); err != nil {
			httperr.Errs(w, err)
			return
		}
		id, words, err := req.Parse()
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		if cfg.Oracle == nil {
			httperr.Errs(w, errs.NewFatal("local oracle is required"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()
		consumer := cfg.Vault.Address()
		if words == nil {
			res, err := cfg.Oracle.FulfillRandomWords(ctx, id, consumer)
			if err != nil {
				httperr.Log(cfg.Log, "dev fulfill", err)
				httperr.Errs(w, err)
				return
			}
			_ = dto.Write(w, http.StatusOK, res)
			return
		}
		res, err := cfg.Oracle.FulfillRandomWordsWithOverride(ctx, id, consumer, words)
		if err != nil {
			httperr.Log(cfg.Log, "dev fulfill", err)
			httperr.Errs(w, err)
			return
		}
		_ = dto.Write(w, http.StatusOK, res)
	}
}

func devMine(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(mineRequest)
		if err := dto.DecodeJSON(r, req); err != nil {
			httperr.Errs(w, err)
			return
		}
		if req.Blocks < 1 || req.Blocks > maxMineBlocks {
			httperr.Errs(w, vault.ErrInvalidArgument.With("blocks must be in [1, 10000]"))
			return
		}
		if cfg.Oracle == nil {
			httperr.Errs(w, errs.NewFatal("local oracle is required"))
			return
		}
		cfg.Oracle.Mine(req.Blocks)
		_ = dto.Write(w, http.StatusOK, cfg.Oracle.Info())
	}
}

func devFaucet(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(dto.FaucetRequest)
		if err := dto.DecodeJSON(r, req); err != nil {
			httperr.Errs(w, err)
			return
		}
		to, amt, err := req.Parse()
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()
		if err := cfg.Vault.Mint(ctx, to, amt); err != nil {
			httperr.Log(cfg.Log, "dev faucet", err)
			httperr.Errs(w, err)
			return
		}
		bal, err := cfg.Vault.Balance(to)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		_ = dto.Write(w, http.StatusOK, dto.BalanceView{Address: to, Balance: dto.NewAmount(bal)})
	}
}

func devReject(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(rejectRequest)
		if err := dto.DecodeJSON(r, req); err != nil {
			httperr.Errs(w, err)
			return
		}
		addr, err := dto.ParseAddress("address", req.Address)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()
		if err := cfg.Vault.SetRejectPayments(ctx, addr, req.Reject); err != nil {
			httperr.Errs(w, err)
			return
		}
		_ = dto.Write(w, http.StatusOK, dto.OK)
	}
}

// devPageHTML 是內嵌的 Dev Panel UI。
//
// UI 行為：
//   - 每 2 秒輪詢 /v1/vault 與 /dev/oracle。
//   - 待回填請求列表可逐筆 Fulfill；Words 欄位留空則用 coordinator 亂數。
const devPageHTML = `<!doctype html>
<html lang="zh-Hant">
<head>
  <meta charset="utf-8" />
  <title>FlipVault Dev</title>
  <style>
    body { font-family: -apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif; background:#0f172a; color:#e2e8f0; margin:0; }
    .wrap { max-width: 980px; margin: 24px auto; padding: 16px 20px; background:#111827; border:1px solid #1f2937; border-radius:12px; }
    h1 { margin: 0 0 16px; font-size: 22px; }
    h2 { font-size: 15px; color:#94a3b8; margin: 18px 0 8px; }
    .grid { display:grid; grid-template-columns: repeat(auto-fit, minmax(180px,1fr)); gap:12px; margin-bottom:12px; }
    label { display:flex; flex-direction:column; gap:6px; font-size: 13px; color:#cbd5e1; }
    input { background:#0b1224; color:#e2e8f0; border:1px solid #1f2738; border-radius:8px; padding:8px 10px; font-size:14px; }
    button { cursor:pointer; border:none; border-radius:10px; padding:8px 12px; font-weight:600; background:#38bdf8; color:#0b1224; }
    pre { background:#0b1224; border:1px solid #1f2738; border-radius:12px; padding:12px; overflow:auto; font-size:12px; }
    table { width:100%; border-collapse:collapse; font-family: ui-monospace, Menlo, Consolas, monospace; font-size:12px; }
    td, th { border-bottom:1px solid #1f2937; padding:6px; text-align:left; }
    .info { font-size:13px; color:#94a3b8; min-height:1.2em; }
    .info.warn { color:#f87171; font-weight:600; }
  </style>
</head>
<body>
<div class="wrap">
  <h1>FlipVault Dev</h1>
  <div id="info" class="info"></div>
  <h2>Vault</h2>
  <pre id="vault"></pre>
  <h2>Pending requests</h2>
  <table><thead><tr><th>request</th><th>block</th><th>conf</th><th>words</th><th></th></tr></thead><tbody id="pending"></tbody></table>
  <h2>Oracle</h2>
  <div class="grid">
    <label>Blocks<input id="blocks" value="1" /></label>
    <label>&nbsp;<button id="btn-mine">Mine</button></label>
  </div>
  <h2>Faucet</h2>
  <div class="grid">
    <label>To<input id="to" placeholder="0x..." /></label>
    <label>Amount<input id="amount" value="1eth" /></label>
    <label>&nbsp;<button id="btn-faucet">Mint</button></label>
  </div>
</div>
<script>
const $ = (id) => document.getElementById(id);
function setInfo(text, warn) { $("info").textContent = text || ""; $("info").className = warn ? "info warn" : "info"; }
async function call(method, url, body) {
  const res = await fetch(url, { method, headers: { "Content-Type": "application/json" }, body: body ? JSON.stringify(body) : undefined });
  const data = await res.json();
  if (!res.ok) { throw new Error((data.code || res.status) + ": " + data.error); }
  return data;
}
async function refresh() {
  try {
    $("vault").textContent = JSON.stringify(await call("GET", "/v1/vault"), null, 2);
    const info = await call("GET", "/dev/oracle");
    const rows = (info.pending || []).map((p) =>
      "<tr><td>" + p.request_id + "</td><td>" + p.block + "</td><td>" + p.confirmations +
      "</td><td><input data-words=\"" + p.request_id + "\" placeholder=\"auto\" /></td>" +
      "<td><button data-fulfill=\"" + p.request_id + "\">Fulfill</button></td></tr>");
    $("pending").innerHTML = rows.join("");
  } catch (e) { setInfo(e.message, true); }
}
document.addEventListener("click", async (ev) => {
  const id = ev.target.getAttribute && ev.target.getAttribute("data-fulfill");
  if (!id) return;
  const raw = document.querySelector("[data-words=\"" + id + "\"]").value.trim();
  const body = { request_id: id };
  if (raw) body.words = raw.split(",").map((s) => s.trim());
  try { await call("POST", "/dev/fulfill", body); setInfo("fulfilled " + id); } catch (e) { setInfo(e.message, true); }
  refresh();
});
$("btn-mine").onclick = async () => {
  try { await call("POST", "/dev/mine", { blocks: parseInt($("blocks").value, 10) }); setInfo("mined"); } catch (e) { setInfo(e.message, true); }
  refresh();
};
$("btn-faucet").onclick = async () => {
  try { const b = await call("POST", "/dev/faucet", { to: $("to").value, amount: $("amount").value }); setInfo("balance " + b.balance.eth + " eth"); } catch (e) { setInfo(e.message, true); }
  refresh();
};
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`
