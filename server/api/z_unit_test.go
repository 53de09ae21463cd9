package api

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault"
	"github.com/zintix-labs/flipvault/config"
	"github.com/zintix-labs/flipvault/dto"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/server/auth"
	"github.com/zintix-labs/flipvault/server/httperr"
	"github.com/zintix-labs/flipvault/server/logger"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
)

type harness struct {
	t    *testing.T
	node *flipvault.Node
	svr  *netsvr.ChiAdapter

	principal, player, mallory *ecdsa.PrivateKey
	nonce                      int
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func mustWei(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := money.ParseAmount(s)
	if err != nil {
		t.Fatalf("amount %q: %v", s, err)
	}
	return v
}

func addr(k *ecdsa.PrivateKey) string { return crypto.PubkeyToAddress(k.PublicKey).Hex() }

func newHarness(t *testing.T, devRoutes bool) *harness {
	t.Helper()
	h := &harness{t: t, principal: newKey(t), player: newKey(t), mallory: newKey(t)}
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Store.Backend = "memory"
	cfg.Oracle.Seed = 1
	cfg.Vault.Principal = addr(h.principal)
	node, err := flipvault.NewNode(cfg, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(func() { _ = node.Close() })

	log, _ := logger.NewAsync(64, logger.ModeSilence)
	sCfg := &svrcfg.SvrCfg{Log: log, Vault: node.Vault, Oracle: node.Oracle, DevRoutes: devRoutes}
	if err := sCfg.Vaild(); err != nil {
		t.Fatalf("svrcfg: %v", err)
	}
	svr := netsvr.NewChiServerDefault()
	if err := RegisterRoutes(svr, sCfg); err != nil {
		t.Fatalf("register routes: %v", err)
	}
	h.node, h.svr = node, svr
	return h
}

// request 組出請求；key 不為 nil 時以 key 簽署。
func (h *harness) request(method, path string, key *ecdsa.PrivateKey, body any) *http.Request {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	raw := buf.Bytes()
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		h.nonce++
		if err := auth.Sign(req, key, raw, time.Now().Add(time.Minute), strconv.Itoa(h.nonce)); err != nil {
			h.t.Fatalf("sign: %v", err)
		}
	}
	return req
}

func (h *harness) serve(req *http.Request, out any) int {
	h.t.Helper()
	rec := httptest.NewRecorder()
	h.svr.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			h.t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (h *harness) do(method, path string, key *ecdsa.PrivateKey, body any, out any) int {
	h.t.Helper()
	return h.serve(h.request(method, path, key, body), out)
}

func (h *harness) mustOK(method, path string, key *ecdsa.PrivateKey, body any, out any) {
	h.t.Helper()
	var raw json.RawMessage
	if code := h.do(method, path, key, body, &raw); code != http.StatusOK {
		h.t.Fatalf("%s %s: status %d body %s", method, path, code, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			h.t.Fatalf("decode: %v", err)
		}
	}
}

func (h *harness) expectErr(method, path string, key *ecdsa.PrivateKey, body any, status int, code string) {
	h.t.Helper()
	var e httperr.Body
	if got := h.do(method, path, key, body, &e); got != status {
		h.t.Fatalf("%s %s: status %d want %d (%+v)", method, path, got, status, e)
	}
	if e.Code != code {
		h.t.Fatalf("%s %s: code %q want %q", method, path, e.Code, code)
	}
}

// fund 鑄幣給 principal 並存進 vault，再鑄幣給 player。
func (h *harness) fund(bankroll, playerBal string) {
	h.t.Helper()
	principal := addr(h.principal)
	h.mustOK(http.MethodPost, "/dev/faucet", nil, dto.FaucetRequest{To: principal, Amount: bankroll}, nil)
	h.mustOK(http.MethodPost, "/v1/deposit", h.principal, dto.TransferRequest{From: principal, Amount: bankroll}, nil)
	h.mustOK(http.MethodPost, "/dev/faucet", nil, dto.FaucetRequest{To: addr(h.player), Amount: playerBal}, nil)
}

func TestIndexAndHealth(t *testing.T) {
	h := newHarness(t, false)
	var idx indexResponse
	h.mustOK(http.MethodGet, "/", nil, nil, &idx)
	if idx.Service != "flipvault" || len(idx.Routes) == 0 {
		t.Fatalf("index = %+v", idx)
	}
	var st dto.StatusResponse
	h.mustOK(http.MethodGet, "/healthz", nil, nil, &st)
	if st.Status != "ok" {
		t.Fatalf("healthz = %+v", st)
	}
}

func TestDevRoutesDisabled(t *testing.T) {
	h := newHarness(t, false)
	if code := h.do(http.MethodGet, "/dev/oracle", nil, nil, nil); code != http.StatusNotFound {
		t.Fatalf("dev route status = %d", code)
	}
}

func TestFlipRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	principal, player := addr(h.principal), addr(h.player)

	h.mustOK(http.MethodPost, "/dev/faucet", nil, dto.FaucetRequest{To: principal, Amount: "10eth"}, nil)
	var vv dto.VaultView
	h.mustOK(http.MethodPost, "/v1/deposit", h.principal, dto.TransferRequest{From: principal, Amount: "10eth"}, &vv)
	if vv.Treasury.Eth != "10" || vv.Available.Eth != "10" {
		t.Fatalf("after deposit: %+v", vv)
	}

	h.mustOK(http.MethodPost, "/dev/faucet", nil, dto.FaucetRequest{To: player, Amount: "1eth"}, nil)
	var fr dto.FlipResponse
	h.mustOK(http.MethodPost, "/v1/flip", h.player, dto.FlipRequest{From: player, Side: "heads", Stake: "0.5eth"}, &fr)

	var ws []dto.WagerView
	h.mustOK(http.MethodGet, "/v1/wagers", nil, nil, &ws)
	if len(ws) != 1 || ws[0].RequestID != fr.RequestID || ws[0].Reserve.Eth != "1" {
		t.Fatalf("wagers = %+v", ws)
	}
	var one dto.WagerView
	h.mustOK(http.MethodGet, "/v1/wagers/"+fr.RequestID.String(), nil, nil, &one)
	if one.Player != common.HexToAddress(player) {
		t.Fatalf("wager player = %s", one.Player.Hex())
	}
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Liability.Eth != "1" || vv.Available.Eth != "9.5" || vv.Pending != 1 {
		t.Fatalf("while pending: %+v", vv)
	}

	// 偶數 word => heads，玩家贏
	h.mustOK(http.MethodPost, "/dev/fulfill", nil, dto.OracleFulfillRequest{RequestID: fr.RequestID.String(), Words: []string{"2"}}, nil)

	var bal dto.BalanceView
	h.mustOK(http.MethodGet, "/v1/balance/"+player, nil, nil, &bal)
	if bal.Balance.Eth != "1.5" {
		t.Fatalf("player balance = %+v", bal.Balance)
	}
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Treasury.Eth != "9.5" || vv.Liability.Eth != "0" || vv.Pending != 0 {
		t.Fatalf("after settle: %+v", vv)
	}

	var page dto.EventsPage
	h.mustOK(http.MethodGet, "/v1/events?from=1&limit=10", nil, nil, &page)
	if len(page.Events) != 3 || page.Last != 3 || page.Next != 4 {
		t.Fatalf("events page: next=%d last=%d n=%d", page.Next, page.Last, len(page.Events))
	}
	if page.Events[2].Kind != "CoinFlipped" || !page.Events[2].Won {
		t.Fatalf("last event = %+v", page.Events[2])
	}

	var met map[string]any
	h.mustOK(http.MethodGet, "/v1/metrics", nil, nil, &met)
	if len(met) == 0 {
		t.Fatalf("metrics empty")
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, true)
	h.fund("1eth", "5eth")
	principal, player := addr(h.principal), addr(h.player)

	// player 自己簽章，但不是 principal
	h.expectErr(http.MethodPost, "/v1/withdraw", h.player, dto.TransferRequest{From: player, Amount: "1eth"}, http.StatusForbidden, "AccessDenied")
	h.expectErr(http.MethodPost, "/v1/withdraw", h.principal, dto.TransferRequest{From: principal, Amount: "2eth"}, http.StatusConflict, "InsufficientFunds")
	h.expectErr(http.MethodPost, "/v1/flip", h.player, dto.FlipRequest{From: player, Side: "heads", Stake: "1eth"}, http.StatusConflict, "InsufficientReserve")
	h.expectErr(http.MethodPost, "/v1/flip", h.player, dto.FlipRequest{From: player, Side: "edge", Stake: "0.1eth"}, http.StatusBadRequest, "InvalidArgument")
	h.expectErr(http.MethodGet, "/v1/wagers/123", nil, nil, http.StatusNotFound, "UnknownRequest")
	h.expectErr(http.MethodPost, "/v1/expire", h.player, dto.ExpireRequest{From: player, RequestID: "1"}, http.StatusNotFound, "UnknownRequest")
	h.expectErr(http.MethodPost, "/dev/fulfill", nil, dto.OracleFulfillRequest{RequestID: "1"}, http.StatusNotFound, "NonexistentRequest")
	h.expectErr(http.MethodPost, "/dev/mine", nil, map[string]any{"blocks": 0}, http.StatusBadRequest, "InvalidArgument")
	h.expectErr(http.MethodGet, "/v1/events?limit=0", nil, nil, http.StatusBadRequest, "InvalidArgument")
}

func TestImpersonatedCallersRejected(t *testing.T) {
	h := newHarness(t, false)
	if err := h.node.Vault.Mint(t.Context(), common.HexToAddress(addr(h.principal)), mustWei(t, "5eth")); err != nil {
		t.Fatalf("mint: %v", err)
	}
	principal, player := addr(h.principal), addr(h.player)
	h.mustOK(http.MethodPost, "/v1/deposit", h.principal, dto.TransferRequest{From: principal, Amount: "4eth"}, nil)
	if err := h.node.Vault.Mint(t.Context(), common.HexToAddress(player), mustWei(t, "1eth")); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// mallory 用自己的金鑰簽，但 from 填別人
	h.expectErr(http.MethodPost, "/v1/withdraw", h.mallory, dto.TransferRequest{From: principal, Amount: "1eth"}, http.StatusForbidden, "AccessDenied")
	h.expectErr(http.MethodPost, "/v1/deposit", h.mallory, dto.TransferRequest{From: principal, Amount: "1eth"}, http.StatusForbidden, "AccessDenied")
	h.expectErr(http.MethodPost, "/v1/flip", h.mallory, dto.FlipRequest{From: player, Side: "heads", Stake: "0.1eth"}, http.StatusForbidden, "AccessDenied")

	// 沒有簽章
	h.expectErr(http.MethodPost, "/v1/withdraw", nil, dto.TransferRequest{From: principal, Amount: "1eth"}, http.StatusUnauthorized, "Unauthenticated")
	h.expectErr(http.MethodPost, "/v1/deposit", nil, dto.TransferRequest{From: principal, Amount: "1eth"}, http.StatusUnauthorized, "Unauthenticated")

	// 亂數回填不在 /v1 上，也沒有 /dev
	var fr dto.FlipResponse
	h.mustOK(http.MethodPost, "/v1/flip", h.player, dto.FlipRequest{From: player, Side: "heads", Stake: "0.1eth"}, &fr)
	var vv dto.VaultView
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	forged := map[string]any{"from": vv.Coordinator.Hex(), "request_id": fr.RequestID.String(), "words": []string{"0"}}
	for _, path := range []string{"/v1/fulfill", "/dev/fulfill"} {
		if code := h.do(http.MethodPost, path, h.player, forged, nil); code != http.StatusNotFound && code != http.StatusMethodNotAllowed {
			t.Fatalf("%s status = %d", path, code)
		}
	}

	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Treasury.Eth != "4.1" || vv.Pending != 1 {
		t.Fatalf("vault changed by rejected calls: %+v", vv)
	}
	var bal dto.BalanceView
	h.mustOK(http.MethodGet, "/v1/balance/"+principal, nil, nil, &bal)
	if bal.Balance.Eth != "1" {
		t.Fatalf("principal balance = %+v", bal.Balance)
	}
}

func TestSignedRequestReplay(t *testing.T) {
	h := newHarness(t, true)
	h.fund("2eth", "1eth")
	principal := addr(h.principal)

	req := h.request(http.MethodPost, "/v1/withdraw", h.principal, dto.TransferRequest{From: principal, Amount: "1eth"})
	sig, dl, nonce := req.Header.Get(auth.HeaderSignature), req.Header.Get(auth.HeaderDeadline), req.Header.Get(auth.HeaderNonce)
	if code := h.serve(req, nil); code != http.StatusOK {
		t.Fatalf("first withdraw status = %d", code)
	}

	again := h.request(http.MethodPost, "/v1/withdraw", nil, dto.TransferRequest{From: principal, Amount: "1eth"})
	again.Header.Set(auth.HeaderSignature, sig)
	again.Header.Set(auth.HeaderDeadline, dl)
	again.Header.Set(auth.HeaderNonce, nonce)
	var e httperr.Body
	if code := h.serve(again, &e); code != http.StatusUnauthorized || e.Code != "Unauthenticated" {
		t.Fatalf("replay: status %d body %+v", code, e)
	}

	var vv dto.VaultView
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Treasury.Eth != "1" {
		t.Fatalf("treasury = %s", vv.Treasury.Eth)
	}
}

func TestPayoutFailureKeepsWager(t *testing.T) {
	h := newHarness(t, true)
	h.fund("4eth", "1eth")
	player := addr(h.player)

	var fr dto.FlipResponse
	h.mustOK(http.MethodPost, "/v1/flip", h.player, dto.FlipRequest{From: player, Side: "tails", Stake: "1eth"}, &fr)
	h.mustOK(http.MethodPost, "/dev/reject", nil, map[string]any{"address": player, "reject": true}, nil)

	// 奇數 word => tails，玩家贏但拒收
	fulfill := dto.OracleFulfillRequest{RequestID: fr.RequestID.String(), Words: []string{"3"}}
	h.expectErr(http.MethodPost, "/dev/fulfill", nil, fulfill, http.StatusBadGateway, "PayoutTransferFailed")

	var vv dto.VaultView
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Pending != 1 || vv.Liability.Eth != "2" || vv.Treasury.Eth != "5" {
		t.Fatalf("after failed payout: %+v", vv)
	}

	h.mustOK(http.MethodPost, "/dev/reject", nil, map[string]any{"address": player, "reject": false}, nil)
	h.mustOK(http.MethodPost, "/dev/fulfill", nil, fulfill, nil)
	h.mustOK(http.MethodGet, "/v1/vault", nil, nil, &vv)
	if vv.Pending != 0 || vv.Treasury.Eth != "3" {
		t.Fatalf("after retry: %+v", vv)
	}
}

func TestSimEndpoint(t *testing.T) {
	h := newHarness(t, false)
	var res struct {
		Report struct {
			Summary struct {
				Bettors int
				Flips   int
				Seed    int64
			}
			Ledger struct {
				Balanced bool
			}
		} `json:"report"`
		Used string `json:"used"`
	}
	h.mustOK(http.MethodPost, "/v1/sim", nil, dto.SimRequest{Bettors: 5, Flips: 20, Seed: 11}, &res)
	if res.Report.Summary.Bettors != 5 || res.Report.Summary.Seed != 11 || !res.Report.Ledger.Balanced {
		t.Fatalf("sim = %+v", res)
	}
	h.expectErr(http.MethodPost, "/v1/sim", nil, dto.SimRequest{Bettors: 10_000, Flips: 10_000}, http.StatusBadRequest, "InvalidArgument")
}
