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

package dto

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

// Amount 同時輸出 wei 與 ether 兩種表示，方便人看也方便程式用。
type Amount struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

func NewAmount(v *uint256.Int) Amount {
	if v == nil {
		v = money.Zero()
	}
	return Amount{Wei: v.Dec(), Eth: money.FormatEther(v)}
}

// VaultView 是 GET /v1/vault 的回應。
type VaultView struct {
	Principal   common.Address `json:"principal"`
	Address     common.Address `json:"address"`
	Coordinator common.Address `json:"coordinator"`
	Treasury    Amount         `json:"treasury"`
	Liability   Amount         `json:"liability"`
	Available   Amount         `json:"available"`
	Pending     int            `json:"pending"`
	ExpireAfter string         `json:"expire_after"`
}

func NewVaultView(s vault.Snapshot) VaultView {
	return VaultView{
		Principal:   s.Principal,
		Address:     s.Address,
		Coordinator: s.Coordinator,
		Treasury:    NewAmount(s.Treasury),
		Liability:   NewAmount(s.Liability),
		Available:   NewAmount(s.Available),
		Pending:     s.Pending,
		ExpireAfter: s.ExpireAfter,
	}
}

type WagerView struct {
	RequestID vrf.RequestID  `json:"request_id"`
	Player    common.Address `json:"player"`
	Side      vault.Side     `json:"side"`
	Stake     Amount         `json:"stake"`
	Reserve   Amount         `json:"reserve"`
	CreatedAt string         `json:"created_at"`
}

func NewWagerView(w vault.Wager) WagerView {
	return WagerView{
		RequestID: w.RequestID,
		Player:    w.Player,
		Side:      w.Side,
		Stake:     NewAmount(w.Stake),
		Reserve:   NewAmount(w.Reserve),
		CreatedAt: w.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func NewWagerViews(ws []vault.Wager) []WagerView {
	out := make([]WagerView, len(ws))
	for i, w := range ws {
		out[i] = NewWagerView(w)
	}
	return out
}

type FlipResponse struct {
	RequestID vrf.RequestID `json:"request_id"`
}

type BalanceView struct {
	Address common.Address `json:"address"`
	Balance Amount         `json:"balance"`
}

// EventsPage 是 GET /v1/events 的回應；Next 是下一頁的 from。
type EventsPage struct {
	Events []vault.Event `json:"events"`
	Next   uint64        `json:"next"`
	Last   uint64        `json:"last"`
}

func NewEventsPage(evs []vault.Event, from, last uint64) EventsPage {
	next := max(from, 1)
	if n := len(evs); n > 0 {
		next = evs[n-1].Seq + 1
	}
	if evs == nil {
		evs = []vault.Event{}
	}
	return EventsPage{Events: evs, Next: next, Last: last}
}

// StatusResponse 是沒有資料可回傳時的確認訊息。
type StatusResponse struct {
	Status string `json:"status"`
}

var OK = StatusResponse{Status: "ok"}

// Write 以 JSON 寫回 v。先編碼到記憶體，避免寫到一半才出錯。
func Write(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(append(b, '\n'))
	return err
}
