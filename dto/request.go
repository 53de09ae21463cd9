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
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

// 防止 body 過大（1MiB）
const maxBody = 1 << 20

// 事件分頁預設值
const defaultEventLimit = 100

// TransferRequest 是 deposit / withdraw 的輸入。
type TransferRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"` // wei 十進位、0x 十六進位或 "0.1eth"
}

// FlipRequest 是下注輸入。
type FlipRequest struct {
	From  string `json:"from"`
	Side  string `json:"side"` // heads | tails
	Stake string `json:"stake"`
}

// ExpireRequest 要求退還逾時未回填的下注。
type ExpireRequest struct {
	From      string `json:"from"`
	RequestID string `json:"request_id"`
}

// OracleFulfillRequest 由本地 coordinator 回填；Words 為空時使用 coordinator 的亂數。
type OracleFulfillRequest struct {
	RequestID string   `json:"request_id"`
	Words     []string `json:"words,omitempty"`
}

// FaucetRequest 在本地帳本鑄幣。
type FaucetRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// DecodeJSON 把 POST body 解碼到 out。
//
// 注意：
//   - 會對 body 做大小限制（1MiB）。
//   - 會開啟 DisallowUnknownFields()，對未知欄位採用嚴格拒絕，以避免靜默丟資料。
//   - 這裡只負責解碼；欄位合法性由各 Parse 方法與 vault 決定。
func DecodeJSON(r *http.Request, out any) error {
	if r == nil {
		return vault.ErrInvalidArgument.With("nil request")
	}
	if r.Method != http.MethodPost {
		return vault.ErrInvalidArgument.With("method not allowed")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return vault.ErrInvalidArgument.With("invalid json: " + err.Error())
	}
	return nil
}

// ParseAddress 接受 0x 前綴的 20 bytes 十六進位位址。
func ParseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, vault.ErrInvalidArgument.With(field + ": invalid address " + strconv.Quote(s))
	}
	return common.HexToAddress(s), nil
}

func (r *TransferRequest) Parse() (common.Address, *uint256.Int, error) {
	from, err := ParseAddress("from", r.From)
	if err != nil {
		return common.Address{}, nil, err
	}
	amt, err := money.ParseAmount(r.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return from, amt, nil
}

func (r *FlipRequest) Parse() (common.Address, vault.Side, *uint256.Int, error) {
	from, err := ParseAddress("from", r.From)
	if err != nil {
		return common.Address{}, 0, nil, err
	}
	side, err := vault.ParseSide(r.Side)
	if err != nil {
		return common.Address{}, 0, nil, err
	}
	stake, err := money.ParseAmount(r.Stake)
	if err != nil {
		return common.Address{}, 0, nil, err
	}
	return from, side, stake, nil
}

func (r *ExpireRequest) Parse() (common.Address, vrf.RequestID, error) {
	from, err := ParseAddress("from", r.From)
	if err != nil {
		return common.Address{}, vrf.RequestID{}, err
	}
	id, err := vrf.ParseRequestID(r.RequestID)
	if err != nil {
		return common.Address{}, vrf.RequestID{}, err
	}
	return from, id, nil
}

func (r *OracleFulfillRequest) Parse() (vrf.RequestID, []*uint256.Int, error) {
	id, err := vrf.ParseRequestID(r.RequestID)
	if err != nil {
		return vrf.RequestID{}, nil, err
	}
	if len(r.Words) == 0 {
		return id, nil, nil
	}
	words, err := ParseWords(r.Words)
	if err != nil {
		return vrf.RequestID{}, nil, err
	}
	return id, words, nil
}

func (r *FaucetRequest) Parse() (common.Address, *uint256.Int, error) {
	to, err := ParseAddress("to", r.To)
	if err != nil {
		return common.Address{}, nil, err
	}
	amt, err := money.ParseAmount(r.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return to, amt, nil
}

// ParseWords 解析亂數字（十進位或 0x 十六進位）。
func ParseWords(ss []string) ([]*uint256.Int, error) {
	if len(ss) > vrf.MaxNumWords {
		return nil, vault.ErrInvalidArgument.With("too many words: " + strconv.Itoa(len(ss)))
	}
	out := make([]*uint256.Int, len(ss))
	for i, s := range ss {
		w, err := money.ParseWei(s)
		if err != nil {
			return nil, vault.ErrInvalidArgument.With("words[" + strconv.Itoa(i) + "]: " + strconv.Quote(s))
		}
		out[i] = w
	}
	return out, nil
}

// EventsQuery 是 GET /v1/events 的分頁參數。
type EventsQuery struct {
	From  uint64
	Limit int
}

// DecodeEventsQuery 從 query string 讀取 from / limit。
// from 缺省為 1；limit 缺省為 100。
func DecodeEventsQuery(r *http.Request) (EventsQuery, error) {
	q := EventsQuery{From: 1, Limit: defaultEventLimit}
	if r == nil {
		return q, vault.ErrInvalidArgument.With("nil request")
	}
	v := r.URL.Query()
	if s := v.Get("from"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return q, vault.ErrInvalidArgument.With("invalid from: " + err.Error())
		}
		q.From = n
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, vault.ErrInvalidArgument.With("invalid limit: " + strconv.Quote(s))
		}
		q.Limit = n
	}
	return q, nil
}
