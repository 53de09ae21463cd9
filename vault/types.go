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

package vault

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/vrf"
)

// Side 是硬幣的一面。零值不是合法的 Side。
type Side uint8

const (
	Heads Side = iota + 1
	Tails
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heads":
		return Heads, nil
	case "tails":
		return Tails, nil
	}
	return 0, ErrInvalidArgument.With("side must be heads or tails, got " + s)
}

func (s Side) Valid() bool { return s == Heads || s == Tails }

func (s Side) String() string {
	switch s {
	case Heads:
		return "heads"
	case Tails:
		return "tails"
	}
	return ""
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Wager 是一筆未結算的下注。建立後不再修改，只會被刪除一次。
type Wager struct {
	RequestID vrf.RequestID  `json:"request_id"`
	Player    common.Address `json:"player"`
	Stake     *uint256.Int   `json:"stake"`
	Side      Side           `json:"side"`
	Reserve   *uint256.Int   `json:"reserve"` // 為這筆下注保留的最大派彩（2 × stake）
	CreatedAt time.Time      `json:"created_at"`
}

// EventKind 列舉 vault 發出的事件。
type EventKind string

const (
	EventRandomnessRequested EventKind = "RandomnessRequested"
	EventCoinFlipped         EventKind = "CoinFlipped"
	EventWagerRefunded       EventKind = "WagerRefunded"
	EventDeposited           EventKind = "Deposited"
	EventWithdrawn           EventKind = "Withdrawn"
)

// Event 是已 commit 的狀態轉移記錄。Seq 自 1 起嚴格遞增。
//
// 欄位使用方式依 Kind 而定：
//   - RandomnessRequested: RequestID, Account(player), Amount(stake), Side
//   - CoinFlipped:         同上，加 Result, Won, Payout
//   - WagerRefunded:       RequestID, Account(player), Amount(stake)
//   - Deposited/Withdrawn: Account(principal), Amount
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Time      time.Time      `json:"time"`
	RequestID vrf.RequestID  `json:"request_id,omitzero"`
	Account   common.Address `json:"account"`
	Amount    *uint256.Int   `json:"amount"`
	Side      Side           `json:"side,omitempty"`
	Result    Side           `json:"result,omitempty"`
	Won       bool           `json:"won,omitempty"`
	Payout    *uint256.Int   `json:"payout,omitempty"`
}

//---------------------------------------
// 儲存格式
//---------------------------------------

var (
	keyMeta      = []byte("vault/meta")
	keyLiability = []byte("vault/liability")
	keyEventSeq  = []byte("vault/event_seq")

	prefixWager = []byte("vault/wager/")
	prefixEvent = []byte("vault/event/")
)

type metaRecord struct {
	Principal   [20]byte `cbor:"1,keyasint"`
	Address     [20]byte `cbor:"2,keyasint"`
	Coordinator [20]byte `cbor:"3,keyasint"`
}

type wagerRecord struct {
	Player    [20]byte `cbor:"1,keyasint"`
	Stake     [32]byte `cbor:"2,keyasint"`
	Side      uint8    `cbor:"3,keyasint"`
	Reserve   [32]byte `cbor:"4,keyasint"`
	CreatedAt int64    `cbor:"5,keyasint"`
}

type eventRecord struct {
	Seq       uint64   `cbor:"1,keyasint"`
	Kind      string   `cbor:"2,keyasint"`
	Time      int64    `cbor:"3,keyasint"`
	RequestID [32]byte `cbor:"4,keyasint"`
	Account   [20]byte `cbor:"5,keyasint"`
	Amount    [32]byte `cbor:"6,keyasint"`
	Side      uint8    `cbor:"7,keyasint,omitempty"`
	Result    uint8    `cbor:"8,keyasint,omitempty"`
	Won       bool     `cbor:"9,keyasint,omitempty"`
	Payout    [32]byte `cbor:"10,keyasint"`
	HasPayout bool     `cbor:"11,keyasint,omitempty"`
}

func wagerKey(id vrf.RequestID) []byte {
	k := make([]byte, 0, len(prefixWager)+len(id))
	k = append(k, prefixWager...)
	return append(k, id[:]...)
}

// eventKey 以 big-endian 序號結尾，字典序即事件順序。
func eventKey(seq uint64) []byte {
	k := make([]byte, len(prefixEvent)+8)
	copy(k, prefixEvent)
	binary.BigEndian.PutUint64(k[len(prefixEvent):], seq)
	return k
}

func (w *Wager) record() wagerRecord {
	return wagerRecord{
		Player:    w.Player,
		Stake:     money.Word(w.Stake),
		Side:      uint8(w.Side),
		Reserve:   money.Word(w.Reserve),
		CreatedAt: w.CreatedAt.UnixNano(),
	}
}

func (r *wagerRecord) wager(id vrf.RequestID) Wager {
	return Wager{
		RequestID: id,
		Player:    common.Address(r.Player),
		Stake:     money.FromWord(r.Stake),
		Side:      Side(r.Side),
		Reserve:   money.FromWord(r.Reserve),
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

func (e *Event) record() eventRecord {
	r := eventRecord{
		Seq:       e.Seq,
		Kind:      string(e.Kind),
		Time:      e.Time.UnixNano(),
		RequestID: e.RequestID,
		Account:   e.Account,
		Amount:    money.Word(e.Amount),
		Side:      uint8(e.Side),
		Result:    uint8(e.Result),
		Won:       e.Won,
	}
	if e.Payout != nil {
		r.Payout = money.Word(e.Payout)
		r.HasPayout = true
	}
	return r
}

func (r *eventRecord) event() Event {
	e := Event{
		Seq:       r.Seq,
		Kind:      EventKind(r.Kind),
		Time:      time.Unix(0, r.Time).UTC(),
		RequestID: r.RequestID,
		Account:   common.Address(r.Account),
		Amount:    money.FromWord(r.Amount),
		Side:      Side(r.Side),
		Result:    Side(r.Result),
		Won:       r.Won,
	}
	if r.HasPayout {
		e.Payout = money.FromWord(r.Payout)
	}
	return e
}
