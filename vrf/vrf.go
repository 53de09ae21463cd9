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

// Package vrf 定義可驗證亂數 oracle 的請求／回填協定，並提供本地 Mock coordinator。
//
// 流程：
//  1. Consumer 呼叫 Coordinator.RequestRandomWords 取得 RequestID（此時尚無結果）。
//  2. 經過若干區塊確認後，coordinator 以 Consumer.FulfillRandomWords 回填亂數。
//
// 兩步之間沒有任何鎖被持有；Consumer 必須自行記錄 RequestID 對應的上下文。
package vrf

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/errs"
)

// 協定上限，與 VRF v2.5 coordinator 相同。
const (
	MaxNumWords            = 500
	MaxRequestConfirmation = 200
	MaxCallbackGasLimit    = 2_500_000
)

// CodeUnknownRequest 是 Consumer 已不認得某個 RequestID 時回的錯誤碼（例如下注已退款）。
// coordinator 收到後直接丟掉該請求，不再重試也不收費。
const CodeUnknownRequest errs.Code = "UnknownRequest"

var (
	ErrInvalidRequestID     = errs.NewCode(errs.Warn, "InvalidArgument", "invalid request id")
	ErrNonexistentRequest   = errs.NewCode(errs.Warn, "NonexistentRequest", "nonexistent request")
	ErrInvalidSubscription  = errs.NewCode(errs.Warn, "InvalidSubscription", "invalid subscription")
	ErrInvalidConsumer      = errs.NewCode(errs.Warn, "InvalidConsumer", "consumer not registered for subscription")
	ErrInsufficientBalance  = errs.NewCode(errs.Warn, "InsufficientBalance", "subscription balance too low")
	ErrNumWordsTooBig       = errs.NewCode(errs.Warn, "InvalidArgument", "numWords out of range")
	ErrGasLimitTooBig       = errs.NewCode(errs.Warn, "InvalidArgument", "callbackGasLimit too big")
	ErrInvalidConfirmations = errs.NewCode(errs.Warn, "InvalidArgument", "requestConfirmations too big")
)

// RequestID 是 coordinator 發出的 256-bit 請求編號（big-endian）。
// 文字格式（JSON / URL）一律為十進位字串，與鏈上 uint256 顯示一致。
type RequestID [32]byte

// RequestIDFromInt 把 uint256 轉成 RequestID。
func RequestIDFromInt(v *uint256.Int) RequestID {
	return RequestID(v.Bytes32())
}

// ParseRequestID 接受十進位或 0x 前綴的十六進位字串。
func ParseRequestID(s string) (RequestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RequestID{}, ErrInvalidRequestID.With("empty")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b := common.FromHex(s)
		if len(b) == 0 || len(b) > 32 {
			return RequestID{}, ErrInvalidRequestID.With(s)
		}
		return RequestID(common.BytesToHash(b)), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return RequestID{}, ErrInvalidRequestID.With(s + ": " + err.Error())
	}
	return RequestIDFromInt(v), nil
}

func (id RequestID) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(id[:])
}

func (id RequestID) IsZero() bool { return id == RequestID{} }

func (id RequestID) String() string { return id.Int().Dec() }

func (id RequestID) Hex() string { return common.Hash(id).Hex() }

func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	v, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Request 是一次亂數請求的參數。Consumer 由 coordinator 以呼叫端身分填入。
type Request struct {
	KeyHash              common.Hash
	SubID                *uint256.Int
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	NativePayment        bool
	Consumer             common.Address
}

// Coordinator 是 oracle 端：接受請求並回傳 RequestID。
type Coordinator interface {
	Address() common.Address
	RequestRandomWords(ctx context.Context, req Request) (RequestID, error)
}

// Consumer 是請求方：被 coordinator 回呼。caller 必須是 coordinator 位址，
// 由實作方自行檢查（FulfillRandomWords 是公開入口）。
// 回傳 CodeUnknownRequest 代表請求作廢；其他錯誤會讓請求留著等下次回填。
type Consumer interface {
	Address() common.Address
	FulfillRandomWords(ctx context.Context, caller common.Address, id RequestID, words []*uint256.Int) error
}
