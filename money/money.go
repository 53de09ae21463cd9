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

// Package money 處理原生幣值（wei）的解析、格式化與溢位安全運算。
//
// 所有金額一律以 *uint256.Int（wei）表示；ether 字串只出現在邊界層（HTTP / CLI / 設定檔），
// 由 shopspring/decimal 做精確十進位轉換，絕不經過 float64。
package money

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/zintix-labs/flipvault/errs"
)

// EtherDecimals 是 1 ether = 10^18 wei 的位數。
const EtherDecimals = 18

var (
	ErrInvalidAmount = errs.NewCode(errs.Warn, "InvalidAmount", "invalid amount")
	ErrOverflow      = errs.NewCode(errs.Warn, "InvalidAmount", "amount overflows uint256")
)

// Zero 回傳新的 0。
func Zero() *uint256.Int { return new(uint256.Int) }

// Wei 以 uint64 建立金額。
func Wei(v uint64) *uint256.Int { return uint256.NewInt(v) }

// ParseEther 把十進位 ether 字串（例如 "0.1"）轉成 wei。
// 小數位超過 18 位、負數或溢位都會回傳錯誤。
func ParseEther(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrInvalidAmount.With(fmt.Sprintf("ether %q: %v", s, err))
	}
	return fromDecimal(d.Shift(EtherDecimals), s)
}

// ParseWei 把十進位 wei 字串或 0x 前綴的十六進位字串轉成 wei。
func ParseWei(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, ErrInvalidAmount.With(fmt.Sprintf("wei %q: %v", s, err))
		}
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, ErrInvalidAmount.With(fmt.Sprintf("wei %q: %v", s, err))
	}
	return fromDecimal(d, s)
}

// ParseAmount 是邊界層統一入口：
//   - "1000"       → 1000 wei
//   - "0x3e8"      → 1000 wei
//   - "0.1eth"     → 0.1 ether（也接受 "0.1 ether"）
func ParseAmount(s string) (*uint256.Int, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case t == "":
		return nil, ErrInvalidAmount.With("empty amount")
	case strings.HasSuffix(t, "ether"):
		return ParseEther(strings.TrimSuffix(t, "ether"))
	case strings.HasSuffix(t, "eth"):
		return ParseEther(strings.TrimSuffix(t, "eth"))
	default:
		return ParseWei(t)
	}
}

// MustEther 給測試與 demo 使用；解析失敗直接 panic。
func MustEther(s string) *uint256.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fromDecimal(d decimal.Decimal, src string) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrInvalidAmount.With(fmt.Sprintf("negative amount %q", src))
	}
	if !d.IsInteger() {
		return nil, ErrInvalidAmount.With(fmt.Sprintf("fractional wei %q", src))
	}
	v, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, ErrOverflow.With(src)
	}
	return v, nil
}

// FormatEther 以 ether 單位輸出（去掉多餘的 0），僅供顯示與日誌使用。
func FormatEther(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -EtherDecimals).String()
}

// Double 回傳 2*v；溢位時 ok=false。
func Double(v *uint256.Int) (*uint256.Int, bool) {
	r, overflow := new(uint256.Int).AddOverflow(v, v)
	return r, !overflow
}

// Add 回傳 a+b；溢位時 ok=false。
func Add(a, b *uint256.Int) (*uint256.Int, bool) {
	r, overflow := new(uint256.Int).AddOverflow(a, b)
	return r, !overflow
}

// Sub 回傳 a-b；不足（a<b）時 ok=false。
func Sub(a, b *uint256.Int) (*uint256.Int, bool) {
	r, underflow := new(uint256.Int).SubOverflow(a, b)
	return r, !underflow
}

// SubFloor 回傳 max(a-b, 0)。
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// Word 把金額轉成 32-byte big-endian，作為儲存格式（與 EVM uint256 word 相同）。
func Word(v *uint256.Int) [32]byte {
	if v == nil {
		return [32]byte{}
	}
	return v.Bytes32()
}

// FromWord 是 Word 的反向轉換。
func FromWord(w [32]byte) *uint256.Int {
	return new(uint256.Int).SetBytes32(w[:])
}
