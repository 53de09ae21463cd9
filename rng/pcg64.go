// Package rng implements the PCG64 random number generator used by the local
// oracle and the simulator.
//
// The PCG algorithm is designed by Melissa O'Neill.
// Portions of the bounded random generation logic (UintN/IntN) are
// adapted from the Go standard library (math/rand), which is
// licensed under the BSD 3-Clause License.
package rng

import (
	"crypto/rand"
	"math"
	"math/big"
	"math/bits"
	r2 "math/rand/v2"

	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/corefmt"
	"github.com/zintix-labs/flipvault/errs"
)

// PCG64 亂數產生器（非併發安全，呼叫端自行加鎖）
type PCG64 struct {
	rng *r2.PCG
}

// New 使用加密隨機來源產生 seed，建立新的 PCG64 實例。
func New() *PCG64 {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return NewWithSeed(seed.Int64())
}

// NewWithSeed 以指定 seed 建立新的 PCG64 實例；相同 seed 產出相同序列。
func NewWithSeed(seed int64) *PCG64 {
	x := uint64(seed) ^ (0x9e3779b97f4a7c15)
	hi := splitmix64(x)
	lo := splitmix64(x ^ 0xDA942042E4DD58B5)
	return &PCG64{rng: r2.NewPCG(hi, lo)}
}

//---------------------------------------
// 回傳方法
//---------------------------------------

// Uint64 回傳非負整數uint64亂數
func (r *PCG64) Uint64() uint64 {
	return r.rng.Uint64()
}

// Word 回傳 256-bit 亂數（VRF random word 的格式）。
func (r *PCG64) Word() *uint256.Int {
	return &uint256.Int{r.Uint64(), r.Uint64(), r.Uint64(), r.Uint64()}
}

// IntN 產出[0,n) 的整數，若 max <= 0 回傳 -1
func (r *PCG64) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	return int(r.uint64n(uint64(max)))
}

// Float64 產出float64(53bits精度)
func (r *PCG64) Float64() float64 {
	return float64(r.Uint64()<<11>>11) / (1 << 53)
}

// Restore 恢復內部狀態
func (r *PCG64) Restore(data []byte) error {
	return r.rng.UnmarshalBinary(data)
}

// Snapshot 取得當下內部狀態
func (r *PCG64) Snapshot() ([]byte, error) {
	return r.rng.MarshalBinary()
}

// SnapshotString 以 base64url 輸出內部狀態，方便放進 JSON / 設定檔。
func (r *PCG64) SnapshotString() (string, error) {
	b, err := r.Snapshot()
	if err != nil {
		return "", errs.Wrap(err, "pcg64 snapshot failed")
	}
	return corefmt.EncodeBase64URL(b), nil
}

// RestoreString 是 SnapshotString 的反向操作。
func (r *PCG64) RestoreString(s string) error {
	b, err := corefmt.DecodeBase64URL(s)
	if err != nil {
		return errs.Wrap(err, "pcg64 snapshot decode failed")
	}
	if err := r.Restore(b); err != nil {
		return errs.Wrap(err, "pcg64 restore failed")
	}
	return nil
}

//---------------------------------------
// 內部方法
//---------------------------------------

// splitmix64 將輸入值混洗成新的 64-bit 狀態，用於種子展開。
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// uint64n 回傳 [0,n) 的無偏亂數（基於乘法高位與拒絕採樣）。
func (r *PCG64) uint64n(n uint64) uint64 {
	if n&(n-1) == 0 { // n is power of two, can mask
		return r.Uint64() & (n - 1)
	}
	hi, lo := bits.Mul64(r.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(r.Uint64(), n)
		}
	}
	return hi
}
