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


// Package auth 驗證 /v1 上會動到資金的請求是由 from 位址本人簽署的。
//
// 簽章格式（與錢包的 personal_sign 相容）：
//
//	digest    = keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
//	msg       = "flipvault\n" + METHOD + " " + PATH + "\n" + deadline + "\n" + nonce + "\n" + body
//	signature = 65 bytes [R || S || V]，V 可為 0/1 或 27/28
//
// deadline（unix 秒）、nonce 與 signature 放在 header。同一份 digest 在 deadline 之前只接受一次。
package auth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zintix-labs/flipvault/corefmt"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/server/httperr"
)

const (
	HeaderSignature = "X-Flipvault-Signature"
	HeaderDeadline  = "X-Flipvault-Deadline"
	HeaderNonce     = "X-Flipvault-Nonce"
)

// DefaultWindow 是 deadline 最多可以比現在晚多久的預設值。
const DefaultWindow = 5 * time.Minute

const (
	maxBody  = 1 << 20
	maxNonce = 64
)

const CodeUnauthenticated errs.Code = "Unauthenticated"

var ErrUnauthenticated = errs.NewCode(errs.Warn, CodeUnauthenticated, "request signature missing or invalid")

// Message 組出要簽署的原文。
func Message(method, path string, deadline int64, nonce string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("flipvault\n")
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(deadline, 10))
	b.WriteByte('\n')
	b.WriteString(nonce)
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

// Digest 是 personal_sign 對 msg 簽署的雜湊。
func Digest(msg []byte) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// Sign 以 key 簽署 r，把 deadline / nonce / signature 寫進 header。
// body 必須與 r 實際送出的 body 完全相同。
func Sign(r *http.Request, key *ecdsa.PrivateKey, body []byte, deadline time.Time, nonce string) error {
	dl := deadline.Unix()
	sig, err := crypto.Sign(Digest(Message(r.Method, r.URL.Path, dl, nonce, body)), key)
	if err != nil {
		return errs.Wrap(err, "sign request failed")
	}
	r.Header.Set(HeaderDeadline, strconv.FormatInt(dl, 10))
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

type signerKey struct{}

// WithSigner 把驗證過的簽署者放進 ctx。
func WithSigner(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, signerKey{}, addr)
}

// SignerFrom 取出 Require 驗證過的簽署者。
func SignerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(signerKey{}).(common.Address)
	return addr, ok
}

// Verifier 驗證簽章並擋下重送。
type Verifier struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	seen      map[common.Hash]int64 // digest -> deadline
	lastPrune int64
}

// NewVerifier 建立 Verifier；window <= 0 用 DefaultWindow（最小 1s），now 為 nil 用 time.Now。
func NewVerifier(window time.Duration, now func() time.Time) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	window = max(time.Second, window)
	if now == nil {
		now = time.Now
	}
	return &Verifier{window: window, now: now, seen: make(map[common.Hash]int64)}
}

// Verify 驗證 r 的簽章並回傳簽署者。body 讀出後會放回 r.Body 讓 handler 再讀一次。
func (v *Verifier) Verify(r *http.Request) (common.Address, error) {
	sigHex := r.Header.Get(HeaderSignature)
	dlStr := r.Header.Get(HeaderDeadline)
	nonce := r.Header.Get(HeaderNonce)
	if sigHex == "" || dlStr == "" || nonce == "" {
		return common.Address{}, ErrUnauthenticated.With("missing " + HeaderSignature + ", " + HeaderDeadline + " or " + HeaderNonce)
	}
	if len(nonce) > maxNonce {
		return common.Address{}, ErrUnauthenticated.With("nonce too long")
	}
	dl, err := strconv.ParseInt(dlStr, 10, 64)
	if err != nil {
		return common.Address{}, ErrUnauthenticated.With("invalid deadline " + strconv.Quote(dlStr))
	}
	now := v.now().Unix()
	if dl < now {
		return common.Address{}, ErrUnauthenticated.With("signature expired")
	}
	if dl > now+int64(v.window/time.Second) {
		return common.Address{}, ErrUnauthenticated.With("deadline too far in the future")
	}
	sig, err := corefmt.DecodeHex(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrUnauthenticated.With("signature must be 65 bytes hex")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if !crypto.ValidateSignatureValues(sig[crypto.RecoveryIDOffset], new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64]), true) {
		return common.Address{}, ErrUnauthenticated.With("invalid signature values")
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			return common.Address{}, errs.Wrap(err, "read request body failed")
		}
		_ = r.Body.Close()
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	digest := Digest(Message(r.Method, r.URL.Path, dl, nonce, body))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, ErrUnauthenticated.With("recover signer: " + err.Error())
	}
	signer := crypto.PubkeyToAddress(*pub)
	if err := v.remember(common.BytesToHash(digest), dl, now); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

// remember 記下 digest 直到 deadline；同一份 digest 第二次出現視為重送。
func (v *Verifier) remember(h common.Hash, deadline, now int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if now-v.lastPrune >= int64(v.window/time.Second) {
		for k, dl := range v.seen {
			if dl < now {
				delete(v.seen, k)
			}
		}
		v.lastPrune = now
	}
	if _, dup := v.seen[h]; dup {
		return ErrUnauthenticated.With("replayed request")
	}
	v.seen[h] = deadline
	return nil
}

// Require 包住需要簽章的 handler；驗證失敗回 401，成功時簽署者放進 ctx。
func (v *Verifier) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signer, err := v.Verify(r)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		next(w, r.WithContext(WithSigner(r.Context(), signer)))
	}
}
