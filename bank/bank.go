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

// Package bank 是原生幣值帳本：每個地址一筆餘額，存在 keyvaluedb 裡。
//
// 所有函式都吃 keyvaluedb.ReadWriter，呼叫端把它們放進同一個 DBTransaction，
// 就能與 vault 的狀態變更一起 commit 或一起 rollback。
package bank

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/money"
)

var (
	ErrInsufficientFunds = errs.NewCode(errs.Warn, "InsufficientFunds", "insufficient balance")
	ErrTransferRejected  = errs.NewCode(errs.Warn, "TransferRejected", "recipient rejected transfer")
	ErrOverflow          = errs.NewCode(errs.Fatal, "BalanceOverflow", "balance overflows uint256")
)

var accountPrefix = []byte("bank/acct/")

type account struct {
	Balance [32]byte `cbor:"1,keyasint"`
	Reject  bool     `cbor:"2,keyasint,omitempty"`
}

func accountKey(addr common.Address) []byte {
	k := make([]byte, 0, len(accountPrefix)+common.AddressLength)
	k = append(k, accountPrefix...)
	return append(k, addr.Bytes()...)
}

func load(r keyvaluedb.Reader, addr common.Address) (account, error) {
	var a account
	if _, err := r.Read(accountKey(addr), &a); err != nil {
		return account{}, errs.WrapWithExtra(err, "bank read account failed", addr.Hex())
	}
	return a, nil
}

func store(w keyvaluedb.Writer, addr common.Address, a account) error {
	if err := w.Write(accountKey(addr), &a); err != nil {
		return errs.WrapWithExtra(err, "bank write account failed", addr.Hex())
	}
	return nil
}

// Balance 回傳 addr 的餘額；不存在的帳戶餘額為 0。
func Balance(r keyvaluedb.Reader, addr common.Address) (*uint256.Int, error) {
	a, err := load(r, addr)
	if err != nil {
		return nil, err
	}
	return money.FromWord(a.Balance), nil
}

// Mint 憑空增加 addr 的餘額。只給開發用 faucet 與測試使用。
func Mint(rw keyvaluedb.ReadWriter, addr common.Address, amount *uint256.Int) error {
	a, err := load(rw, addr)
	if err != nil {
		return err
	}
	nb, ok := money.Add(money.FromWord(a.Balance), amount)
	if !ok {
		return ErrOverflow.With(addr.Hex())
	}
	a.Balance = money.Word(nb)
	return store(rw, addr, a)
}

// Transfer 把 amount 從 from 移到 to。
//
// 失敗情境：from 餘額不足（ErrInsufficientFunds）、to 拒收（ErrTransferRejected）。
// 失敗時不寫入任何資料。from == to 視為拒收檢查後的 no-op。
func Transfer(rw keyvaluedb.ReadWriter, from, to common.Address, amount *uint256.Int) error {
	src, err := load(rw, from)
	if err != nil {
		return err
	}
	dst, err := load(rw, to)
	if err != nil {
		return err
	}
	if dst.Reject {
		return ErrTransferRejected.With(to.Hex())
	}
	srcBal := money.FromWord(src.Balance)
	rest, ok := money.Sub(srcBal, amount)
	if !ok {
		return ErrInsufficientFunds.With("account=" + from.Hex() + " balance=" + srcBal.Dec() + " need=" + amount.Dec())
	}
	if from == to {
		return nil
	}
	nb, ok := money.Add(money.FromWord(dst.Balance), amount)
	if !ok {
		return ErrOverflow.With(to.Hex())
	}
	src.Balance = money.Word(rest)
	dst.Balance = money.Word(nb)
	if err := store(rw, from, src); err != nil {
		return err
	}
	return store(rw, to, dst)
}

// SetReject 設定 addr 是否拒收轉入（模擬付款失敗的收款方）。
func SetReject(rw keyvaluedb.ReadWriter, addr common.Address, reject bool) error {
	a, err := load(rw, addr)
	if err != nil {
		return err
	}
	a.Reject = reject
	return store(rw, addr, a)
}

// Rejects 回傳 addr 目前是否拒收。
func Rejects(r keyvaluedb.Reader, addr common.Address) (bool, error) {
	a, err := load(r, addr)
	if err != nil {
		return false, err
	}
	return a.Reject, nil
}
