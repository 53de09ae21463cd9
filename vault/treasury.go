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
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/bank"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/money"
)

// Deposit 由 principal 把 amount 從自己的帳戶存入 Treasury。
func (v *Vault) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := v.restrictToPrincipal(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidArgument.With("deposit amount must be > 0")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.update(func(tx keyvaluedb.DBTransaction, emit func(Event) error) error {
		if err := bank.Transfer(tx, caller, v.cfg.Address, amount); err != nil {
			// vault 拒收不是付款失敗，而是這筆存款本身不成立
			if errors.Is(err, bank.ErrTransferRejected) {
				return ErrInvalidArgument.With("vault is not accepting deposits: " + err.Error())
			}
			return settleErr(err, "deposit transfer failed")
		}
		return emit(Event{Kind: EventDeposited, Time: v.now(), Account: caller, Amount: amount.Clone()})
	})
	if err != nil {
		v.log.Warn("deposit rejected", "amount", amount.Dec(), "err", err)
		return err
	}
	v.met.deposits.Inc(1)
	v.log.Info("deposited", "amount", amount.Dec(), "ether", money.FormatEther(amount))
	return nil
}

// Withdraw 由 principal 從 Treasury 提出 amount。
// 只能提領未被保留的部分：amount <= Treasury - Liability，否則 ErrInsufficientFunds。
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := v.restrictToPrincipal(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidArgument.With("withdraw amount must be > 0")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.update(func(tx keyvaluedb.DBTransaction, emit func(Event) error) error {
		avail, err := available(tx, v.cfg.Address)
		if err != nil {
			return err
		}
		if amount.Gt(avail) {
			return ErrInsufficientFunds.With("withdraw=" + amount.Dec() + " available=" + avail.Dec())
		}
		if err := bank.Transfer(tx, v.cfg.Address, caller, amount); err != nil {
			return settleErr(err, "withdraw transfer failed")
		}
		return emit(Event{Kind: EventWithdrawn, Time: v.now(), Account: caller, Amount: amount.Clone()})
	})
	if err != nil {
		v.log.Warn("withdraw rejected", "amount", amount.Dec(), "err", err)
		return err
	}
	v.met.withdrawals.Inc(1)
	v.log.Info("withdrawn", "amount", amount.Dec(), "ether", money.FormatEther(amount))
	return nil
}

// settleErr 把 bank 錯誤轉成 vault 的錯誤碼：餘額不足維持 InsufficientFunds，
// 提領時收款方拒收視為 PayoutTransferFailed。
func settleErr(err error, msg string) error {
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return errs.Wrap(err, msg)
	case errors.Is(err, bank.ErrTransferRejected):
		return ErrPayoutTransferFailed.With(msg + ": " + err.Error())
	}
	return errs.Wrap(err, msg)
}

// Mint 直接在本地帳本鑄幣給 to，只供本地網路的 faucet 與模擬器使用。
func (v *Vault) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidArgument.With("mint amount must be > 0")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.update(func(tx keyvaluedb.DBTransaction, _ func(Event) error) error {
		return bank.Mint(tx, to, amount)
	})
	if err != nil {
		return errs.Wrap(err, "mint failed")
	}
	v.log.Debug("minted", "to", to.Hex(), "amount", amount.Dec())
	return nil
}

// SetRejectPayments 切換 addr 是否拒收轉帳，用來在本地重現付款失敗。
func (v *Vault) SetRejectPayments(ctx context.Context, addr common.Address, reject bool) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.update(func(tx keyvaluedb.DBTransaction, _ func(Event) error) error {
		return bank.SetReject(tx, addr, reject)
	})
	if err != nil {
		return errs.Wrap(err, "set reject failed")
	}
	v.log.Debug("reject payments", "addr", addr.Hex(), "reject", reject)
	return nil
}
