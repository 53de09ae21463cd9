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
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/vrf"
)

// 錯誤碼，errors.Is 以 Code 比對，所以呼叫端可以用 errs.WrapWithExtra 追加上下文。
const (
	CodeAccessDenied         errs.Code = "AccessDenied"
	CodeInsufficientReserve  errs.Code = "InsufficientReserve"
	CodeInsufficientFunds    errs.Code = "InsufficientFunds"
	CodeUnknownRequest       errs.Code = vrf.CodeUnknownRequest
	CodePayoutTransferFailed errs.Code = "PayoutTransferFailed"
	CodeInvalidArgument      errs.Code = "InvalidArgument"
	CodeNotExpired           errs.Code = "NotExpired"
)

var (
	ErrAccessDenied         = errs.NewCode(errs.Warn, CodeAccessDenied, "caller is not authorized")
	ErrInsufficientReserve  = errs.NewCode(errs.Warn, CodeInsufficientReserve, "Contract balance too low to cover potential winnings")
	ErrInsufficientFunds    = errs.NewCode(errs.Warn, CodeInsufficientFunds, "insufficient funds")
	ErrUnknownRequest       = errs.NewCode(errs.Warn, CodeUnknownRequest, "unknown request id")
	ErrPayoutTransferFailed = errs.NewCode(errs.Warn, CodePayoutTransferFailed, "payout transfer failed")
	ErrInvalidArgument      = errs.NewCode(errs.Warn, CodeInvalidArgument, "invalid argument")
	ErrNotExpired           = errs.NewCode(errs.Warn, CodeNotExpired, "wager has not expired")

	// ErrStoreMismatch：store 內記錄的 principal / vault 位址與設定不一致。
	ErrStoreMismatch = errs.NewCode(errs.Fatal, "StoreMismatch", "store belongs to a different vault")
)
