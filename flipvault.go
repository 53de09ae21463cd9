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

// Package flipvault 提供 FlipVault 的「組裝入口（assembler）」。
//
// Node 把下列元件依設定組裝在一起：
//  1. Store：key-value 帳本（memory / bolt / leveldb），vault 狀態與原生餘額共用同一個 store。
//  2. Oracle：本地 VRF coordinator（vrf.Mock），建立並儲值 subscription，登記 vault 為 consumer。
//  3. Vault：下注金庫本體。
//  4. Workers：AutoFulfiller（模擬 oracle 節點）與 Reaper（逾時退款），皆為 app.Component。
//
// Node 不負責 HTTP；server 套件拿 Node 的 Vault / Oracle 自行組裝路由。
package flipvault

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"
	"github.com/zintix-labs/flipvault/config"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	"github.com/zintix-labs/flipvault/keyvaluedb/boltdb"
	"github.com/zintix-labs/flipvault/keyvaluedb/leveldb"
	"github.com/zintix-labs/flipvault/keyvaluedb/memorydb"
	"github.com/zintix-labs/flipvault/server/app"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

// Node 是組裝完成的一組 store / oracle / vault / workers。
type Node struct {
	Config *config.Config
	Store  keyvaluedb.KeyValueDB
	Oracle *vrf.Mock
	SubID  *uint256.Int
	Vault  *vault.Vault

	workers []app.Component
	log     *slog.Logger
}

// NewNode 依設定組裝 Node。失敗時已開啟的 store 會被關閉。
func NewNode(cfg *config.Config, log *slog.Logger) (*Node, error) {
	if cfg == nil {
		return nil, errs.NewFatal("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	n, err := assemble(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return n, nil
}

func assemble(cfg *config.Config, store keyvaluedb.KeyValueDB, log *slog.Logger) (*Node, error) {
	oracle := vrf.NewMock(vrf.MockConfig{
		Address: cfg.CoordinatorAddress(),
		BaseFee: cfg.BaseFee(),
		Seed:    cfg.Oracle.Seed,
		Log:     log.With("component", "vrf_mock"),
	})
	subID := oracle.CreateSubscription(cfg.PrincipalAddress())
	if fund := cfg.FundAmount(); !fund.IsZero() {
		if err := oracle.FundSubscription(subID, fund); err != nil {
			return nil, errs.Wrap(err, "fund subscription failed")
		}
	}
	v, err := vault.New(vault.Config{
		Principal:            cfg.PrincipalAddress(),
		Address:              cfg.VaultAddress(),
		Coordinator:          oracle,
		KeyHash:              cfg.KeyHash(),
		SubID:                subID,
		CallbackGasLimit:     cfg.Oracle.CallbackGasLimit,
		RequestConfirmations: cfg.Oracle.RequestConfirmations,
		NativePayment:        cfg.Oracle.NativePayment,
		ExpireAfter:          cfg.Vault.ExpireAfter,
		Store:                store,
		Log:                  log,
	})
	if err != nil {
		return nil, err
	}
	if err := oracle.AddConsumer(subID, v); err != nil {
		return nil, errs.Wrap(err, "add consumer failed")
	}

	n := &Node{
		Config: cfg,
		Store:  store,
		Oracle: oracle,
		SubID:  subID,
		Vault:  v,
		log:    log,
	}
	if cfg.Oracle.AutoFulfill {
		n.workers = append(n.workers, vrf.NewAutoFulfiller(oracle, cfg.Oracle.BlockInterval, log))
	}
	if cfg.Vault.ExpireAfter > 0 {
		n.workers = append(n.workers, vault.NewReaper(v, cfg.Vault.ReapInterval))
	}
	return n, nil
}

// Workers 回傳需要交給 app.App 管理的背景元件。
func (n *Node) Workers() []app.Component {
	return append([]app.Component(nil), n.workers...)
}

// Close 關閉 store。呼叫前必須先停止所有 workers。
func (n *Node) Close() error {
	if n == nil || n.Store == nil {
		return nil
	}
	if err := n.Store.Close(); err != nil {
		return errs.Wrap(err, "close store failed")
	}
	return nil
}

// OpenStore 依設定開啟 key-value store；bolt / leveldb 會先建立上層目錄。
func OpenStore(sc config.StoreConfig) (keyvaluedb.KeyValueDB, error) {
	switch sc.Backend {
	case "memory":
		return memorydb.New(), nil
	case "bolt":
		if err := ensureDir(filepath.Dir(sc.Path)); err != nil {
			return nil, err
		}
		db, err := boltdb.New(sc.Path)
		if err != nil {
			return nil, errs.WrapWithExtra(err, "open bolt store failed", sc.Path)
		}
		return db, nil
	case "leveldb":
		if err := ensureDir(filepath.Dir(sc.Path)); err != nil {
			return nil, err
		}
		db, err := leveldb.New(sc.Path)
		if err != nil {
			return nil, errs.WrapWithExtra(err, "open leveldb store failed", sc.Path)
		}
		return db, nil
	}
	return nil, errs.Fatalf("unknown store backend %q", sc.Backend)
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.WrapWithExtra(err, "create data dir failed", dir)
	}
	return nil
}
