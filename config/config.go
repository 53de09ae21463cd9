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

// Package config 載入 flipvault 設定。
//
// 優先順序（後者覆蓋前者）：
//  1. 內嵌的 default.yaml
//  2. 指定的 YAML 檔（嚴格解析：未知欄位直接報錯）
//  3. .env 檔（joho/godotenv，只補上尚未設定的環境變數）
//  4. FLIPVAULT_* 環境變數（caarlos0/env）
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/zintix-labs/flipvault/corefmt"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 是所有環境變數覆蓋的前綴。
const EnvPrefix = "FLIPVAULT_"

//go:embed default.yaml
var defaultYAML []byte

type Config struct {
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Store  StoreConfig  `yaml:"store" envPrefix:"STORE_"`
	Vault  VaultConfig  `yaml:"vault" envPrefix:"VAULT_"`
	Oracle OracleConfig `yaml:"oracle" envPrefix:"ORACLE_"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	DevRoutes       bool          `yaml:"dev_routes" env:"DEV_ROUTES"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	SignatureWindow time.Duration `yaml:"signature_window" env:"SIGNATURE_WINDOW"` // 簽章 deadline 最多可以比現在晚多久
}

type LogConfig struct {
	Mode        string `yaml:"mode" env:"MODE"` // dev | prod | silence
	AsyncBuffer int    `yaml:"async_buffer" env:"ASYNC_BUFFER"`
	File        string `yaml:"file" env:"FILE"` // 空字串代表不寫檔
	MaxSizeMB   int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups  int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays  int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress    bool   `yaml:"compress" env:"COMPRESS"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // memory | bolt | leveldb
	Path    string `yaml:"path" env:"PATH"`
}

type VaultConfig struct {
	Principal    string        `yaml:"principal" env:"PRINCIPAL"`
	Address      string        `yaml:"address" env:"ADDRESS"`
	ExpireAfter  time.Duration `yaml:"expire_after" env:"EXPIRE_AFTER"`
	ReapInterval time.Duration `yaml:"reap_interval" env:"REAP_INTERVAL"`
}

// OracleConfig 描述本地 mock coordinator 與 vault 的請求參數。
type OracleConfig struct {
	Coordinator          string        `yaml:"coordinator" env:"COORDINATOR"`
	KeyHash              string        `yaml:"key_hash" env:"KEY_HASH"`
	CallbackGasLimit     uint32        `yaml:"callback_gas_limit" env:"CALLBACK_GAS_LIMIT"`
	RequestConfirmations uint16        `yaml:"request_confirmations" env:"REQUEST_CONFIRMATIONS"`
	NativePayment        bool          `yaml:"native_payment" env:"NATIVE_PAYMENT"`
	BaseFee              string        `yaml:"base_fee" env:"BASE_FEE"`
	FundAmount           string        `yaml:"fund_amount" env:"FUND_AMOUNT"`
	Seed                 int64         `yaml:"seed" env:"SEED"`
	AutoFulfill          bool          `yaml:"auto_fulfill" env:"AUTO_FULFILL"`
	BlockInterval        time.Duration `yaml:"block_interval" env:"BLOCK_INTERVAL"`
}

// Default 回傳內嵌的預設設定。
func Default() (*Config, error) {
	cfg := new(Config)
	if err := decodeStrict(bytes.NewReader(defaultYAML), cfg); err != nil {
		return nil, errs.Wrap(err, "config: embedded default invalid")
	}
	return cfg, nil
}

// Load 依序套用預設值、YAML 檔（path 可為空）、dotenv 檔與環境變數，最後驗證。
func Load(path string, dotenvFiles ...string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errs.WrapWithExtra(err, "config: open file failed", path)
		}
		defer f.Close()
		if err := decodeStrict(f, cfg); err != nil {
			return nil, errs.WrapWithExtra(err, "config: decode file failed", path)
		}
	}
	if err := LoadDotenv(dotenvFiles...); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv 載入存在的 dotenv 檔；不存在的檔案直接略過。未指定時嘗試 ".env"。
// 已存在的環境變數不會被覆蓋。
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return errs.WrapWithExtra(err, "config: load dotenv failed", strings.Join(present, ","))
	}
	return nil
}

// ApplyEnv 以 FLIPVAULT_* 環境變數覆蓋 cfg；未設定的變數不影響原值。
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errs.Wrap(err, "config: parse env failed")
	}
	return nil
}

// decodeStrict 是嚴格的 YAML 解析：多寫或拼錯欄位就報錯。空檔案視為沒有覆蓋。
func decodeStrict(r io.Reader, out *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate 檢查所有欄位；錯誤一律為 Fatal（設定錯誤不該啟動）。
func (c *Config) Validate() error {
	switch c.Log.Mode {
	case "dev", "prod", "silence":
	default:
		return errs.Fatalf("config: log.mode must be dev|prod|silence, got %q", c.Log.Mode)
	}
	switch c.Store.Backend {
	case "memory":
	case "bolt", "leveldb":
		if c.Store.Path == "" {
			return errs.Fatalf("config: store.path is required for backend %s", c.Store.Backend)
		}
	default:
		return errs.Fatalf("config: store.backend must be memory|bolt|leveldb, got %q", c.Store.Backend)
	}
	for name, s := range map[string]string{
		"vault.principal":    c.Vault.Principal,
		"vault.address":      c.Vault.Address,
		"oracle.coordinator": c.Oracle.Coordinator,
	} {
		if !common.IsHexAddress(s) || common.HexToAddress(s) == (common.Address{}) {
			return errs.Fatalf("config: %s is not a valid non-zero address: %q", name, s)
		}
	}
	p, a, o := c.PrincipalAddress(), c.VaultAddress(), c.CoordinatorAddress()
	if p == a || a == o || p == o {
		return errs.NewFatal("config: vault.principal, vault.address and oracle.coordinator must be distinct")
	}
	if b, err := corefmt.DecodeHex(c.Oracle.KeyHash); err != nil || len(b) != common.HashLength {
		return errs.Fatalf("config: oracle.key_hash must be 32 bytes hex, got %q", c.Oracle.KeyHash)
	}
	if c.Server.SignatureWindow <= 0 || c.Server.SignatureWindow > time.Hour {
		return errs.NewFatal("config: server.signature_window must be in (0, 1h]")
	}
	if c.Vault.ExpireAfter < 0 {
		return errs.NewFatal("config: vault.expire_after must be >= 0")
	}
	if _, err := money.ParseAmount(c.Oracle.BaseFee); err != nil {
		return errs.WrapWithExtra(err, "config: oracle.base_fee invalid", c.Oracle.BaseFee)
	}
	if _, err := money.ParseAmount(c.Oracle.FundAmount); err != nil {
		return errs.WrapWithExtra(err, "config: oracle.fund_amount invalid", c.Oracle.FundAmount)
	}
	if c.Oracle.RequestConfirmations > 200 {
		return errs.NewFatal("config: oracle.request_confirmations must be <= 200")
	}
	if c.Oracle.CallbackGasLimit == 0 || c.Oracle.CallbackGasLimit > 2_500_000 {
		return errs.NewFatal("config: oracle.callback_gas_limit must be in (0, 2500000]")
	}
	return nil
}

func (c *Config) PrincipalAddress() common.Address { return common.HexToAddress(c.Vault.Principal) }

func (c *Config) VaultAddress() common.Address { return common.HexToAddress(c.Vault.Address) }

func (c *Config) CoordinatorAddress() common.Address { return common.HexToAddress(c.Oracle.Coordinator) }

func (c *Config) KeyHash() common.Hash { return common.HexToHash(c.Oracle.KeyHash) }

// BaseFee / FundAmount 在 Validate 之後呼叫，解析失敗時回傳 0。
func (c *Config) BaseFee() *uint256.Int {
	v, err := money.ParseAmount(c.Oracle.BaseFee)
	if err != nil {
		return money.Zero()
	}
	return v
}

func (c *Config) FundAmount() *uint256.Int {
	v, err := money.ParseAmount(c.Oracle.FundAmount)
	if err != nil {
		return money.Zero()
	}
	return v
}
