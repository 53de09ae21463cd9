package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	if cfg.Vault.ExpireAfter != time.Hour || cfg.Oracle.CallbackGasLimit != 100000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BaseFee().Dec() != "1000000000000000" {
		t.Fatalf("base fee = %s", cfg.BaseFee().Dec())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	p := writeFile(t, "cfg.yaml", "store:\n  backend: memory\nvault:\n  expire_after: 5m\n")
	cfg, err := Load(p, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "memory" || cfg.Vault.ExpireAfter != 5*time.Minute {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default lost: %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	p := writeFile(t, "cfg.yaml", "vault:\n  expire_afterr: 5m\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected strict decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLIPVAULT_SERVER_ADDR", ":9999")
	t.Setenv("FLIPVAULT_VAULT_EXPIRE_AFTER", "30m")
	t.Setenv("FLIPVAULT_ORACLE_REQUEST_CONFIRMATIONS", "3")
	t.Setenv("FLIPVAULT_STORE_BACKEND", "memory")
	cfg, err := Load("", filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Vault.ExpireAfter != 30*time.Minute || cfg.Oracle.RequestConfirmations != 3 {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestDotenvFillsUnsetVars(t *testing.T) {
	const key = "FLIPVAULT_LOG_MODE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	p := writeFile(t, "test.env", key+"=prod\n")
	cfg, err := Load("", p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Mode != "prod" {
		t.Fatalf("dotenv not applied: %q", cfg.Log.Mode)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]func(c *Config){
		"log.mode":           func(c *Config) { c.Log.Mode = "loud" },
		"store.backend":      func(c *Config) { c.Store.Backend = "mysql" },
		"store.path":         func(c *Config) { c.Store.Path = "" },
		"vault.principal":    func(c *Config) { c.Vault.Principal = "0x1234" },
		"distinct":           func(c *Config) { c.Vault.Address = c.Vault.Principal },
		"oracle.key_hash":    func(c *Config) { c.Oracle.KeyHash = "0xabcd" },
		"oracle.base_fee":    func(c *Config) { c.Oracle.BaseFee = "lots" },
		"callback_gas_limit": func(c *Config) { c.Oracle.CallbackGasLimit = 0 },
		"signature_window":   func(c *Config) { c.Server.SignatureWindow = 0 },
	}
	for name, mutate := range cases {
		cfg, _ := Default()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if name != "distinct" && name != "store.path" && !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: error does not name the field: %v", name, err)
		}
	}
}
