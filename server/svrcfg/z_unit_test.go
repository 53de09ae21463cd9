package svrcfg

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zintix-labs/flipvault/keyvaluedb/memorydb"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/vault"
	"github.com/zintix-labs/flipvault/vrf"
)

func newVault(t *testing.T) (*vault.Vault, *vrf.Mock) {
	t.Helper()
	principal := common.HexToAddress("0x01")
	m := vrf.NewMock(vrf.MockConfig{Address: common.HexToAddress("0x03"), Seed: 1})
	sub := m.CreateSubscription(principal)
	v, err := vault.New(vault.Config{
		Principal:   principal,
		Address:     common.HexToAddress("0x02"),
		Coordinator: m,
		SubID:       sub,
		Store:       memorydb.New(),
	})
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return v, m
}

func TestVaildDefaults(t *testing.T) {
	v, _ := newVault(t)
	sc := &SvrCfg{Vault: v}
	if err := sc.Vaild(); err != nil {
		t.Fatalf("vaild: %v", err)
	}
	if sc.Log == nil || sc.Auth == nil || sc.RequestTimeout != 5*time.Second {
		t.Fatalf("defaults not applied: log=%v timeout=%v", sc.Log, sc.RequestTimeout)
	}

	sc = &SvrCfg{Vault: v, RequestTimeout: time.Hour}
	_ = sc.Vaild()
	if sc.RequestTimeout != time.Minute {
		t.Fatalf("timeout should clamp to 1m, got %v", sc.RequestTimeout)
	}
}

func TestVaildRequestTimeoutBelowWriteTimeout(t *testing.T) {
	v, _ := newVault(t)
	sc := &SvrCfg{Vault: v, RequestTimeout: 10 * time.Second, Net: netsvr.Options{WriteTimeout: 4 * time.Second}}
	if err := sc.Vaild(); err != nil {
		t.Fatalf("vaild: %v", err)
	}
	if sc.RequestTimeout >= 4*time.Second {
		t.Fatalf("request timeout %v should stay below write timeout", sc.RequestTimeout)
	}
}

func TestVaildRequiresDeps(t *testing.T) {
	if err := (&SvrCfg{}).Vaild(); err == nil {
		t.Fatalf("vault should be required")
	}
	v, m := newVault(t)
	if err := (&SvrCfg{Vault: v, DevRoutes: true}).Vaild(); err == nil {
		t.Fatalf("dev routes without oracle should fail")
	}
	if err := (&SvrCfg{Vault: v, Oracle: m, DevRoutes: true}).Vaild(); err != nil {
		t.Fatalf("dev routes with oracle: %v", err)
	}
}
