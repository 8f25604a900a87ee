package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ftnx/go-binkp/binkp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "binkd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
    local_addresses:
      - "2:345/6"
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n := f.Networks["fidonet"]
	if n.RemotePort != binkp.DefaultPort {
		t.Errorf("RemotePort = %d, want default %d", n.RemotePort, binkp.DefaultPort)
	}
	if n.PLZMode != "none" {
		t.Errorf("PLZMode = %q, want default %q", n.PLZMode, "none")
	}
	if f.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", f.Logging.Level, "info")
	}
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing local_addresses")
	}
}

func TestLoadInvalidPLZModeFails(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
    local_addresses: ["2:345/6"]
    plz_mode: "extreme"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for invalid plz_mode")
	}
}

func TestLoadNoNetworksFails(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error when no networks are configured")
	}
}

func TestNetworkConfigConversion(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
    remote_port: 2400
    shared_secret: hunter2
    use_cram_md5: true
    plz_mode: required
    plz_level: best
    local_addresses: ["2:345/6", "2:345/7"]
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	nc, err := f.NetworkConfig("fidonet")
	if err != nil {
		t.Fatalf("NetworkConfig: %v", err)
	}
	if nc.RemoteHost != "bbs.example.com" || nc.RemotePort != 2400 {
		t.Errorf("unexpected host/port: %+v", nc)
	}
	if nc.PLZMode != binkp.PLZRequired {
		t.Errorf("PLZMode = %v, want PLZRequired", nc.PLZMode)
	}
	if nc.PLZLevel != binkp.PLZLevelBest {
		t.Errorf("PLZLevel = %v, want PLZLevelBest", nc.PLZLevel)
	}
	if len(nc.LocalAddresses) != 2 {
		t.Errorf("LocalAddresses = %v, want 2 entries", nc.LocalAddresses)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
    local_addresses: ["2:345/6"]
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	savePath := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	if err := Save(f, savePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("reload after Save: %v", err)
	}
	if reloaded.Networks["fidonet"].RemoteHost != "bbs.example.com" {
		t.Errorf("reloaded RemoteHost = %q", reloaded.Networks["fidonet"].RemoteHost)
	}
}

func TestNetworkConfigUnknownID(t *testing.T) {
	path := writeConfig(t, `
networks:
  fidonet:
    remote_host: bbs.example.com
    local_addresses: ["2:345/6"]
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := f.NetworkConfig("nope"); err == nil {
		t.Fatal("expected error for unknown network id")
	}
}
