package netconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKnownNetworks(t *testing.T) {
	cases := []struct {
		network string
		rpc     string
		horizon string
	}{
		{"mainnet", "https://mainnet.sorobanrpc.com", "https://horizon.stellar.org/"},
		{"testnet", "https://soroban-testnet.stellar.org", "https://horizon-testnet.stellar.org/"},
		{"futurenet", "https://rpc-futurenet.stellar.org", "https://horizon-futurenet.stellar.org/"},
	}
	for _, tc := range cases {
		t.Run(tc.network, func(t *testing.T) {
			rpc, err := RPCURL(tc.network)
			if err != nil || rpc != tc.rpc {
				t.Fatalf("RPCURL = %q, %v; want %q", rpc, err, tc.rpc)
			}
			h, err := HorizonURL(tc.network)
			if err != nil || h != tc.horizon {
				t.Fatalf("HorizonURL = %q, %v; want %q", h, err, tc.horizon)
			}
		})
	}
}

func TestLocalNetworkHasNoHorizon(t *testing.T) {
	for _, network := range []string{"local", "standalone"} {
		if rpc, err := RPCURL(network); err != nil || rpc == "" {
			t.Fatalf("RPCURL(%q) = %q, %v", network, rpc, err)
		}
		if _, err := HorizonURL(network); !errors.Is(err, ErrHorizonUnavailable) {
			t.Fatalf("HorizonURL(%q): got %v, want ErrHorizonUnavailable", network, err)
		}
	}
}

func writeNetworkFile(t *testing.T, dir, tool, name, content string) {
	t.Helper()
	path := filepath.Join(dir, tool, "network", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCustomNetworkFromConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	writeNetworkFile(t, dir, "stellar", "mynet.toml",
		"rpc_url = \"https://rpc.mynet.example\"\nhorizon_url = \"https://horizon.mynet.example/\"\nnetwork_passphrase = \"Custom Net\"\n")

	rpc, err := RPCURL("mynet")
	if err != nil || rpc != "https://rpc.mynet.example" {
		t.Fatalf("RPCURL = %q, %v", rpc, err)
	}
	h, err := HorizonURL("mynet")
	if err != nil || h != "https://horizon.mynet.example/" {
		t.Fatalf("HorizonURL = %q, %v", h, err)
	}
}

func TestCustomNetworkStellarWinsOverSoroban(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	writeNetworkFile(t, dir, "stellar", "dual.toml", "rpc_url = \"https://stellar.example\"\n")
	writeNetworkFile(t, dir, "soroban", "dual.toml", "rpc_url = \"https://soroban.example\"\n")

	rpc, err := RPCURL("dual")
	if err != nil || rpc != "https://stellar.example" {
		t.Fatalf("RPCURL = %q, %v; want the stellar tree", rpc, err)
	}
}

func TestCustomNetworkLegacySorobanFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	writeNetworkFile(t, dir, "soroban", "old", "rpc_url = \"https://old.example\"\n")

	rpc, err := RPCURL("old")
	if err != nil || rpc != "https://old.example" {
		t.Fatalf("RPCURL = %q, %v", rpc, err)
	}
	if _, err := HorizonURL("old"); !errors.Is(err, ErrHorizonUnavailable) {
		t.Fatalf("network without horizon_url: got %v, want ErrHorizonUnavailable", err)
	}
}

func TestCustomNetworkErrors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if _, err := RPCURL("ghost"); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("unknown network: got %v, want ErrUnknownNetwork", err)
	}

	writeNetworkFile(t, dir, "stellar", "nourl.toml", "network_passphrase = \"x\"\n")
	if _, err := RPCURL("nourl"); !errors.Is(err, ErrRPCURLNotSet) {
		t.Fatalf("missing rpc_url: got %v, want ErrRPCURLNotSet", err)
	}

	writeNetworkFile(t, dir, "stellar", "broken.toml", "rpc_url = not-quoted\n")
	if _, err := RPCURL("broken"); err == nil {
		t.Fatal("malformed toml must fail")
	}
}
