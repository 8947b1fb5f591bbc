package netconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Package netconf maps network names to endpoint URLs. Well-known networks
// are hardcoded; anything else is looked up as a custom network imported into
// the local stellar-cli configuration.

var (
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrHorizonUnavailable = errors.New("no horizon url for network")
	ErrRPCURLNotSet       = errors.New("rpc_url not set in network config")
)

// RPCURL returns the Soroban RPC endpoint for a network name, consulting the
// local stellar-cli network files for custom names.
func RPCURL(network string) (string, error) {
	switch network {
	case "mainnet":
		return "https://mainnet.sorobanrpc.com", nil
	case "testnet":
		return "https://soroban-testnet.stellar.org", nil
	case "futurenet":
		return "https://rpc-futurenet.stellar.org", nil
	case "local", "standalone":
		return "http://localhost:8000/soroban/rpc", nil
	}
	cfg, err := loadNetworkFile(network)
	if err != nil {
		return "", err
	}
	if cfg.RPCURL == "" {
		return "", fmt.Errorf("network %q: %w", network, ErrRPCURLNotSet)
	}
	return cfg.RPCURL, nil
}

// HorizonURL returns the Horizon endpoint for a network name. Local networks
// run no Horizon, and custom network files only optionally carry one.
func HorizonURL(network string) (string, error) {
	switch network {
	case "mainnet":
		return "https://horizon.stellar.org/", nil
	case "testnet":
		return "https://horizon-testnet.stellar.org/", nil
	case "futurenet":
		return "https://horizon-futurenet.stellar.org/", nil
	case "local", "standalone":
		return "", fmt.Errorf("network %q: %w", network, ErrHorizonUnavailable)
	}
	cfg, err := loadNetworkFile(network)
	if err != nil {
		return "", err
	}
	if cfg.HorizonURL == "" {
		return "", fmt.Errorf("network %q: %w", network, ErrHorizonUnavailable)
	}
	return cfg.HorizonURL, nil
}

type networkFile struct {
	RPCURL     string `toml:"rpc_url"`
	HorizonURL string `toml:"horizon_url"`
}

// configDir resolves the user config root the same way stellar-cli does:
// XDG_CONFIG_HOME when set, else ~/.config.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

// loadNetworkFile reads an imported custom network. stellar-cli took over
// soroban-cli's config tree, so the stellar path wins when both exist.
func loadNetworkFile(network string) (networkFile, error) {
	dir, err := configDir()
	if err != nil {
		return networkFile{}, err
	}
	var candidates []string
	for _, tool := range []string{"stellar", "soroban"} {
		candidates = append(candidates,
			filepath.Join(dir, tool, "network", network+".toml"),
			filepath.Join(dir, tool, "network", network),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var cfg networkFile
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return networkFile{}, fmt.Errorf("parse network config %s: %w", path, err)
		}
		return cfg, nil
	}
	return networkFile{}, fmt.Errorf("network %q: %w", network, ErrUnknownNetwork)
}
