package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// peerEntry represents an upstream peer with named fields (legacy format).
type peerEntry struct {
	Multiaddr string `yaml:"multiaddr"`
}

// LoadPeers loads a peers.yaml file and returns raw multiaddr strings for
// the upstream consensus collaborators. Supports both formats:
//   - Legacy: [{multiaddr: "/ip4/..."}]
//   - Plain:  ["/ip4/..."]
func LoadPeers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read peers: %w", err)
	}

	// Try legacy struct format first.
	var entries []peerEntry
	if err := yaml.Unmarshal(data, &entries); err == nil && len(entries) > 0 && entries[0].Multiaddr != "" {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Multiaddr != "" {
				out = append(out, e.Multiaddr)
			}
		}
		return out, nil
	}

	// Fall back to a plain string list.
	var strs []string
	if err := yaml.Unmarshal(data, &strs); err != nil {
		return nil, fmt.Errorf("parse peers: %w", err)
	}
	return strs, nil
}
