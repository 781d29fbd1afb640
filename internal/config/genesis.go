package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Liqwid-Labs/hose-sub000/backend"
)

// ByronGenesis holds the Byron genesis fields the harness reads.
type ByronGenesis struct {
	StartTime      int64 `json:"startTime"`
	ProtocolConsts struct {
		K             int    `json:"k"`
		ProtocolMagic uint32 `json:"protocolMagic"`
	} `json:"protocolConsts"`
	BlockVersionData struct {
		SlotDuration string `json:"slotDuration"`
	} `json:"blockVersionData"`
}

// Genesis groups the configured genesis files. Either part may be nil.
type Genesis struct {
	Byron   *ByronGenesis
	Shelley *backend.GenesisParameters
}

// LoadGenesis reads the Byron and Shelley genesis files. Empty paths are
// skipped.
func LoadGenesis(byronPath, shelleyPath string) (*Genesis, error) {
	g := &Genesis{}
	if byronPath != "" {
		g.Byron = &ByronGenesis{}
		if err := readJSON(byronPath, g.Byron); err != nil {
			return nil, fmt.Errorf("byron genesis: %w", err)
		}
	}
	if shelleyPath != "" {
		g.Shelley = &backend.GenesisParameters{}
		if err := readJSON(shelleyPath, g.Shelley); err != nil {
			return nil, fmt.Errorf("shelley genesis: %w", err)
		}
	}
	if g.Byron != nil && g.Shelley != nil && g.Byron.ProtocolConsts.ProtocolMagic != g.Shelley.NetworkMagic {
		return nil, fmt.Errorf("genesis magic mismatch: byron %d, shelley %d",
			g.Byron.ProtocolConsts.ProtocolMagic, g.Shelley.NetworkMagic)
	}
	return g, nil
}

// NetworkMagic returns the magic declared by the genesis files.
func (g *Genesis) NetworkMagic() (uint32, bool) {
	switch {
	case g.Shelley != nil:
		return g.Shelley.NetworkMagic, true
	case g.Byron != nil:
		return g.Byron.ProtocolConsts.ProtocolMagic, true
	}
	return 0, false
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
