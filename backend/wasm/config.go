package wasm

import (
	"fmt"
	"time"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Config holds the chain parameters passed to every evaluation.
type Config struct {
	// WasmFile is the path of the evaluator module. Wasm takes precedence
	// when set.
	WasmFile string
	Wasm     []byte

	CostModels   map[uint][]int64
	MaxTxExUnits primitives.ExUnits

	// Slot configuration, in milliseconds since the Unix epoch.
	ZeroTime   uint64
	ZeroSlot   uint64
	SlotLength uint32
}

// ConfigFromParams fills the cost models, budget and slot configuration
// from protocol and Shelley genesis parameters.
func ConfigFromParams(path string, pp backend.ProtocolParameters, gp backend.GenesisParameters) (Config, error) {
	cfg := Config{
		WasmFile:     path,
		CostModels:   pp.CostModels,
		MaxTxExUnits: pp.MaxTxExecutionUnits,
		SlotLength:   1000,
	}
	if gp.SlotLength > 0 {
		cfg.SlotLength = uint32(gp.SlotLength * 1000)
	}
	if gp.SystemStart != "" {
		start, err := time.Parse(time.RFC3339Nano, gp.SystemStart)
		if err != nil {
			return Config{}, fmt.Errorf("invalid system start %q: %w", gp.SystemStart, err)
		}
		if start.UnixMilli() < 0 {
			return Config{}, fmt.Errorf("system start %q before the Unix epoch", gp.SystemStart)
		}
		cfg.ZeroTime = uint64(start.UnixMilli())
	}
	return cfg, nil
}
