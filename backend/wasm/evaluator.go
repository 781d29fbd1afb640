// Package wasm evaluates Plutus scripts locally with an evaluator compiled
// to WebAssembly and run under wazero.
//
// The module must export memory, alloc(len) -> ptr, dealloc(ptr, len) and
// eval_phase_two_raw(tx, utxos, cost models, max steps, max mem, zero time,
// zero slot, slot length) -> packed (ptr << 32 | len).
package wasm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

const (
	exportAlloc    = "alloc"
	exportDealloc  = "dealloc"
	exportEvaluate = "eval_phase_two_raw"
)

// ErrMissingExport is returned when the module lacks a required function.
var ErrMissingExport = errors.New("wasm module is missing an export")

// ScriptError is a phase-two failure reported by the evaluator.
type ScriptError struct {
	ErrorType  string   `cbor:"error_type"`
	Budget     budget   `cbor:"budget"`
	DebugTrace []string `cbor:"debug_trace"`
}

type budget struct {
	Mem uint64 `cbor:"mem"`
	CPU uint64 `cbor:"cpu"`
}

func (e *ScriptError) Error() string {
	if len(e.DebugTrace) == 0 {
		return e.ErrorType
	}
	return fmt.Sprintf("%s: %s", e.ErrorType, strings.Join(e.DebugTrace, "; "))
}

// Evaluator implements backend.Evaluator. Calls are serialized since the
// module has a single linear memory.
type Evaluator struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	module   api.Module
	evaluate api.Function
	alloc    api.Function
	dealloc  api.Function

	lookup     backend.UtxoLookup
	config     Config
	costModels []byte
	logger     zerolog.Logger
}

// NewEvaluator compiles and instantiates the module. lookup resolves the
// inputs and reference inputs of each evaluated transaction.
func NewEvaluator(ctx context.Context, lookup backend.UtxoLookup, config Config) (*Evaluator, error) {
	wasmBytes := config.Wasm
	if len(wasmBytes) == 0 {
		if config.WasmFile == "" {
			return nil, errors.New("no evaluator module configured")
		}
		var err error
		wasmBytes, err = os.ReadFile(config.WasmFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read WASM file: %w", err)
		}
	}
	costModels, err := cbor.Encode(config.CostModels)
	if err != nil {
		return nil, fmt.Errorf("encode cost models: %w", err)
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	logger := log.Evaluator.With().Str("engine", "wasm").Logger()
	modConfig := wazero.NewModuleConfig().
		WithStdout(logger).
		WithStderr(logger)
	module, err := runtime.InstantiateWithConfig(ctx, wasmBytes, modConfig)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate evaluator: %w", err)
	}

	e := &Evaluator{
		runtime:    runtime,
		module:     module,
		evaluate:   module.ExportedFunction(exportEvaluate),
		alloc:      module.ExportedFunction(exportAlloc),
		dealloc:    module.ExportedFunction(exportDealloc),
		lookup:     lookup,
		config:     config,
		costModels: costModels,
		logger:     logger,
	}
	for name, fn := range map[string]api.Function{
		exportEvaluate: e.evaluate,
		exportAlloc:    e.alloc,
		exportDealloc:  e.dealloc,
	} {
		if fn == nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}
	if module.Memory() == nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("%w: memory", ErrMissingExport)
	}
	return e, nil
}

// Close releases the module and runtime.
func (e *Evaluator) Close(ctx context.Context) error {
	if err := e.module.Close(ctx); err != nil {
		return err
	}
	return e.runtime.Close(ctx)
}

// Evaluate runs every redeemer in tx and returns the budgets it used.
func (e *Evaluator) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	view, err := primitives.DecodeTx(tx)
	if err != nil {
		return nil, err
	}
	if len(view.Redeemers) == 0 {
		return nil, nil
	}
	pointers := primitives.SortInputs(append(append([]primitives.Input{}, view.Inputs...), view.ReferenceInputs...))
	utxos, err := e.lookup.Utxos(ctx, pointers)
	if err != nil {
		return nil, fmt.Errorf("resolve inputs: %w", err)
	}
	resolved, err := serializeUtxos(utxos)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var allocs [][2]uint64
	defer func() {
		for _, a := range allocs {
			e.free(ctx, a[0], a[1])
		}
	}()
	write := func(data []byte) (uint64, uint64, error) {
		ptr, err := e.write(ctx, data)
		if err != nil {
			return 0, 0, err
		}
		allocs = append(allocs, [2]uint64{ptr, uint64(len(data))})
		return ptr, uint64(len(data)), nil
	}
	txPtr, txLen, err := write(tx)
	if err != nil {
		return nil, err
	}
	utxosPtr, utxosLen, err := write(resolved)
	if err != nil {
		return nil, err
	}
	cmPtr, cmLen, err := write(e.costModels)
	if err != nil {
		return nil, err
	}

	results, err := e.evaluate.Call(ctx,
		txPtr, txLen,
		utxosPtr, utxosLen,
		cmPtr, cmLen,
		e.config.MaxTxExUnits.Steps, e.config.MaxTxExUnits.Mem,
		e.config.ZeroTime, e.config.ZeroSlot, uint64(e.config.SlotLength),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", exportEvaluate, err)
	}
	out, err := e.readResult(ctx, results)
	if err != nil {
		return nil, err
	}
	evals, err := parseResult(out)
	if err != nil {
		return nil, err
	}
	logger := log.ForTx(e.logger, view.Hash.String())
	logger.Debug().
		Int("redeemers", len(evals)).
		Msg("evaluated transaction")
	return evals, nil
}

func (e *Evaluator) write(ctx context.Context, data []byte) (uint64, error) {
	results, err := e.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate memory: %w", err)
	}
	if len(results) < 1 {
		return 0, errors.New("alloc returned no pointer")
	}
	ptr := results[0]
	if !e.module.Memory().Write(uint32(ptr), data) {
		return 0, errors.New("failed to write data to WASM memory")
	}
	return ptr, nil
}

func (e *Evaluator) free(ctx context.Context, ptr, size uint64) {
	if _, err := e.dealloc.Call(ctx, ptr, size); err != nil {
		e.logger.Warn().Err(err).Msg("failed to deallocate memory")
	}
}

// readResult copies a packed (ptr << 32 | len) result out of the module
// and frees it.
func (e *Evaluator) readResult(ctx context.Context, results []uint64) ([]byte, error) {
	if len(results) < 1 {
		return nil, errors.New("no results from function call")
	}
	ptr := uint32(results[0] >> 32)
	size := uint32(results[0])
	view, ok := e.module.Memory().Read(ptr, size)
	if !ok {
		return nil, errors.New("failed to read result memory")
	}
	out := bytes.Clone(view)
	e.free(ctx, uint64(ptr), uint64(size))
	return out, nil
}

// serializeUtxos writes a little-endian count followed by length-prefixed
// (input CBOR, output CBOR) pairs.
func serializeUtxos(utxos []primitives.Utxo) ([]byte, error) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(utxos)))
	for _, u := range utxos {
		in := u.Input.ToShelley()
		inBytes, err := cbor.Encode(&in)
		if err != nil {
			return nil, fmt.Errorf("encode input %s: %w", u.Input, err)
		}
		outBytes, err := u.Output.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode output %s: %w", u.Input, err)
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(inBytes)))
		buf.Write(inBytes)
		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(outBytes)))
		buf.Write(outBytes)
	}
	return buf.Bytes(), nil
}

type evaluatedRedeemer struct {
	cbor.StructAsArray
	Tag     uint8
	Index   uint32
	Data    cbor.RawMessage
	ExUnits struct {
		cbor.StructAsArray
		Mem   uint64
		Steps uint64
	}
}

// parseResult reads the status byte and payload. Status 0 carries an array
// of evaluated redeemers, anything else a ScriptError.
func parseResult(out []byte) ([]backend.Evaluation, error) {
	if len(out) == 0 {
		return nil, errors.New("empty result from WASM evaluation")
	}
	if out[0] != 0 {
		var scriptErr ScriptError
		if _, err := cbor.Decode(out[1:], &scriptErr); err != nil {
			return nil, fmt.Errorf("decode evaluation error: %w", err)
		}
		return nil, &scriptErr
	}
	var raw []cbor.RawMessage
	if _, err := cbor.Decode(out[1:], &raw); err != nil {
		return nil, fmt.Errorf("decode evaluation result: %w", err)
	}
	evals := make([]backend.Evaluation, 0, len(raw))
	for i, r := range raw {
		var red evaluatedRedeemer
		if _, err := cbor.Decode(r, &red); err != nil {
			return nil, fmt.Errorf("redeemer %d: %w", i, err)
		}
		if red.Tag > uint8(common.RedeemerTagReward) {
			return nil, fmt.Errorf("redeemer %d: unknown tag %d", i, red.Tag)
		}
		evals = append(evals, backend.NewEvaluation(common.RedeemerTag(red.Tag), red.Index, red.ExUnits.Mem, red.ExUnits.Steps))
	}
	return evals, nil
}
