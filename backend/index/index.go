// Package index keeps a persisted UTxO set and serves it as a
// backend.UtxoLookup. Transactions are applied from their serialized form
// and can be rolled back in reverse order.
package index

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/rs/zerolog"

	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/internal/storage"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Key prefixes.
var (
	prefixUtxo    = []byte("u")
	prefixAddress = []byte("a")
	prefixUndo    = []byte("d")
)

var (
	// ErrAlreadyApplied is returned when a transaction hash is applied twice.
	ErrAlreadyApplied = errors.New("transaction already applied")
	// ErrNotApplied is returned when rolling back an unknown transaction.
	ErrNotApplied = errors.New("transaction not applied")
	// ErrMissingInput is returned when a transaction spends an unknown output.
	ErrMissingInput = errors.New("input not in index")
	// ErrLocked is returned by Open when another process holds the index.
	ErrLocked = storage.ErrLocked
)

// Index is a UTxO set stored in a key-value database.
type Index struct {
	mu     sync.Mutex
	db     storage.DB
	logger zerolog.Logger
}

// New wraps db. The index takes ownership of db and closes it on Close.
func New(db storage.DB) *Index {
	return &Index{
		db:     db,
		logger: log.Index,
	}
}

// Open opens the database at path with storage.Open.
func Open(path string) (*Index, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

func utxoKey(in primitives.Input) []byte {
	key := make([]byte, 0, 1+common.Blake2b256Size+4)
	key = append(key, prefixUtxo...)
	key = append(key, in.TxHash[:]...)
	return binary.BigEndian.AppendUint32(key, in.Index)
}

func addressPrefix(addr common.Address) ([]byte, error) {
	raw, err := addr.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	if len(raw) > 255 {
		return nil, fmt.Errorf("address of %d bytes", len(raw))
	}
	key := make([]byte, 0, 2+len(raw))
	key = append(key, prefixAddress...)
	key = append(key, byte(len(raw)))
	return append(key, raw...), nil
}

func addressKey(addr common.Address, in primitives.Input) ([]byte, error) {
	prefix, err := addressPrefix(addr)
	if err != nil {
		return nil, err
	}
	key := append(prefix, in.TxHash[:]...)
	return binary.BigEndian.AppendUint32(key, in.Index), nil
}

func undoKey(h common.Blake2b256) []byte {
	return append(append([]byte{}, prefixUndo...), h[:]...)
}

func inputFromSuffix(suffix []byte) (primitives.Input, error) {
	if len(suffix) != common.Blake2b256Size+4 {
		return primitives.Input{}, fmt.Errorf("corrupt index key of %d bytes", len(suffix))
	}
	var h common.Blake2b256
	copy(h[:], suffix[:common.Blake2b256Size])
	return primitives.NewInput(h, binary.BigEndian.Uint32(suffix[common.Blake2b256Size:])), nil
}

// undoRecord holds what a rollback needs to restore.
type undoRecord struct {
	cbor.StructAsArray
	Spent    []spentOutput
	Produced []outputRef
}

type outputRef struct {
	cbor.StructAsArray
	TxHash []byte
	Index  uint32
}

type spentOutput struct {
	cbor.StructAsArray
	Ref    outputRef
	Output []byte
}

func refOf(in primitives.Input) outputRef {
	return outputRef{TxHash: in.TxHash.Bytes(), Index: in.Index}
}

func (r outputRef) input() (primitives.Input, error) {
	return inputFromSuffix(binary.BigEndian.AppendUint32(append([]byte{}, r.TxHash...), r.Index))
}

func putUtxo(b storage.Batch, u primitives.Utxo) error {
	raw, err := u.Output.Encode()
	if err != nil {
		return fmt.Errorf("encode output %s: %w", u.Input, err)
	}
	akey, err := addressKey(u.Output.Address, u.Input)
	if err != nil {
		return err
	}
	if err := b.Put(utxoKey(u.Input), raw); err != nil {
		return err
	}
	return b.Put(akey, nil)
}

func deleteUtxo(b storage.Batch, u primitives.Utxo) error {
	akey, err := addressKey(u.Output.Address, u.Input)
	if err != nil {
		return err
	}
	if err := b.Delete(utxoKey(u.Input)); err != nil {
		return err
	}
	return b.Delete(akey)
}

// AddUtxo inserts an output directly, for seeding the index from genesis
// or another backend.
func (i *Index) AddUtxo(u primitives.Utxo) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	b := i.db.NewBatch()
	if err := putUtxo(b, u); err != nil {
		return err
	}
	return b.Commit()
}

// ApplyTx spends the inputs of a serialized transaction and records its
// outputs. Invalid transactions consume their collateral instead. All
// writes happen in one batch.
func (i *Index) ApplyTx(ctx context.Context, raw []byte) (common.Blake2b256, error) {
	if err := ctx.Err(); err != nil {
		return common.Blake2b256{}, err
	}
	view, err := primitives.DecodeTx(raw)
	if err != nil {
		return common.Blake2b256{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ok, err := i.db.Has(undoKey(view.Hash))
	if err != nil {
		return common.Blake2b256{}, err
	}
	if ok {
		return common.Blake2b256{}, fmt.Errorf("%w: %s", ErrAlreadyApplied, view.Hash)
	}

	b := i.db.NewBatch()
	var undo undoRecord
	for _, in := range view.ConsumedInputs() {
		u, rawOut, err := i.load(in)
		if err != nil {
			return common.Blake2b256{}, err
		}
		if u == nil {
			return common.Blake2b256{}, fmt.Errorf("%w: %s", ErrMissingInput, in)
		}
		if err := deleteUtxo(b, *u); err != nil {
			return common.Blake2b256{}, err
		}
		undo.Spent = append(undo.Spent, spentOutput{Ref: refOf(in), Output: rawOut})
	}
	for _, u := range view.ProducedUtxos() {
		if err := putUtxo(b, u); err != nil {
			return common.Blake2b256{}, err
		}
		undo.Produced = append(undo.Produced, refOf(u.Input))
	}
	undoBytes, err := cbor.Encode(&undo)
	if err != nil {
		return common.Blake2b256{}, fmt.Errorf("encode undo record: %w", err)
	}
	if err := b.Put(undoKey(view.Hash), undoBytes); err != nil {
		return common.Blake2b256{}, err
	}
	if err := b.Commit(); err != nil {
		return common.Blake2b256{}, err
	}

	logger := log.ForTx(i.logger, view.Hash.String())
	logger.Debug().
		Int("spent", len(undo.Spent)).
		Int("produced", len(undo.Produced)).
		Bool("valid", view.IsValid).
		Msg("applied transaction")
	return view.Hash, nil
}

// RollbackTx reverts ApplyTx for hash. Outputs of the rolled back
// transaction must not have been spent by a later one.
func (i *Index) RollbackTx(ctx context.Context, hash common.Blake2b256) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	raw, err := i.db.Get(undoKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotApplied, hash)
	}
	if err != nil {
		return err
	}
	var undo undoRecord
	if _, err := cbor.Decode(raw, &undo); err != nil {
		return fmt.Errorf("decode undo record: %w", err)
	}

	b := i.db.NewBatch()
	for _, ref := range undo.Produced {
		in, err := ref.input()
		if err != nil {
			return err
		}
		u, _, err := i.load(in)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: output %s already spent", ErrMissingInput, in)
		}
		if err := deleteUtxo(b, *u); err != nil {
			return err
		}
	}
	for _, spent := range undo.Spent {
		in, err := spent.Ref.input()
		if err != nil {
			return err
		}
		out, err := primitives.DecodeOutput(spent.Output)
		if err != nil {
			return err
		}
		if err := putUtxo(b, primitives.Utxo{Input: in, Output: out}); err != nil {
			return err
		}
	}
	if err := b.Delete(undoKey(hash)); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}
	logger := log.ForTx(i.logger, hash.String())
	logger.Debug().Msg("rolled back transaction")
	return nil
}

// load returns the stored output and its encoding, or nil when absent.
func (i *Index) load(in primitives.Input) (*primitives.Utxo, []byte, error) {
	raw, err := i.db.Get(utxoKey(in))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	out, err := primitives.DecodeOutput(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("stored output %s: %w", in, err)
	}
	return &primitives.Utxo{Input: in, Output: out}, raw, nil
}

// AddressUtxos returns the unspent outputs at address in pointer order.
func (i *Index) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := addressPrefix(address)
	if err != nil {
		return nil, err
	}
	var inputs []primitives.Input
	err = i.db.ForEach(prefix, func(key, _ []byte) error {
		in, err := inputFromSuffix(key[len(prefix):])
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	utxos := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		u, _, err := i.load(in)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("address entry without output: %s", in)
		}
		utxos = append(utxos, *u)
	}
	return primitives.SortUtxos(utxos), nil
}

// Utxos resolves inputs in order. A missing input is an error.
func (i *Index) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		u, err := i.Utxo(ctx, in)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, in)
		}
		result = append(result, *u)
	}
	return result, nil
}

// Utxo returns the unspent output at in, or nil.
func (i *Index) Utxo(ctx context.Context, in primitives.Input) (*primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, _, err := i.load(in)
	return u, err
}

// Len counts the unspent outputs.
func (i *Index) Len() (int, error) {
	return i.db.Count(prefixUtxo)
}
