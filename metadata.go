package hose

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// maxMetadataChunk is the longest text or byte string a metadatum may hold.
const maxMetadataChunk = 64

// metadataEncMode sorts map keys by their encoded bytes, which puts integer
// labels in ascending order.
var metadataEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeMetadata encodes a label map as Shelley auxiliary data, a CBOR map
// from unsigned labels to metadatums.
func EncodeMetadata(metadata map[uint64]any) ([]byte, error) {
	md, err := labelMap(metadata)
	if err != nil {
		return nil, err
	}
	encoded, err := metadataEncMode.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return encoded, nil
}

func labelMap(metadata map[uint64]any) (map[uint64]any, error) {
	out := make(map[uint64]any, len(metadata))
	for label, v := range metadata {
		val, err := toMetadatum(v)
		if err != nil {
			return nil, fmt.Errorf("metadata label %d: %w", label, err)
		}
		out[label] = val
	}
	return out, nil
}

// toMetadatum checks v against the metadatum grammar and returns the value
// to encode: text, bytes, an integer, a list or a map.
func toMetadatum(v any) (any, error) {
	switch tv := v.(type) {
	case string:
		if len(tv) > maxMetadataChunk {
			return nil, fmt.Errorf("text of %d bytes exceeds %d", len(tv), maxMetadataChunk)
		}
		return tv, nil
	case int:
		return int64(tv), nil
	case int64:
		return tv, nil
	case uint64:
		return tv, nil
	case *big.Int:
		if tv == nil {
			return nil, errors.New("nil integer")
		}
		return new(big.Int).Set(tv), nil
	case []byte:
		if len(tv) > maxMetadataChunk {
			return nil, fmt.Errorf("bytes of length %d exceed %d", len(tv), maxMetadataChunk)
		}
		return append([]byte(nil), tv...), nil
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			if len(k) > maxMetadataChunk {
				return nil, fmt.Errorf("map key of %d bytes exceeds %d", len(k), maxMetadataChunk)
			}
			val, err := toMetadatum(item)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			out[k] = val
		}
		return out, nil
	case map[uint64]any:
		return labelMap(tv)
	case []any:
		items := make([]any, 0, len(tv))
		for i, item := range tv {
			m, err := toMetadatum(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			items = append(items, m)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported metadata value type %T", v)
	}
}
