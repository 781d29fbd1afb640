package primitives

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/constants"
)

// ScriptKind doubles as the one-byte tag prefixed to script bytes when hashing.
type ScriptKind uint8

const (
	ScriptNative ScriptKind = iota
	ScriptPlutusV1
	ScriptPlutusV2
	ScriptPlutusV3
)

func (k ScriptKind) String() string {
	switch k {
	case ScriptNative:
		return "native"
	case ScriptPlutusV1:
		return "plutus:v1"
	case ScriptPlutusV2:
		return "plutus:v2"
	case ScriptPlutusV3:
		return "plutus:v3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k ScriptKind) IsPlutus() bool {
	return k >= ScriptPlutusV1 && k <= ScriptPlutusV3
}

// LanguageVersion returns the cost model key for Plutus kinds.
func (k ScriptKind) LanguageVersion() (uint, bool) {
	switch k {
	case ScriptPlutusV1:
		return constants.PlutusV1Version, true
	case ScriptPlutusV2:
		return constants.PlutusV2Version, true
	case ScriptPlutusV3:
		return constants.PlutusV3Version, true
	default:
		return 0, false
	}
}

// ParseScriptKind accepts the names used by Kupo and Ogmios.
func ParseScriptKind(s string) (ScriptKind, error) {
	switch strings.ToLower(s) {
	case "native":
		return ScriptNative, nil
	case "plutus:v1", "plutusv1", "plutus_v1":
		return ScriptPlutusV1, nil
	case "plutus:v2", "plutusv2", "plutus_v2":
		return ScriptPlutusV2, nil
	case "plutus:v3", "plutusv3", "plutus_v3":
		return ScriptPlutusV3, nil
	default:
		return 0, fmt.Errorf("unknown script language %q", s)
	}
}

// Script is a native or Plutus script. For Plutus kinds Bytes is the
// serialised program as it appears inside the witness set bytestring; for
// native scripts it is the script's CBOR.
type Script struct {
	Kind  ScriptKind
	Bytes []byte
}

func NewScript(kind ScriptKind, b []byte) Script {
	return Script{Kind: kind, Bytes: b}
}

// Hash is blake2b224 over the kind tag followed by the script bytes.
func (s Script) Hash() common.Blake2b224 {
	buf := make([]byte, 0, len(s.Bytes)+1)
	buf = append(buf, byte(s.Kind))
	buf = append(buf, s.Bytes...)
	return common.Blake2b224Hash(buf)
}

func (s Script) Size() int {
	return len(s.Bytes)
}

// Validate checks the bytes against the script kind.
func (s Script) Validate() error {
	if len(s.Bytes) == 0 {
		return fmt.Errorf("%w: empty %s script", ErrMalformedScript, s.Kind)
	}
	switch {
	case s.Kind == ScriptNative:
		_, err := s.NativeScript()
		return err
	case s.Kind.IsPlutus():
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedScript, s.Kind)
	}
}

// NativeScript decodes a native script.
func (s Script) NativeScript() (common.NativeScript, error) {
	if s.Kind != ScriptNative {
		return common.NativeScript{}, fmt.Errorf("%w: %s is not native", ErrMalformedScript, s.Kind)
	}
	var ns common.NativeScript
	if _, err := cbor.Decode(s.Bytes, &ns); err != nil {
		return common.NativeScript{}, fmt.Errorf("%w: %w", ErrMalformedScript, err)
	}
	return ns, nil
}

// ToScriptRef converts to the reference script carried by an output.
func (s Script) ToScriptRef() (*common.ScriptRef, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case ScriptNative:
		ns, err := s.NativeScript()
		if err != nil {
			return nil, err
		}
		return &common.ScriptRef{Type: uint(ScriptNative), Script: ns}, nil
	case ScriptPlutusV1:
		return &common.ScriptRef{Type: uint(ScriptPlutusV1), Script: common.PlutusV1Script(s.Bytes)}, nil
	case ScriptPlutusV2:
		return &common.ScriptRef{Type: uint(ScriptPlutusV2), Script: common.PlutusV2Script(s.Bytes)}, nil
	default:
		return &common.ScriptRef{Type: uint(ScriptPlutusV3), Script: common.PlutusV3Script(s.Bytes)}, nil
	}
}

// decodeScriptRef parses #6.24(bytes .cbor [kind, script]).
func decodeScriptRef(raw []byte) (*Script, error) {
	var tag cbor.Tag
	if _, err := cbor.Decode(raw, &tag); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedScript, err)
	}
	content, ok := tag.Content.([]byte)
	if tag.Number != 24 || !ok {
		return nil, fmt.Errorf("%w: script reference is not tag 24", ErrMalformedScript)
	}
	var pair struct {
		cbor.StructAsArray
		Kind   uint
		Script cbor.RawMessage
	}
	if _, err := cbor.Decode(content, &pair); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedScript, err)
	}
	kind := ScriptKind(pair.Kind)
	switch {
	case kind == ScriptNative:
		s := NewScript(kind, []byte(pair.Script))
		return &s, nil
	case kind.IsPlutus():
		var program []byte
		if _, err := cbor.Decode(pair.Script, &program); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedScript, err)
		}
		s := NewScript(kind, program)
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: unknown script kind %d", ErrMalformedScript, pair.Kind)
	}
}

// Native script constructors.

func NativePubkey(keyHash common.Blake2b224) (Script, error) {
	inner := struct {
		cbor.StructAsArray
		Type uint
		Hash []byte
	}{Type: 0, Hash: keyHash.Bytes()}
	return nativeScriptFrom(&inner)
}

func NativeAll(scripts ...Script) (Script, error) {
	children, err := nativeChildren(scripts)
	if err != nil {
		return Script{}, err
	}
	inner := struct {
		cbor.StructAsArray
		Type    uint
		Scripts []cbor.RawMessage
	}{Type: 1, Scripts: children}
	return nativeScriptFrom(&inner)
}

func NativeAny(scripts ...Script) (Script, error) {
	children, err := nativeChildren(scripts)
	if err != nil {
		return Script{}, err
	}
	inner := struct {
		cbor.StructAsArray
		Type    uint
		Scripts []cbor.RawMessage
	}{Type: 2, Scripts: children}
	return nativeScriptFrom(&inner)
}

func NativeNofK(n uint, scripts ...Script) (Script, error) {
	if n == 0 || n > uint(len(scripts)) {
		return Script{}, fmt.Errorf("n must be in 1..%d, got %d", len(scripts), n)
	}
	children, err := nativeChildren(scripts)
	if err != nil {
		return Script{}, err
	}
	inner := struct {
		cbor.StructAsArray
		Type    uint
		N       uint
		Scripts []cbor.RawMessage
	}{Type: 3, N: n, Scripts: children}
	return nativeScriptFrom(&inner)
}

func NativeInvalidBefore(slot uint64) (Script, error) {
	inner := struct {
		cbor.StructAsArray
		Type uint
		Slot uint64
	}{Type: 4, Slot: slot}
	return nativeScriptFrom(&inner)
}

func NativeInvalidHereafter(slot uint64) (Script, error) {
	inner := struct {
		cbor.StructAsArray
		Type uint
		Slot uint64
	}{Type: 5, Slot: slot}
	return nativeScriptFrom(&inner)
}

func nativeChildren(scripts []Script) ([]cbor.RawMessage, error) {
	children := make([]cbor.RawMessage, 0, len(scripts))
	for _, s := range scripts {
		if s.Kind != ScriptNative {
			return nil, errors.New("native script can only nest native scripts")
		}
		children = append(children, cbor.RawMessage(s.Bytes))
	}
	return children, nil
}

func nativeScriptFrom(inner any) (Script, error) {
	encoded, err := cbor.Encode(inner)
	if err != nil {
		return Script{}, err
	}
	s := NewScript(ScriptNative, encoded)
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}
