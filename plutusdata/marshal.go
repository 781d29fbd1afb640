package plutusdata

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/blinklabs-io/plutigo/data"
)

// Marshaler is implemented by types with a custom Plutus encoding.
type Marshaler interface {
	ToPlutusData() (data.PlutusData, error)
}

// Unmarshaler is implemented by types with a custom Plutus decoding.
type Unmarshaler interface {
	FromPlutusData(pd data.PlutusData) error
}

var (
	marshalerType   = reflect.TypeFor[Marshaler]()
	unmarshalerType = reflect.TypeFor[Unmarshaler]()
	plutusDataType  = reflect.TypeFor[data.PlutusData]()
	bigIntType      = reflect.TypeFor[big.Int]()
)

// tagOptions is a parsed `plutus:"..."` struct tag.
//
// On the blank field `_ struct{}` it shapes the struct itself:
//
//	constr=N  constructor tag (default 0)
//	list      encode as a plain list
//	map       encode as a map keyed by field name
//	indef     use indefinite-length encoding
//
// On regular fields:
//
//	-         skip the field
//	key=NAME  map key for map structs
//	hex       string holding hex bytes
//	indef     indefinite-length list
//	option    pointer encoded as Some (constr 0) or None (constr 1)
type tagOptions struct {
	skip   bool
	constr uint
	list   bool
	isMap  bool
	indef  bool
	key    string
	hex    bool
	option bool
}

func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "" {
		return opts, nil
	}
	for part := range strings.SplitSeq(tag, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch name {
		case "-":
			opts.skip = true
		case "constr":
			c, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return opts, fmt.Errorf("invalid constr %q: %w", value, err)
			}
			opts.constr = uint(c)
		case "list":
			opts.list = true
		case "map":
			opts.isMap = true
		case "indef":
			opts.indef = true
		case "key":
			opts.key = value
		case "hex":
			opts.hex = true
		case "option":
			opts.option = true
		default:
			return opts, fmt.Errorf("unknown plutus tag option %q", name)
		}
	}
	return opts, nil
}

// structShape returns the blank-field options of typ.
func structShape(typ reflect.Type) (tagOptions, error) {
	for i := range typ.NumField() {
		if f := typ.Field(i); f.Name == "_" {
			return parseTag(f.Tag.Get("plutus"))
		}
	}
	return tagOptions{}, nil
}

type fieldInfo struct {
	index int
	name  string
	opts  tagOptions
}

func structFields(typ reflect.Type) ([]fieldInfo, error) {
	var fields []fieldInfo
	for i := range typ.NumField() {
		f := typ.Field(i)
		if f.Name == "_" || !f.IsExported() {
			continue
		}
		opts, err := parseTag(f.Tag.Get("plutus"))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if opts.skip {
			continue
		}
		name := opts.key
		if name == "" {
			name = f.Name
		}
		fields = append(fields, fieldInfo{index: i, name: name, opts: opts})
	}
	return fields, nil
}

// Marshal converts a Go value to Plutus data. Structs become constructor 0
// unless their blank field says otherwise, integers of any width and
// *big.Int become integers, []byte and string become byte strings, bool
// becomes constructor 0 or 1, slices become lists and maps become maps
// with keys in encoded order.
func Marshal(v any) (data.PlutusData, error) {
	if v == nil {
		return nil, errors.New("cannot marshal nil")
	}
	if pd, ok := v.(data.PlutusData); ok {
		return pd, nil
	}
	return marshalValue(reflect.ValueOf(v), tagOptions{})
}

func marshalValue(val reflect.Value, opts tagOptions) (data.PlutusData, error) {
	if opts.option {
		if val.Kind() != reflect.Pointer {
			return nil, fmt.Errorf("option requires a pointer, got %s", val.Type())
		}
		if val.IsNil() {
			return data.NewConstr(1), nil
		}
		inner, err := marshalValue(val.Elem(), tagOptions{hex: opts.hex, indef: opts.indef})
		if err != nil {
			return nil, err
		}
		return data.NewConstr(0, inner), nil
	}

	if val.Type().Implements(marshalerType) {
		if val.Kind() == reflect.Pointer && val.IsNil() {
			return nil, fmt.Errorf("nil %s", val.Type())
		}
		return val.Interface().(Marshaler).ToPlutusData()
	}
	if val.CanAddr() && val.Addr().Type().Implements(marshalerType) {
		return val.Addr().Interface().(Marshaler).ToPlutusData()
	}
	if val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil, errors.New("nil interface value")
		}
		return marshalValue(val.Elem(), opts)
	}
	if pd, ok := val.Interface().(data.PlutusData); ok {
		return pd, nil
	}

	if val.Kind() == reflect.Pointer {
		if val.Type().Elem() == bigIntType {
			if val.IsNil() {
				return data.NewInteger(new(big.Int)), nil
			}
			return BigInt(val.Interface().(*big.Int)), nil
		}
		if val.IsNil() {
			return nil, fmt.Errorf("nil %s", val.Type())
		}
		return marshalValue(val.Elem(), opts)
	}

	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return data.NewInteger(big.NewInt(val.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return data.NewInteger(new(big.Int).SetUint64(val.Uint())), nil
	case reflect.Bool:
		return Bool(val.Bool()), nil
	case reflect.String:
		if opts.hex {
			b, err := hex.DecodeString(val.String())
			if err != nil {
				return nil, fmt.Errorf("invalid hex: %w", err)
			}
			return data.NewByteString(b), nil
		}
		return data.NewByteString([]byte(val.String())), nil
	case reflect.Slice, reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, val.Len())
			reflect.Copy(reflect.ValueOf(b), val)
			return data.NewByteString(b), nil
		}
		items := make([]data.PlutusData, 0, val.Len())
		for i := range val.Len() {
			item, err := marshalValue(val.Index(i), tagOptions{})
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, item)
		}
		return data.NewListDefIndef(opts.indef, items...), nil
	case reflect.Map:
		return marshalMap(val)
	case reflect.Struct:
		if val.Type() == bigIntType {
			v := val.Interface().(big.Int)
			return BigInt(&v), nil
		}
		return marshalStruct(val)
	default:
		return nil, fmt.Errorf("unsupported type %s", val.Type())
	}
}

type encodedPair struct {
	key  []byte
	pair [2]data.PlutusData
}

func marshalMap(val reflect.Value) (data.PlutusData, error) {
	pairs := make([]encodedPair, 0, val.Len())
	iter := val.MapRange()
	for iter.Next() {
		k, err := marshalValue(iter.Key(), tagOptions{})
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := marshalValue(iter.Value(), tagOptions{})
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		raw, err := data.Encode(k)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		pairs = append(pairs, encodedPair{key: raw, pair: [2]data.PlutusData{k, v}})
	}
	slices.SortFunc(pairs, func(a, b encodedPair) int {
		return bytes.Compare(a.key, b.key)
	})
	out := make([][2]data.PlutusData, len(pairs))
	for i, p := range pairs {
		out[i] = p.pair
	}
	return data.NewMap(out), nil
}

func marshalStruct(val reflect.Value) (data.PlutusData, error) {
	typ := val.Type()
	shape, err := structShape(typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	fields, err := structFields(typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}

	if shape.isMap {
		pairs := make([][2]data.PlutusData, 0, len(fields))
		for _, f := range fields {
			v, err := marshalValue(val.Field(f.index), f.opts)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			pairs = append(pairs, [2]data.PlutusData{data.NewByteString([]byte(f.name)), v})
		}
		return data.NewMap(pairs), nil
	}

	items := make([]data.PlutusData, 0, len(fields))
	for _, f := range fields {
		v, err := marshalValue(val.Field(f.index), f.opts)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", typ.Field(f.index).Name, err)
		}
		items = append(items, v)
	}
	if shape.list {
		return data.NewListDefIndef(shape.indef, items...), nil
	}
	return data.NewConstrDefIndef(shape.indef, shape.constr, items...), nil
}
