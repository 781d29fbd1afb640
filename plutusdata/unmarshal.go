package plutusdata

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/blinklabs-io/plutigo/data"
)

// Unmarshal fills v, which must be a non-nil pointer, from pd. It mirrors
// Marshal: a struct encoded with constr=N only accepts constructor N.
func Unmarshal(pd data.PlutusData, v any) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return errors.New("unmarshal target must be a non-nil pointer")
	}
	if pd == nil {
		return errors.New("cannot unmarshal nil data")
	}
	return unmarshalValue(pd, val.Elem(), tagOptions{})
}

func typeError(want string, pd data.PlutusData) error {
	return fmt.Errorf("expected %s, got %T", want, pd)
}

func unmarshalValue(pd data.PlutusData, val reflect.Value, opts tagOptions) error {
	if opts.option {
		return unmarshalOption(pd, val, opts)
	}

	if val.CanAddr() && val.Addr().Type().Implements(unmarshalerType) {
		return val.Addr().Interface().(Unmarshaler).FromPlutusData(pd)
	}
	if val.Type() == plutusDataType {
		val.Set(reflect.ValueOf(pd))
		return nil
	}

	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		return unmarshalValue(pd, val.Elem(), opts)
	}

	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := integer(pd)
		if err != nil {
			return err
		}
		if !n.IsInt64() || val.OverflowInt(n.Int64()) {
			return fmt.Errorf("integer %s overflows %s", n, val.Type())
		}
		val.SetInt(n.Int64())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := integer(pd)
		if err != nil {
			return err
		}
		if !n.IsUint64() || val.OverflowUint(n.Uint64()) {
			return fmt.Errorf("integer %s overflows %s", n, val.Type())
		}
		val.SetUint(n.Uint64())
	case reflect.Bool:
		c, ok := pd.(*data.Constr)
		if !ok || len(c.Fields) != 0 || c.Tag > 1 {
			return typeError("bool constructor", pd)
		}
		val.SetBool(c.Tag == 1)
	case reflect.String:
		b, err := byteString(pd)
		if err != nil {
			return err
		}
		if opts.hex {
			val.SetString(hex.EncodeToString(b))
		} else {
			val.SetString(string(b))
		}
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			b, err := byteString(pd)
			if err != nil {
				return err
			}
			val.SetBytes(append([]byte(nil), b...))
			return nil
		}
		l, ok := pd.(*data.List)
		if !ok {
			return typeError("list", pd)
		}
		out := reflect.MakeSlice(val.Type(), len(l.Items), len(l.Items))
		for i, item := range l.Items {
			if err := unmarshalValue(item, out.Index(i), tagOptions{}); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		val.Set(out)
	case reflect.Array:
		if val.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported array type %s", val.Type())
		}
		b, err := byteString(pd)
		if err != nil {
			return err
		}
		if len(b) != val.Len() {
			return fmt.Errorf("expected %d bytes, got %d", val.Len(), len(b))
		}
		reflect.Copy(val, reflect.ValueOf(b))
	case reflect.Map:
		m, ok := pd.(*data.Map)
		if !ok {
			return typeError("map", pd)
		}
		out := reflect.MakeMapWithSize(val.Type(), len(m.Pairs))
		for _, pair := range m.Pairs {
			k := reflect.New(val.Type().Key()).Elem()
			if err := unmarshalValue(pair[0], k, tagOptions{}); err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			v := reflect.New(val.Type().Elem()).Elem()
			if err := unmarshalValue(pair[1], v, tagOptions{}); err != nil {
				return fmt.Errorf("map value: %w", err)
			}
			out.SetMapIndex(k, v)
		}
		val.Set(out)
	case reflect.Struct:
		if val.Type() == bigIntType {
			n, err := integer(pd)
			if err != nil {
				return err
			}
			val.Set(reflect.ValueOf(*new(big.Int).Set(n)))
			return nil
		}
		return unmarshalStruct(pd, val)
	default:
		return fmt.Errorf("unsupported type %s", val.Type())
	}
	return nil
}

func unmarshalOption(pd data.PlutusData, val reflect.Value, opts tagOptions) error {
	if val.Kind() != reflect.Pointer {
		return fmt.Errorf("option requires a pointer, got %s", val.Type())
	}
	c, ok := pd.(*data.Constr)
	if !ok {
		return typeError("option constructor", pd)
	}
	switch {
	case c.Tag == 1 && len(c.Fields) == 0:
		val.Set(reflect.Zero(val.Type()))
		return nil
	case c.Tag == 0 && len(c.Fields) == 1:
		inner := reflect.New(val.Type().Elem())
		if err := unmarshalValue(c.Fields[0], inner.Elem(), tagOptions{hex: opts.hex}); err != nil {
			return err
		}
		val.Set(inner)
		return nil
	default:
		return fmt.Errorf("invalid option constructor %d with %d fields", c.Tag, len(c.Fields))
	}
}

func unmarshalStruct(pd data.PlutusData, val reflect.Value) error {
	typ := val.Type()
	shape, err := structShape(typ)
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	fields, err := structFields(typ)
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}

	if shape.isMap {
		m, ok := pd.(*data.Map)
		if !ok {
			return typeError("map", pd)
		}
		byName := make(map[string]data.PlutusData, len(m.Pairs))
		for _, pair := range m.Pairs {
			k, err := byteString(pair[0])
			if err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			byName[string(k)] = pair[1]
		}
		for _, f := range fields {
			item, ok := byName[f.name]
			if !ok {
				return fmt.Errorf("missing key %q", f.name)
			}
			if err := unmarshalValue(item, val.Field(f.index), f.opts); err != nil {
				return fmt.Errorf("field %s: %w", f.name, err)
			}
		}
		return nil
	}

	var items []data.PlutusData
	if shape.list {
		l, ok := pd.(*data.List)
		if !ok {
			return typeError("list", pd)
		}
		items = l.Items
	} else {
		c, ok := pd.(*data.Constr)
		if !ok {
			return typeError("constructor", pd)
		}
		if c.Tag != shape.constr {
			return fmt.Errorf("%s: expected constructor %d, got %d", typ, shape.constr, c.Tag)
		}
		items = c.Fields
	}
	if len(items) != len(fields) {
		return fmt.Errorf("%s: expected %d fields, got %d", typ, len(fields), len(items))
	}
	for i, f := range fields {
		if err := unmarshalValue(items[i], val.Field(f.index), f.opts); err != nil {
			return fmt.Errorf("field %s: %w", typ.Field(f.index).Name, err)
		}
	}
	return nil
}

func integer(pd data.PlutusData) (*big.Int, error) {
	i, ok := pd.(*data.Integer)
	if !ok || i.Inner == nil {
		return nil, typeError("integer", pd)
	}
	return i.Inner, nil
}

func byteString(pd data.PlutusData) ([]byte, error) {
	b, ok := pd.(*data.ByteString)
	if !ok {
		return nil, typeError("byte string", pd)
	}
	return b.Inner, nil
}

// Int64 reads pd as an integer that fits in 64 bits.
func Int64(pd data.PlutusData) (int64, error) {
	n, err := integer(pd)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer %s out of range [%d, %d]", n, int64(math.MinInt64), int64(math.MaxInt64))
	}
	return n.Int64(), nil
}
