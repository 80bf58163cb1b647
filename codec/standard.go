// Package codec implements the binary message codec shared by both sides of
// the bridge. The wire format is the framework's standard message codec:
// one type byte followed by a little-endian payload, with variable-length
// sizes and typed arrays aligned to their element width.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrTruncated   = errors.New("codec: message truncated")
	ErrUnsupported = errors.New("codec: unsupported value")
)

// MessageCodec turns values into messages and back.
type MessageCodec interface {
	Encode(v any) ([]byte, error)
	Decode(msg []byte) (any, error)
}

const (
	tNull        = 0
	tTrue        = 1
	tFalse       = 2
	tInt32       = 3
	tInt64       = 4
	tLargeInt    = 5
	tFloat64     = 6
	tString      = 7
	tUint8List   = 8
	tInt32List   = 9
	tInt64List   = 10
	tFloat64List = 11
	tList        = 12
	tMap         = 13
	tFloat32List = 14

	// ExtensionBase is the first type byte available to extensions.
	ExtensionBase = 128
)

// Extension encodes one Go type under a custom type byte. Encode writes the
// payload only; the codec writes the type byte.
type Extension struct {
	Type   byte
	Value  any
	Encode func(v any) (any, error)
	Decode func(v any) (any, error)
}

// StandardCodec is safe for concurrent use once built.
type StandardCodec struct {
	byType map[reflect.Type]*Extension
	byCode map[byte]*Extension
}

var Standard = &StandardCodec{}

// NewStandard builds a codec with extensions. Each extension maps its Go
// type to a plain value (usually a list of fields) and back.
func NewStandard(exts ...Extension) *StandardCodec {
	c := &StandardCodec{
		byType: make(map[reflect.Type]*Extension),
		byCode: make(map[byte]*Extension),
	}
	for i := range exts {
		ext := &exts[i]
		if ext.Type < ExtensionBase {
			panic(fmt.Sprintf("codec: extension type %d below %d", ext.Type, ExtensionBase))
		}
		if _, dup := c.byCode[ext.Type]; dup {
			panic(fmt.Sprintf("codec: duplicate extension type %d", ext.Type))
		}
		c.byType[reflect.TypeOf(ext.Value)] = ext
		c.byCode[ext.Type] = ext
	}
	return c
}

func (c *StandardCodec) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	w := &writer{}
	if err := c.write(w, v); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (c *StandardCodec) Decode(msg []byte) (any, error) {
	if len(msg) == 0 {
		return nil, nil
	}
	r := &reader{buf: msg}
	v, err := c.read(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errors.Errorf("codec: %d trailing bytes", r.remaining())
	}
	return v, nil
}

func (c *StandardCodec) write(w *writer, v any) error {
	switch x := v.(type) {
	case nil:
		w.byte(tNull)
	case bool:
		if x {
			w.byte(tTrue)
		} else {
			w.byte(tFalse)
		}
	case int8:
		writeInt(w, int64(x))
	case int16:
		writeInt(w, int64(x))
	case int32:
		writeInt(w, int64(x))
	case int64:
		writeInt(w, x)
	case int:
		writeInt(w, int64(x))
	case uint8:
		writeInt(w, int64(x))
	case uint16:
		writeInt(w, int64(x))
	case uint32:
		writeInt(w, int64(x))
	case uint:
		return writeUint(w, uint64(x))
	case uint64:
		return writeUint(w, x)
	case float32:
		c.writeFloat(w, float64(x))
	case float64:
		c.writeFloat(w, x)
	case string:
		w.byte(tString)
		w.size(len(x))
		w.bytes([]byte(x))
	case []byte:
		w.byte(tUint8List)
		w.size(len(x))
		w.bytes(x)
	case []int32:
		w.byte(tInt32List)
		w.size(len(x))
		w.align(4)
		for _, e := range x {
			w.uint32(uint32(e))
		}
	case []int64:
		w.byte(tInt64List)
		w.size(len(x))
		w.align(8)
		for _, e := range x {
			w.uint64(uint64(e))
		}
	case []float32:
		w.byte(tFloat32List)
		w.size(len(x))
		w.align(4)
		for _, e := range x {
			w.uint32(math.Float32bits(e))
		}
	case []float64:
		w.byte(tFloat64List)
		w.size(len(x))
		w.align(8)
		for _, e := range x {
			w.float64(e)
		}
	case []any:
		w.byte(tList)
		w.size(len(x))
		for _, e := range x {
			if err := c.write(w, e); err != nil {
				return err
			}
		}
	case []string:
		w.byte(tList)
		w.size(len(x))
		for _, e := range x {
			if err := c.write(w, e); err != nil {
				return err
			}
		}
	case map[any]any:
		w.byte(tMap)
		w.size(len(x))
		for k, e := range x {
			if err := c.write(w, k); err != nil {
				return err
			}
			if err := c.write(w, e); err != nil {
				return err
			}
		}
	case map[string]any:
		// sorted so that equal maps encode to equal bytes
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.byte(tMap)
		w.size(len(x))
		for _, k := range keys {
			c.write(w, k)
			if err := c.write(w, x[k]); err != nil {
				return err
			}
		}
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.byte(tMap)
		w.size(len(x))
		for _, k := range keys {
			c.write(w, k)
			c.write(w, x[k])
		}
	default:
		ext, ok := c.byType[reflect.TypeOf(v)]
		if !ok {
			return errors.Wrapf(ErrUnsupported, "%T", v)
		}
		plain, err := ext.Encode(v)
		if err != nil {
			return errors.Wrapf(err, "codec: encode %T", v)
		}
		w.byte(ext.Type)
		return c.write(w, plain)
	}
	return nil
}

func writeInt(w *writer, v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		w.byte(tInt32)
		w.uint32(uint32(int32(v)))
		return
	}
	w.byte(tInt64)
	w.uint64(uint64(v))
}

func writeUint(w *writer, v uint64) error {
	if v > math.MaxInt64 {
		return errors.Wrapf(ErrUnsupported, "unsigned value %d overflows int64", v)
	}
	writeInt(w, int64(v))
	return nil
}

func (c *StandardCodec) writeFloat(w *writer, v float64) {
	w.byte(tFloat64)
	w.align(8)
	w.float64(v)
}

func (c *StandardCodec) read(r *reader) (any, error) {
	t, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch t {
	case tNull:
		return nil, nil
	case tTrue:
		return true, nil
	case tFalse:
		return false, nil
	case tInt32:
		v, err := r.uint32()
		return int32(v), err
	case tInt64:
		v, err := r.uint64()
		return int64(v), err
	case tLargeInt, tString:
		n, err := r.size()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tFloat64:
		if err := r.align(8); err != nil {
			return nil, err
		}
		v, err := r.uint64()
		return math.Float64frombits(v), err
	case tUint8List:
		n, err := r.size()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	case tInt32List:
		n, err := r.size()
		if err == nil {
			err = r.align(4)
		}
		if err == nil {
			err = r.need(n * 4)
		}
		if err != nil {
			return nil, err
		}
		out := make([]int32, n)
		for i := range out {
			v, _ := r.uint32()
			out[i] = int32(v)
		}
		return out, nil
	case tInt64List:
		n, err := r.size()
		if err == nil {
			err = r.align(8)
		}
		if err == nil {
			err = r.need(n * 8)
		}
		if err != nil {
			return nil, err
		}
		out := make([]int64, n)
		for i := range out {
			v, _ := r.uint64()
			out[i] = int64(v)
		}
		return out, nil
	case tFloat32List:
		n, err := r.size()
		if err == nil {
			err = r.align(4)
		}
		if err == nil {
			err = r.need(n * 4)
		}
		if err != nil {
			return nil, err
		}
		out := make([]float32, n)
		for i := range out {
			v, _ := r.uint32()
			out[i] = math.Float32frombits(v)
		}
		return out, nil
	case tFloat64List:
		n, err := r.size()
		if err == nil {
			err = r.align(8)
		}
		if err == nil {
			err = r.need(n * 8)
		}
		if err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i := range out {
			v, _ := r.uint64()
			out[i] = math.Float64frombits(v)
		}
		return out, nil
	case tList:
		n, err := r.size()
		if err != nil {
			return nil, err
		}
		if n > r.remaining() {
			return nil, ErrTruncated
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = c.read(r); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tMap:
		n, err := r.size()
		if err != nil {
			return nil, err
		}
		if 2*n > r.remaining() {
			return nil, ErrTruncated
		}
		out := make(map[any]any, n)
		for i := 0; i < n; i++ {
			k, err := c.read(r)
			if err != nil {
				return nil, err
			}
			if k != nil && !reflect.TypeOf(k).Comparable() {
				return nil, errors.Wrapf(ErrUnsupported, "map key of type %T", k)
			}
			v, err := c.read(r)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}

	ext, ok := c.byCode[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "type byte %d", t)
	}
	plain, err := c.read(r)
	if err != nil {
		return nil, err
	}
	v, err := ext.Decode(plain)
	return v, errors.Wrapf(err, "codec: decode extension %d", t)
}
