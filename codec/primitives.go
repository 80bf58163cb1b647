package codec

import (
	"encoding/binary"
	"math"
)

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

// AsInteger converts a decoded integer of either wire width to T.
func AsInteger[T integer](v any) (T, bool) {
	switch x := v.(type) {
	case int32:
		return T(x), true
	case int64:
		return T(x), true
	case int:
		return T(x), true
	}
	return 0, false
}

type float interface {
	~float32 | ~float64
}

func AsFloat[T float](v any) (T, bool) {
	switch x := v.(type) {
	case float64:
		return T(x), true
	case float32:
		return T(x), true
	}
	return 0, false
}

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) uint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) float64(v float64) { w.uint64(math.Float64bits(v)) }

func (w *writer) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) size(n int) {
	switch {
	case n < 254:
		w.byte(byte(n))
	case n <= math.MaxUint16:
		w.byte(254)
		w.uint16(uint16(n))
	default:
		w.byte(255)
		w.uint32(uint32(n))
	}
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) align(n int) error {
	pad := (n - r.pos%n) % n
	_, err := r.bytes(pad)
	return err
}

func (r *reader) size() (int, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 254:
		v, err := r.uint16()
		return int(v), err
	case 255:
		v, err := r.uint32()
		if v > math.MaxInt32 {
			return 0, ErrTruncated
		}
		return int(v), err
	}
	return int(b), nil
}
