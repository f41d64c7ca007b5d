package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

var errTruncated = errors.New("truncated input")

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte)      { w.buf = append(w.buf, b) }
func (w *writer) uvarint(n uint64) { w.buf = binary.AppendUvarint(w.buf, n) }
func (w *writer) varint(n int64)   { w.buf = binary.AppendVarint(w.buf, n) }
func (w *writer) count(n int)      { w.uvarint(uint64(n)) }

func (w *writer) float(f float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(f))
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) string(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bool(b bool) {
	if b {
		w.byte(1)
		return
	}
	w.byte(0)
}

// reader consumes a buffer and remembers the first failure.
type reader struct {
	buf []byte
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.buf = nil
}

func (r *reader) byte() byte {
	if r.err != nil || len(r.buf) < 1 {
		r.fail(errTruncated)
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	n, k := binary.Uvarint(r.buf)
	if k <= 0 {
		r.fail(errTruncated)
		return 0
	}
	r.buf = r.buf[k:]
	return n
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	n, k := binary.Varint(r.buf)
	if k <= 0 {
		r.fail(errTruncated)
		return 0
	}
	r.buf = r.buf[k:]
	return n
}

func (r *reader) float() float64 {
	if r.err != nil || len(r.buf) < 8 {
		r.fail(errTruncated)
		return 0
	}
	f := math.Float64frombits(binary.BigEndian.Uint64(r.buf))
	r.buf = r.buf[8:]
	return f
}

func (r *reader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil || uint64(len(r.buf)) < n {
		r.fail(errTruncated)
		return nil
	}
	b := append([]byte(nil), r.buf[:n]...)
	r.buf = r.buf[n:]
	return b
}

func (r *reader) string() string {
	return string(r.bytes())
}

func (r *reader) bool() bool {
	return r.byte() != 0
}

// count reads a length prefix and rejects values larger than the remaining input could hold.
func (r *reader) count() int {
	n := r.uvarint()
	if r.err == nil && n > uint64(len(r.buf)) {
		r.fail(errTruncated)
		return 0
	}
	return int(n)
}

// done fails when unread bytes remain.
func (r *reader) done() error {
	if r.err == nil && len(r.buf) > 0 {
		r.err = errors.New("trailing bytes")
	}
	return r.err
}
