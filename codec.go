package shapefile

import (
	"encoding/binary"
	"errors"
	"math"
)

var errUnexpectedEndOfData = errors.New("unexpected end of data")

var (
	le = binary.LittleEndian
	be = binary.BigEndian
)

// byteWriter appends fixed-width fields to a buffer. Record headers and index
// slots are big-endian; everything else is little-endian.
type byteWriter struct {
	buf []byte
}

func newByteWriter(size int) *byteWriter {
	return &byteWriter{buf: make([]byte, 0, size)}
}

func (w *byteWriter) Bytes() []byte { return w.buf }

func (w *byteWriter) Len() int { return len(w.buf) }

func (w *byteWriter) writeInt32BE(v int32) {
	w.buf = be.AppendUint32(w.buf, uint32(v))
}

func (w *byteWriter) writeInt32(v int32) {
	w.buf = le.AppendUint32(w.buf, uint32(v))
}

func (w *byteWriter) writeFloat64(v float64) {
	w.buf = le.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *byteWriter) writeFloat64s(vs ...float64) {
	for _, v := range vs {
		w.writeFloat64(v)
	}
}

// byteReader consumes fields from a slice. The first short read sets a sticky
// error; later reads return zero values.
type byteReader struct {
	rest []byte
	err  error
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{rest: data}
}

func (r *byteReader) Err() error {
	return r.err
}

func (r *byteReader) Len() int {
	return len(r.rest)
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.rest) < n {
		r.err = errUnexpectedEndOfData
		return nil
	}
	b := r.rest[:n]
	r.rest = r.rest[n:]
	return b
}

func (r *byteReader) readInt32BE() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(be.Uint32(b))
}

func (r *byteReader) readInt32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(le.Uint32(b))
}

func (r *byteReader) readFloat64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(le.Uint64(b))
}

func (r *byteReader) readFloat64s(n int) []float64 {
	if n < 0 {
		r.err = errUnexpectedEndOfData
		return nil
	}
	b := r.take(8 * n)
	if b == nil {
		return nil
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = math.Float64frombits(le.Uint64(b[8*i:]))
	}
	return vs
}

func (r *byteReader) readInt32s(n int) []int32 {
	if n < 0 {
		r.err = errUnexpectedEndOfData
		return nil
	}
	b := r.take(4 * n)
	if b == nil {
		return nil
	}
	vs := make([]int32, n)
	for i := range vs {
		vs[i] = int32(le.Uint32(b[4*i:]))
	}
	return vs
}
