package shapefile

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
)

// encoder converts between a Shape and the body of a record of one shape type.
// The body starts with the little-endian shape type tag; decode is called
// after the tag has been consumed.
type encoder interface {
	contentLength(s Shape) (int32, error)
	encode(w *byteWriter, s Shape) error
	decode(r *byteReader) (Shape, error)
}

// encoderFor returns the encoder for records of type t. Warnings about
// skipped parts go to log.
func encoderFor(t ShapeType, log *slog.Logger) (encoder, error) {
	switch t.Family() {
	case NullShape:
		return nullEncoder{}, nil
	case Point:
		return pointEncoder{t: t}, nil
	case MultiPoint:
		return multiPointEncoder{t: t}, nil
	case PolyLine:
		return polyEncoder{t: t, log: log}, nil
	case Polygon:
		return polyEncoder{t: t, log: log}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// encodeRecord serialises s as a complete record (header and body) with the
// given record number. The returned content length is in words.
func encodeRecord(t ShapeType, recordNumber int32, s Shape, log *slog.Logger) ([]byte, int32, error) {
	enc, err := encoderFor(t, log)
	if err != nil {
		return nil, 0, &EncodeError{Type: t, Err: err}
	}
	if err := checkDimensions(t, s); err != nil {
		return nil, 0, err
	}

	contentLength, err := enc.contentLength(s)
	if err != nil {
		return nil, 0, err
	}

	w := newByteWriter(recordHeaderSize + int(contentLength)*2)
	w.writeInt32BE(recordNumber)
	w.writeInt32BE(contentLength)
	if err := enc.encode(w, s); err != nil {
		return nil, 0, err
	}

	if got := int32(w.Len()-recordHeaderSize) / 2; got != contentLength {
		return nil, 0, &EncodeError{
			Type: t,
			Err:  fmt.Errorf("%w: body is %d words, computed %d", ErrInvalidData, got, contentLength),
		}
	}
	return w.Bytes(), contentLength, nil
}

// decodeBody decodes a record body (starting with the shape type tag).
// Records are decoded by their own tag, which may differ from the file type.
func decodeBody(body []byte) (ShapeType, Shape, error) {
	r := newByteReader(body)
	t := ShapeType(r.readInt32())
	if err := r.Err(); err != nil {
		return t, Shape{}, err
	}

	enc, err := encoderFor(t, nil)
	if err != nil {
		return t, Shape{}, err
	}
	s, err := enc.decode(r)
	if err != nil {
		return t, Shape{}, err
	}
	return t, s, r.Err()
}

// valueAt returns vs[i], or def when vs is absent.
func valueAt(vs []float64, i int, def float64) float64 {
	if i < len(vs) {
		return vs[i]
	}
	return def
}

// measures turns decoded M values into a Shape's M slice. All no-data means absent.
func measures(ms []float64) []float64 {
	for _, m := range ms {
		if !isNoData(m) {
			return ms
		}
	}
	return nil
}

type nullEncoder struct{}

func (nullEncoder) contentLength(Shape) (int32, error) { return 2, nil }

func (nullEncoder) encode(w *byteWriter, _ Shape) error {
	w.writeInt32(int32(NullShape))
	return nil
}

func (nullEncoder) decode(*byteReader) (Shape, error) { return Shape{}, nil }

type pointEncoder struct {
	t ShapeType
}

func (e pointEncoder) contentLength(Shape) (int32, error) {
	switch {
	case e.t.HasZ():
		return 18, nil
	case e.t.HasM():
		return 14, nil
	}
	return 10, nil
}

func (e pointEncoder) encode(w *byteWriter, s Shape) error {
	p, ok := s.Geometry.(orb.Point)
	if !ok {
		return &EncodeError{Type: e.t, Err: fmt.Errorf("%w: %T", ErrShapeTypeMismatch, s.Geometry)}
	}

	w.writeInt32(int32(e.t))
	w.writeFloat64s(p[0], p[1])
	if e.t.HasZ() {
		w.writeFloat64(valueAt(s.Z, 0, 0))
	}
	if e.t.HasM() {
		w.writeFloat64(valueAt(s.M, 0, noDataM))
	}
	return nil
}

func (e pointEncoder) decode(r *byteReader) (Shape, error) {
	s := Shape{Geometry: orb.Point{r.readFloat64(), r.readFloat64()}}
	if e.t.HasZ() {
		s.Z = []float64{r.readFloat64()}
	}
	if e.t.HasM() && r.Len() >= 8 {
		s.M = measures([]float64{r.readFloat64()})
	}
	return s, r.Err()
}

type multiPointEncoder struct {
	t ShapeType
}

func (e multiPointEncoder) contentLength(s Shape) (int32, error) {
	mp, ok := s.Geometry.(orb.MultiPoint)
	if !ok {
		return 0, &EncodeError{Type: e.t, Err: fmt.Errorf("%w: %T", ErrShapeTypeMismatch, s.Geometry)}
	}
	if len(mp) == 0 {
		return 0, &EncodeError{Type: e.t, Err: ErrEmptyGeometry}
	}
	return 20 + 8*int32(len(mp)) + zmWords(e.t, len(mp)), nil
}

// zmWords is the size in words of the optional Z and M blocks for n vertices.
func zmWords(t ShapeType, n int) int32 {
	switch {
	case t.HasZ():
		return 16 + 8*int32(n)
	case t.HasM():
		return 8 + 4*int32(n)
	}
	return 0
}

func (e multiPointEncoder) encode(w *byteWriter, s Shape) error {
	mp, ok := s.Geometry.(orb.MultiPoint)
	if !ok {
		return &EncodeError{Type: e.t, Err: fmt.Errorf("%w: %T", ErrShapeTypeMismatch, s.Geometry)}
	}

	b := mp.Bound()
	w.writeInt32(int32(e.t))
	w.writeFloat64s(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	w.writeInt32(int32(len(mp)))
	for _, p := range mp {
		w.writeFloat64s(p[0], p[1])
	}
	writeZM(w, e.t, len(mp), s.Z, s.M)
	return nil
}

func (e multiPointEncoder) decode(r *byteReader) (Shape, error) {
	r.readFloat64s(4)
	n := int(r.readInt32())
	xy := r.readFloat64s(2 * n)
	if err := r.Err(); err != nil {
		return Shape{}, err
	}

	mp := make(orb.MultiPoint, n)
	for i := range mp {
		mp[i] = orb.Point{xy[2*i], xy[2*i+1]}
	}
	s := Shape{Geometry: mp}
	s.Z, s.M = readZM(r, e.t, n)
	return s, r.Err()
}

// writeZM writes the Z block (range then values) and the M block for n
// vertices. Absent Z is written as 0 and absent M as no data.
func writeZM(w *byteWriter, t ShapeType, n int, z, m []float64) {
	if t.HasZ() {
		lo, hi := valueRange(z)
		w.writeFloat64s(lo, hi)
		for i := 0; i < n; i++ {
			w.writeFloat64(valueAt(z, i, 0))
		}
	}
	if t.HasM() {
		lo, hi := valueRange(m)
		if m == nil {
			lo, hi = noDataM, noDataM
		}
		w.writeFloat64s(lo, hi)
		for i := 0; i < n; i++ {
			w.writeFloat64(valueAt(m, i, noDataM))
		}
	}
}

// readZM reads the Z and M blocks for n vertices. The M block is optional in
// Z records and is treated as absent when the body ends before it.
func readZM(r *byteReader, t ShapeType, n int) (z, m []float64) {
	if t.HasZ() {
		r.readFloat64s(2)
		z = r.readFloat64s(n)
	}
	if t.HasM() && r.Len() >= 16+8*n {
		r.readFloat64s(2)
		m = measures(r.readFloat64s(n))
	}
	return z, m
}
