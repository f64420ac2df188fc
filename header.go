package shapefile

import (
	"fmt"

	"github.com/paulmach/orb"
)

const (
	fileCode    = 9994
	fileVersion = 1000

	headerSize  = 100 // bytes, both files
	headerWords = headerSize / 2

	recordHeaderSize = 8 // record number + content length
	indexEntrySize   = 8 // offset + content length
)

// Header is the 100-byte header shared by the .shp and .shx files.
// FileLength is in 16-bit words and differs between the two files.
type Header struct {
	FileLength int32
	Version    int32
	ShapeType  ShapeType
	Extent     Extent
}

func newHeader(t ShapeType) Header {
	return Header{
		FileLength: headerWords,
		Version:    fileVersion,
		ShapeType:  t,
		Extent:     Extent{Empty: true},
	}
}

// Bound returns the X/Y bounding box recorded in the header.
func (h Header) Bound() orb.Bound {
	return h.Extent.Bound
}

// marshal encodes the header. An empty extent is written as all zeros.
func (h Header) marshal() []byte {
	w := newByteWriter(headerSize)
	w.writeInt32BE(fileCode)
	for i := 0; i < 5; i++ {
		w.writeInt32BE(0)
	}
	w.writeInt32BE(h.FileLength)
	w.writeInt32(h.Version)
	w.writeInt32(int32(h.ShapeType))

	e := h.Extent
	if e.Empty {
		e = Extent{}
	}
	w.writeFloat64s(
		e.Bound.Min[0], e.Bound.Min[1], e.Bound.Max[0], e.Bound.Max[1],
		e.ZMin, e.ZMax, e.MMin, e.MMax,
	)
	return w.Bytes()
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes", ErrInvalidData, len(data))
	}
	r := newByteReader(data[:headerSize])
	if code := r.readInt32BE(); code != fileCode {
		return Header{}, fmt.Errorf("%w: file code %d", ErrInvalidData, code)
	}
	r.take(20)

	var h Header
	h.FileLength = r.readInt32BE()
	h.Version = r.readInt32()
	h.ShapeType = ShapeType(r.readInt32())
	if !h.ShapeType.Valid() {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedType, h.ShapeType)
	}

	box := r.readFloat64s(8)
	if err := r.Err(); err != nil {
		return Header{}, err
	}
	h.Extent = Extent{
		Bound: orb.Bound{Min: orb.Point{box[0], box[1]}, Max: orb.Point{box[2], box[3]}},
		ZMin:  box[4],
		ZMax:  box[5],
		MMin:  box[6],
		MMax:  box[7],
	}
	return h, nil
}
