package shapefile

import (
	"fmt"
	"io"
)

// IndexEntry is one 8-byte .shx slot. Both fields are in 16-bit words.
type IndexEntry struct {
	Offset        int32 // Offset of the record header in the .shp file
	ContentLength int32 // Length of the record body, excluding the record header
}

// ByteOffset returns the record's byte offset in the .shp file.
func (e IndexEntry) ByteOffset() int64 {
	return int64(e.Offset) * 2
}

// RecordSize returns the record's total size in bytes including its header.
func (e IndexEntry) RecordSize() int64 {
	return int64(e.ContentLength)*2 + recordHeaderSize
}

// End returns the byte offset just past the record.
func (e IndexEntry) End() int64 {
	return e.ByteOffset() + e.RecordSize()
}

// indexLength is the .shx header length field for count records.
func indexLength(count int) int32 {
	return int32(headerWords + count*indexEntrySize/2)
}

// indexSlotOffset is the byte offset of slot fid in the .shx file.
func indexSlotOffset(fid int) int64 {
	return headerSize + int64(fid)*indexEntrySize
}

func marshalEntries(entries []IndexEntry) []byte {
	w := newByteWriter(len(entries) * indexEntrySize)
	for _, e := range entries {
		w.writeInt32BE(e.Offset)
		w.writeInt32BE(e.ContentLength)
	}
	return w.Bytes()
}

func parseEntries(data []byte) ([]IndexEntry, error) {
	if len(data)%indexEntrySize != 0 {
		return nil, fmt.Errorf("%w: index body is %d bytes", ErrCorruptIndex, len(data))
	}
	r := newByteReader(data)
	entries := make([]IndexEntry, len(data)/indexEntrySize)
	for i := range entries {
		entries[i] = IndexEntry{
			Offset:        r.readInt32BE(),
			ContentLength: r.readInt32BE(),
		}
	}
	return entries, r.Err()
}

// readIndex loads the whole index table from an .shx file of the given size.
func readIndex(r io.ReaderAt, size int64) ([]IndexEntry, error) {
	if size < headerSize {
		return nil, fmt.Errorf("%w: index file is %d bytes", ErrCorruptIndex, size)
	}
	data := make([]byte, size-headerSize)
	if _, err := r.ReadAt(data, headerSize); err != nil && err != io.EOF {
		return nil, err
	}
	return parseEntries(data)
}

// checkContiguous verifies that entries are packed from the end of the header
// with no gaps and that the last record ends at shpSize.
func checkContiguous(entries []IndexEntry, shpSize int64) error {
	next := int64(headerSize)
	for i, e := range entries {
		if e.ContentLength < 0 {
			return fmt.Errorf("%w: fid %d has content length %d", ErrCorruptIndex, i, e.ContentLength)
		}
		if e.ByteOffset() != next {
			return fmt.Errorf("%w: fid %d at byte %d, expected %d", ErrCorruptIndex, i, e.ByteOffset(), next)
		}
		next = e.End()
	}
	if next != shpSize {
		return fmt.Errorf("%w: records end at byte %d, geometry file is %d bytes", ErrRecordCountMismatch, next, shpSize)
	}
	return nil
}

// shiftEntries returns the index table after replacing remove slots at fid
// with replacement (nil for none). Every slot after the touched range has its
// offset moved by the size difference; content lengths are kept.
func shiftEntries(entries []IndexEntry, fid, remove int, replacement *IndexEntry) (out []IndexEntry, delta int32) {
	removed := int32(0)
	for _, e := range entries[fid : fid+remove] {
		removed += e.ContentLength + recordHeaderSize/2
	}
	added := int32(0)
	if replacement != nil {
		added = replacement.ContentLength + recordHeaderSize/2
	}
	delta = added - removed

	out = make([]IndexEntry, 0, len(entries)-remove+1)
	out = append(out, entries[:fid]...)
	if replacement != nil {
		out = append(out, *replacement)
	}
	for _, e := range entries[fid+remove:] {
		e.Offset += delta
		out = append(out, e)
	}
	return out, delta
}
