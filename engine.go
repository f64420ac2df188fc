package shapefile

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
)

// Append adds shape as a new last record.
//
// The geometry record is written before the index slot, so a failure while
// writing the .shp file leaves the index untouched.
func (s *FeatureSource) Append(shape Shape) error {
	if err := s.check(); err != nil {
		return err
	}

	rec, contentLength, err := s.encode(s.count, shape)
	if err != nil {
		return err
	}
	sp, err := s.loadSpatial()
	if err != nil {
		return err
	}

	offset := int64(s.header.FileLength) * 2
	if err := s.checkFileSize(offset + int64(len(rec))); err != nil {
		return err
	}
	if _, err := s.shp.WriteAt(rec, offset); err != nil {
		return &StorageError{Op: "append", Path: s.shpPath, Err: err}
	}
	entry := IndexEntry{Offset: int32(offset / 2), ContentLength: contentLength}
	if _, err := s.shx.WriteAt(marshalEntries([]IndexEntry{entry}), indexSlotOffset(s.count)); err != nil {
		return &StorageError{Op: "append", Path: s.shxPath, Err: err}
	}

	ext := recordExtent(rec)
	sp.splice(s.count, 0, &ext)
	s.count++

	s.log.Debug("appended record",
		slog.Int("fid", s.count-1),
		slog.Int("offset", int(entry.Offset)),
		slog.Int("content_length", int(contentLength)))
	return s.writeHeaders("append", offset+int64(len(rec)))
}

// Insert creates a new record at fid, moving fid and every later record one
// position back. fid == Count() appends.
func (s *FeatureSource) Insert(fid int, shape Shape) error {
	if err := s.check(); err != nil {
		return err
	}
	if fid == s.count {
		return s.Append(shape)
	}
	if err := s.checkFID(fid, s.count); err != nil {
		return err
	}
	return s.splice("insert", fid, 0, &shape)
}

// Edit replaces the geometry of record fid. When the record changes size,
// every later record is moved and its index slot rewritten.
func (s *FeatureSource) Edit(fid int, shape Shape) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.checkFID(fid, s.count); err != nil {
		return err
	}
	return s.splice("edit", fid, 1, &shape)
}

// Delete removes record fid, moving every later record one position forward.
func (s *FeatureSource) Delete(fid int) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.checkFID(fid, s.count); err != nil {
		return err
	}
	return s.splice("delete", fid, 1, nil)
}

// encode serialises shape as the record for position fid.
func (s *FeatureSource) encode(fid int, shape Shape) ([]byte, int32, error) {
	t, err := recordType(s.header.ShapeType, shape)
	if err != nil {
		return nil, 0, err
	}
	return encodeRecord(t, int32(fid+1), shape, s.log)
}

// checkFileSize rejects a mutation that would grow the .shp file past what
// the 32-bit word offsets and header length can address.
func (s *FeatureSource) checkFileSize(size int64) error {
	if size/2 > math.MaxInt32 {
		return &EncodeError{
			Type: s.header.ShapeType,
			Err:  fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size),
		}
	}
	return nil
}

// recordExtent decodes a freshly encoded record to get its stored extent.
func recordExtent(rec []byte) Extent {
	_, shape, err := decodeBody(rec[recordHeaderSize:])
	if err != nil {
		return Extent{Empty: true}
	}
	return shapeExtent(shape)
}

// splice replaces remove records at fid with shape (nil inserts nothing).
// It is the one relocation protocol behind Edit, Insert and Delete:
//
//  1. snapshot the .shp bytes after the replaced range into a temp file;
//  2. write the new record at the range's start;
//  3. replay the snapshot right after it;
//  4. rewrite the index from fid on, shifting later offsets by the size change;
//  5. when the record count changed, rewrite the record number of every moved
//     record at its new location;
//  6. truncate both files and rewrite their headers.
//
// The pair is inconsistent between steps 2 and 6; an interrupted splice is
// not recoverable from the files alone.
func (s *FeatureSource) splice(op string, fid, remove int, shape *Shape) error {
	entries, err := s.entries(op)
	if err != nil {
		return err
	}
	if len(entries) != s.count {
		return ErrRecordCountMismatch
	}

	shpSize := int64(s.header.FileLength) * 2
	target := shpSize
	if fid < len(entries) {
		target = entries[fid].ByteOffset()
	}
	tailStart := shpSize
	if fid+remove < len(entries) {
		tailStart = entries[fid+remove].ByteOffset()
	}

	var rec []byte
	var replacement *IndexEntry
	var ext *Extent
	if shape != nil {
		var contentLength int32
		if rec, contentLength, err = s.encode(fid, *shape); err != nil {
			return err
		}
		replacement = &IndexEntry{Offset: int32(target / 2), ContentLength: contentLength}
		e := recordExtent(rec)
		ext = &e
	}
	sp, err := s.loadSpatial()
	if err != nil {
		return err
	}

	updated, delta := shiftEntries(entries, fid, remove, replacement)
	if err := s.checkFileSize(shpSize + int64(delta)*2); err != nil {
		return err
	}

	if delta == 0 {
		// Same size: overwrite in place, nothing moves.
		if _, err := s.shp.WriteAt(rec, target); err != nil {
			return &StorageError{Op: op, Path: s.shpPath, Err: err}
		}
	} else if err := s.relocate(op, target, tailStart, shpSize, rec); err != nil {
		return err
	}

	if _, err := s.shx.WriteAt(marshalEntries(updated[fid:]), indexSlotOffset(fid)); err != nil {
		return &StorageError{Op: op, Path: s.shxPath, Err: err}
	}

	if len(updated) != len(entries) {
		first := fid
		if shape != nil {
			first = fid + 1
		}
		if err := s.renumber(op, updated, first); err != nil {
			return err
		}
	}

	sp.splice(fid, remove, ext)
	s.count = len(updated)

	s.log.Debug("spliced records",
		slog.String("op", op),
		slog.Int("fid", fid),
		slog.Int("removed", remove),
		slog.Int("delta_words", int(delta)),
		slog.Int("count", s.count))
	return s.writeHeaders(op, shpSize+int64(delta)*2)
}

// relocate writes rec at target and moves the bytes in [tailStart, shpSize)
// so they start right after it.
func (s *FeatureSource) relocate(op string, target, tailStart, shpSize int64, rec []byte) error {
	tmp, err := os.CreateTemp(s.opts.TempDir, "shapefile-*.tail")
	if err != nil {
		return &StorageError{Op: op, Path: s.opts.TempDir, Err: err}
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, io.NewSectionReader(s.shp, tailStart, shpSize-tailStart))
	if err != nil {
		return &StorageError{Op: op, Path: tmp.Name(), Err: err}
	}
	if n != shpSize-tailStart {
		return &StorageError{Op: op, Path: s.shpPath, Err: io.ErrUnexpectedEOF}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return &StorageError{Op: op, Path: tmp.Name(), Err: err}
	}

	if _, err := s.shp.WriteAt(rec, target); err != nil {
		return &StorageError{Op: op, Path: s.shpPath, Err: err}
	}
	if _, err := io.Copy(io.NewOffsetWriter(s.shp, target+int64(len(rec))), tmp); err != nil {
		return &StorageError{Op: op, Path: s.shpPath, Err: err}
	}
	return nil
}

// renumber rewrites the record number of every record from first on to its
// 1-based position, at the location given by the updated index table.
func (s *FeatureSource) renumber(op string, entries []IndexEntry, first int) error {
	buf := make([]byte, 4)
	for i := first; i < len(entries); i++ {
		be.PutUint32(buf, uint32(i+1))
		if _, err := s.shp.WriteAt(buf, entries[i].ByteOffset()); err != nil {
			return &StorageError{Op: op, Path: s.shpPath, Err: err}
		}
	}
	return nil
}

// writeHeaders truncates both files to their true sizes and rewrites both
// headers with the current length fields and extent.
func (s *FeatureSource) writeHeaders(op string, shpSize int64) error {
	if s.spatial != nil {
		s.header.Extent = s.spatial.extent()
	}
	s.header.FileLength = int32(shpSize / 2)

	shxSize := indexSlotOffset(s.count)
	shxHeader := s.header
	shxHeader.FileLength = indexLength(s.count)

	if err := s.shp.Truncate(shpSize); err != nil {
		return &StorageError{Op: op, Path: s.shpPath, Err: err}
	}
	if _, err := s.shp.WriteAt(s.header.marshal(), 0); err != nil {
		return &StorageError{Op: op, Path: s.shpPath, Err: err}
	}
	if err := s.shx.Truncate(shxSize); err != nil {
		return &StorageError{Op: op, Path: s.shxPath, Err: err}
	}
	if _, err := s.shx.WriteAt(shxHeader.marshal(), 0); err != nil {
		return &StorageError{Op: op, Path: s.shxPath, Err: err}
	}

	if s.opts.Sync {
		if err := s.shp.Sync(); err != nil {
			return &StorageError{Op: op, Path: s.shpPath, Err: err}
		}
		if err := s.shx.Sync(); err != nil {
			return &StorageError{Op: op, Path: s.shxPath, Err: err}
		}
	}
	return nil
}
