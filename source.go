package shapefile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

// FeatureSource is an open .shp/.shx pair.
//
// It is not safe for concurrent use, and it does not lock the files: only one
// FeatureSource may mutate a given pair at a time.
type FeatureSource struct {
	shpPath string
	shxPath string
	shp     *os.File
	shx     *os.File

	header Header // .shp header; FileLength tracks the .shp size
	count  int

	opts    *Options
	log     *slog.Logger
	spatial *spatialIndex // loaded on first use
}

// filePaths returns the .shp and .shx paths for path, which may name either
// file or the bare base name. The extension case of path is preserved.
func filePaths(path string) (shp, shx string) {
	ext := filepath.Ext(path)
	base := path
	switch strings.ToLower(ext) {
	case ".shp", ".shx":
		base = strings.TrimSuffix(path, ext)
	default:
		return path + ".shp", path + ".shx"
	}
	if ext == strings.ToUpper(ext) {
		return base + ".SHP", base + ".SHX"
	}
	return base + ".shp", base + ".shx"
}

// Create creates an empty .shp/.shx pair of shape type t, truncating any
// existing files.
func Create(path string, t ShapeType, opts *Options) (*FeatureSource, error) {
	if !t.Valid() || t == NullShape || t == MultiPatch {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}

	opts = opts.withDefaults()
	s := &FeatureSource{
		header:  newHeader(t),
		opts:    opts,
		log:     opts.Logger,
		spatial: newSpatialIndex(nil, opts.Tolerance),
	}
	s.shpPath, s.shxPath = filePaths(path)

	var err error
	if s.shp, err = os.OpenFile(s.shpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644); err != nil {
		return nil, &StorageError{Op: "create", Path: s.shpPath, Err: err}
	}
	if s.shx, err = os.OpenFile(s.shxPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644); err != nil {
		_ = s.shp.Close()
		return nil, &StorageError{Op: "create", Path: s.shxPath, Err: err}
	}

	if err := s.writeHeaders("create", headerSize); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing .shp/.shx pair for reading and editing.
//
// The pair is checked before it is returned: both headers must agree, both
// length fields must match their files, and every index slot must point at a
// record header with the expected number and content length. A mismatched
// pair is reported, never repaired.
func Open(path string, opts *Options) (*FeatureSource, error) {
	opts = opts.withDefaults()
	s := &FeatureSource{opts: opts, log: opts.Logger}
	s.shpPath, s.shxPath = filePaths(path)

	var err error
	if s.shp, err = os.OpenFile(s.shpPath, os.O_RDWR, 0); err != nil {
		return nil, &StorageError{Op: "open", Path: s.shpPath, Err: err}
	}
	if s.shx, err = os.OpenFile(s.shxPath, os.O_RDWR, 0); err != nil {
		_ = s.shp.Close()
		return nil, &StorageError{Op: "open", Path: s.shxPath, Err: err}
	}

	if err := s.validate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *FeatureSource) validate() error {
	shpSize, err := fileSize(s.shp)
	if err != nil {
		return &StorageError{Op: "open", Path: s.shpPath, Err: err}
	}
	shxSize, err := fileSize(s.shx)
	if err != nil {
		return &StorageError{Op: "open", Path: s.shxPath, Err: err}
	}

	shpHeader, err := readHeader(s.shp)
	if err != nil {
		return fmt.Errorf("%s: %w", s.shpPath, err)
	}
	shxHeader, err := readHeader(s.shx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.shxPath, err)
	}
	if shpHeader.ShapeType != shxHeader.ShapeType {
		return fmt.Errorf("%w: .shp is %s, .shx is %s", ErrCorruptIndex, shpHeader.ShapeType, shxHeader.ShapeType)
	}
	if int64(shpHeader.FileLength)*2 != shpSize {
		return fmt.Errorf("%w: .shp length field %d words, file is %d bytes", ErrInvalidData, shpHeader.FileLength, shpSize)
	}
	if (shxSize-headerSize)%indexEntrySize != 0 {
		return fmt.Errorf("%w: .shx is %d bytes", ErrCorruptIndex, shxSize)
	}
	count := int((shxSize - headerSize) / indexEntrySize)
	if shxHeader.FileLength != indexLength(count) {
		return fmt.Errorf("%w: .shx length field %d words, file holds %d slots", ErrCorruptIndex, shxHeader.FileLength, count)
	}

	entries, err := readIndex(s.shx, shxSize)
	if err != nil {
		return &StorageError{Op: "open", Path: s.shxPath, Err: err}
	}
	if err := checkContiguous(entries, shpSize); err != nil {
		return err
	}

	rh := make([]byte, recordHeaderSize)
	for i, e := range entries {
		if _, err := s.shp.ReadAt(rh, e.ByteOffset()); err != nil {
			return &StorageError{Op: "open", Path: s.shpPath, Err: err}
		}
		number, length := int32(be.Uint32(rh)), int32(be.Uint32(rh[4:]))
		if number != int32(i+1) || length != e.ContentLength {
			return fmt.Errorf("%w: fid %d has record number %d and content length %d, index says %d",
				ErrRecordCountMismatch, i, number, length, e.ContentLength)
		}
	}

	s.header = shpHeader
	s.count = count
	return nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func readHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: file shorter than header", ErrInvalidData)
		}
		return Header{}, err
	}
	return parseHeader(buf)
}

func (s *FeatureSource) check() error {
	if s == nil {
		return ErrNilSource
	}
	if s.shp == nil || s.shx == nil {
		return ErrClosed
	}
	return nil
}

func (s *FeatureSource) checkFID(fid, limit int) error {
	if fid < 0 || fid >= limit {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrFIDOutOfRange, fid, limit)
	}
	return nil
}

// Header returns the cached .shp header.
func (s *FeatureSource) Header() Header {
	return s.header
}

// ShapeType returns the shape type of the file.
func (s *FeatureSource) ShapeType() ShapeType {
	return s.header.ShapeType
}

// Count returns the number of records.
func (s *FeatureSource) Count() int {
	return s.count
}

// Paths returns the .shp and .shx paths.
func (s *FeatureSource) Paths() (shp, shx string) {
	return s.shpPath, s.shxPath
}

// Entries returns the current index table.
func (s *FeatureSource) Entries() ([]IndexEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.entries("entries")
}

func (s *FeatureSource) entries(op string) ([]IndexEntry, error) {
	entries, err := readIndex(s.shx, indexSlotOffset(s.count))
	if err != nil {
		return nil, &StorageError{Op: op, Path: s.shxPath, Err: err}
	}
	return entries, nil
}

// Read decodes record fid. Records are decoded by their own shape type tag.
func (s *FeatureSource) Read(fid int) (Shape, error) {
	if err := s.check(); err != nil {
		return Shape{}, err
	}
	if err := s.checkFID(fid, s.count); err != nil {
		return Shape{}, err
	}

	slot := make([]byte, indexEntrySize)
	if _, err := s.shx.ReadAt(slot, indexSlotOffset(fid)); err != nil {
		return Shape{}, &StorageError{Op: "read", Path: s.shxPath, Err: err}
	}
	entries, err := parseEntries(slot)
	if err != nil {
		return Shape{}, err
	}
	_, shape, err := s.readRecord(fid, entries[0])
	return shape, err
}

// readRecord reads and decodes the record at e, checking its header against
// the slot.
func (s *FeatureSource) readRecord(fid int, e IndexEntry) (ShapeType, Shape, error) {
	buf := make([]byte, e.RecordSize())
	if _, err := s.shp.ReadAt(buf, e.ByteOffset()); err != nil {
		return NullShape, Shape{}, &StorageError{Op: "read", Path: s.shpPath, Err: err}
	}

	number, length := int32(be.Uint32(buf)), int32(be.Uint32(buf[4:]))
	if number != int32(fid+1) || length != e.ContentLength {
		return NullShape, Shape{}, fmt.Errorf("%w: fid %d has record number %d and content length %d, index says %d",
			ErrCorruptIndex, fid, number, length, e.ContentLength)
	}

	t, shape, err := decodeBody(buf[recordHeaderSize:])
	if err != nil {
		return t, Shape{}, fmt.Errorf("%w: fid %d: %v", ErrInvalidData, fid, err)
	}
	return t, shape, nil
}

// RecordType returns the shape type tag stored in record fid, which can be a
// promoted variant of the file type.
func (s *FeatureSource) RecordType(fid int) (ShapeType, error) {
	if err := s.check(); err != nil {
		return NullShape, err
	}
	if err := s.checkFID(fid, s.count); err != nil {
		return NullShape, err
	}
	entries, err := s.entries("read")
	if err != nil {
		return NullShape, err
	}
	buf := make([]byte, 4)
	if _, err := s.shp.ReadAt(buf, entries[fid].ByteOffset()+recordHeaderSize); err != nil {
		return NullShape, &StorageError{Op: "read", Path: s.shpPath, Err: err}
	}
	return ShapeType(le.Uint32(buf)), nil
}

// Select returns the fids of records whose bounding boxes intersect b, in
// ascending order. Candidates come from the spatial index and are not tested
// against the exact geometry.
func (s *FeatureSource) Select(b orb.Bound) ([]int, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	sp, err := s.loadSpatial()
	if err != nil {
		return nil, err
	}
	return sp.search(b), nil
}

// loadSpatial reads every record's extent the first time it is needed.
func (s *FeatureSource) loadSpatial() (*spatialIndex, error) {
	if s.spatial != nil {
		return s.spatial, nil
	}
	entries, err := s.entries("index")
	if err != nil {
		return nil, err
	}
	extents := make([]Extent, len(entries))
	for fid, e := range entries {
		_, shape, err := s.readRecord(fid, e)
		if err != nil {
			return nil, err
		}
		extents[fid] = shapeExtent(shape)
	}
	s.spatial = newSpatialIndex(extents, s.opts.Tolerance)
	return s.spatial, nil
}

// Close closes both files. Further calls return ErrClosed.
func (s *FeatureSource) Close() error {
	if s == nil {
		return ErrNilSource
	}
	var errs []error
	if s.shp != nil {
		if err := s.shp.Close(); err != nil {
			errs = append(errs, &StorageError{Op: "close", Path: s.shpPath, Err: err})
		}
		s.shp = nil
	}
	if s.shx != nil {
		if err := s.shx.Close(); err != nil {
			errs = append(errs, &StorageError{Op: "close", Path: s.shxPath, Err: err})
		}
		s.shx = nil
	}
	return errors.Join(errs...)
}
