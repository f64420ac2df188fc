// Package shapefile edits ESRI Shapefile geometry (.shp) and index (.shx) files
// in place using orb.Geometry values.
//
// A FeatureSource holds an open .shp/.shx pair and supports appending,
// inserting, editing and deleting records. Every mutation leaves both files
// packed, renumbered and with correct header length fields, so the pair can be
// re-opened by any shapefile reader. Attribute (.dbf) storage is not handled.
package shapefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Common errors returned by this package.
var (
	ErrNilSource           = errors.New("shapefile: nil feature source")
	ErrClosed              = errors.New("shapefile: feature source is closed")
	ErrUnsupportedType     = errors.New("shapefile: unsupported shape type")
	ErrShapeTypeMismatch   = errors.New("shapefile: geometry does not match shape type")
	ErrEmptyGeometry       = errors.New("shapefile: geometry has no usable parts")
	ErrDimensionMismatch   = errors.New("shapefile: Z or M values do not match vertex count")
	ErrInvalidData         = errors.New("shapefile: invalid data")
	ErrFIDOutOfRange       = errors.New("shapefile: fid out of range")
	ErrRecordCountMismatch = errors.New("shapefile: record count mismatch between .shp and .shx")
	ErrCorruptIndex        = errors.New("shapefile: index does not match geometry file")
	ErrFileTooLarge        = errors.New("shapefile: geometry file would exceed the 32-bit word length limit")
)

// EncodeError reports a geometry that could not be encoded for a shape type.
// It is caller-correctable: nothing has been written when it is returned.
type EncodeError struct {
	Type ShapeType
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("shapefile: encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// StorageError reports a filesystem failure during an operation. The file pair
// may be inconsistent afterwards when Op is a mutation.
type StorageError struct {
	Op   string // Operation ("append", "edit", "insert", "delete", "open", ...)
	Path string // File involved
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("shapefile: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsEncodeError reports whether err was caused by bad input geometry.
func IsEncodeError(err error) bool {
	var e *EncodeError
	return errors.As(err, &e)
}

// IsStorageError reports whether err was caused by the filesystem.
func IsStorageError(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}

// Options configures a FeatureSource.
type Options struct {
	Logger    *slog.Logger // Logger for mutations and data-quality warnings (default: slog.Default())
	TempDir   string       // Directory for remainder snapshots (default: os.TempDir())
	Sync      bool         // fsync both files after every mutation
	Tolerance float64      // Minimum extent of a record box in the spatial index (default: 1e-9)
}

// DefaultOptions returns default options for opening a FeatureSource.
func DefaultOptions() *Options {
	return &Options{
		Logger:    slog.Default(),
		TempDir:   os.TempDir(),
		Tolerance: 1e-9,
	}
}

func (o *Options) withDefaults() *Options {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	out := *o
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.TempDir == "" {
		out.TempDir = d.TempDir
	}
	if out.Tolerance <= 0 {
		out.Tolerance = d.Tolerance
	}
	return &out
}
