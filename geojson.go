package shapefile

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection reads all non-null records as GeoJSON features. Each
// feature carries its fid, and its Z and M values when present, as
// properties.
func (s *FeatureSource) FeatureCollection() (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	if err := s.check(); err != nil {
		return nil, err
	}

	for fid := 0; fid < s.count; fid++ {
		shape, err := s.Read(fid)
		if err != nil {
			return nil, err
		}
		if shape.Geometry == nil {
			continue
		}

		f := geojson.NewFeature(shape.Geometry)
		f.Properties["fid"] = fid
		if shape.Z != nil {
			f.Properties["z"] = shape.Z
		}
		if shape.M != nil {
			f.Properties["m"] = shape.M
		}
		fc.Append(f)
	}
	return fc, nil
}

// SelectFeatures returns the records whose bounding boxes intersect the bound
// of query's geometry.
func (s *FeatureSource) SelectFeatures(query *geojson.Feature) (*geojson.FeatureCollection, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if query == nil || query.Geometry == nil {
		return geojson.NewFeatureCollection(), nil
	}

	fids, err := s.Select(query.Geometry.Bound())
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, fid := range fids {
		shape, err := s.Read(fid)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(shape.Geometry)
		f.Properties["fid"] = fid
		fc.Append(f)
	}
	return fc, nil
}
