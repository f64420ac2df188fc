package main

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shapefile "github.com/chiraylu/orb-shapefile"
	"github.com/paulmach/orb"
)

type City struct {
	Name      string
	Longitude float64
	Latitude  float64
	Elevation float64 // metres, stored as Z
}

var cities = []City{
	{"Tokyo", 139.6917, 35.6895, 40},
	{"New York", -73.9857, 40.7484, 10},
	{"London", -0.1276, 51.5074, 11},
	{"Paris", 2.3522, 48.8566, 35},
	{"Beijing", 116.4074, 39.9042, 44},
	{"Moscow", 37.6173, 55.7558, 156},
	{"São Paulo", -46.6333, -23.5505, 760},
	{"Mumbai", 72.8777, 19.0760, 14},
	{"Los Angeles", -118.2437, 34.0522, 93},
	{"Shanghai", 121.4737, 31.2304, 4},
	{"Istanbul", 28.9784, 41.0082, 39},
	{"Buenos Aires", -58.3816, -34.6037, 25},
	{"Cairo", 31.2357, 30.0444, 23},
	{"Sydney", 151.2093, -33.8688, 58},
	{"Berlin", 13.4050, 52.5200, 34},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dir, err := os.MkdirTemp("", "cities")
	if err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	defer os.RemoveAll(dir)

	opts := shapefile.DefaultOptions()
	opts.Logger = logger
	opts.TempDir = dir

	src, err := shapefile.Create(filepath.Join(dir, "cities.shp"), shapefile.PointZ, opts)
	if err != nil {
		log.Fatalf("Failed to create shapefile: %v", err)
	}
	defer src.Close()

	// Appended in reverse, then Berlin is moved to the front to exercise
	// Insert and Delete on a live file.
	for i := len(cities) - 1; i >= 0; i-- {
		c := cities[i]
		shape := shapefile.Shape{Geometry: orb.Point{c.Longitude, c.Latitude}, Z: []float64{c.Elevation}}
		if err := src.Insert(0, shape); err != nil {
			log.Fatalf("Failed to insert %s: %v", c.Name, err)
		}
	}
	last := src.Count() - 1
	berlin, err := src.Read(last)
	if err != nil {
		log.Fatalf("Failed to read record %d: %v", last, err)
	}
	if err := src.Delete(last); err != nil {
		log.Fatalf("Failed to delete record %d: %v", last, err)
	}
	if err := src.Insert(0, berlin); err != nil {
		log.Fatalf("Failed to insert Berlin: %v", err)
	}

	http.HandleFunc("/cities.geojson", func(w http.ResponseWriter, r *http.Request) {
		fc, err := src.FeatureCollection()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, fc)
	})

	http.HandleFunc("/cities.fgb", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		exportOpts := &shapefile.ExportOptions{
			Name:         "world_cities",
			Description:  "Major world cities",
			IncludeIndex: true,
			CRS:          shapefile.WGS84(),
		}
		if err := shapefile.ExportFlatGeobuf(&buf, src, exportOpts); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(buf.Bytes())
	})

	// /select?bbox=minX,minY,maxX,maxY
	http.HandleFunc("/select", func(w http.ResponseWriter, r *http.Request) {
		bound, err := parseBBox(r.URL.Query().Get("bbox"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fids, err := src.Select(bound)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"fids": fids})
	})

	log.Println("Server starting on http://localhost:8080")
	log.Println("Serving shapefile from:", dir)
	log.Fatal(http.ListenAndServe(":8080", nil))
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, strconv.ErrSyntax
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, err
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
