package exifgps

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Fix is a GPS position recovered from photo metadata, with the capture
// date in YYYY-MM-DD form.
type Fix struct {
	Lat  float64
	Lng  float64
	Date string
}

// Extract reads EXIF metadata from the photo bytes. Photos without
// metadata or without GPS tags return (nil, nil): absence of a fix is the
// normal signal for deferred placement, not a failure.
func Extract(data []byte) (*Fix, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}

	lat, lng, err := x.LatLong()
	if err != nil {
		return nil, nil
	}

	date := time.Now().Format("2006-01-02")
	if dt, err := x.DateTime(); err == nil {
		date = dt.Format("2006-01-02")
	}

	return &Fix{Lat: lat, Lng: lng, Date: date}, nil
}

// Valid reports whether the fix sits inside geographic range.
func (f *Fix) Valid() bool {
	return f != nil && f.Lat >= -90 && f.Lat <= 90 && f.Lng >= -180 && f.Lng <= 180
}
