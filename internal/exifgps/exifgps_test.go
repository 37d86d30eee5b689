package exifgps

import "testing"

func TestExtractNoMetadata(t *testing.T) {
	fix, err := Extract([]byte("definitely not a jpeg"))
	if err != nil {
		t.Fatalf("missing metadata must not error, got %v", err)
	}
	if fix != nil {
		t.Fatalf("expected nil fix, got %+v", fix)
	}
}

func TestFixValid(t *testing.T) {
	cases := []struct {
		fix  *Fix
		want bool
	}{
		{nil, false},
		{&Fix{Lat: 48.85, Lng: 2.35}, true},
		{&Fix{Lat: 90, Lng: -180}, true},
		{&Fix{Lat: 91, Lng: 0}, false},
		{&Fix{Lat: 0, Lng: 181}, false},
	}
	for i, c := range cases {
		if got := c.fix.Valid(); got != c.want {
			t.Fatalf("case %d: Valid() = %v, want %v", i, got, c.want)
		}
	}
}
