package memory

// Bounds is the tight rectangle of opaque sprite content, in sprite pixel
// coordinates. It corrects visual centering independent of canvas size.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Photo is one photograph attached to a memory. Handle is a transient
// display reference (the object-URL analogue) released when the photo
// leaves the store.
type Photo struct {
	Data     []byte
	Filename string
	Handle   string
	RemoteID int64 // backend row id, 0 until persisted
}

// Log is the free-text travel log attached to a memory.
type Log struct {
	Location string
	Date     string // ISO calendar date, YYYY-MM-DD
	Musings  string
}

// Memory is a placed map pin: one or more photos, an optional generated
// sprite, and a travel log.
type Memory struct {
	ID           int64
	RemoteID     int64 // backend row id, 0 until persisted
	SourceText   string
	Sprite       []byte // generated sprite PNG, nil until generation completes
	SpriteBounds Bounds
	ShowOriginal bool
	Lat          float64
	Lng          float64
	Width        float64
	Height       float64
	Generating   bool
	Flipped      bool
	Locked       bool
	Photos       []Photo
	Log          Log
}

// DefaultSize is the placeholder edge length for a memory whose sprite has
// not resolved yet.
const DefaultSize = 120.0

// HasSprite reports whether generation has produced art for this memory.
func (m *Memory) HasSprite() bool {
	return len(m.Sprite) > 0
}

// clampGeo keeps coordinates inside geographic range.
func clampGeo(m Memory) Memory {
	if m.Lat > 90 {
		m.Lat = 90
	}
	if m.Lat < -90 {
		m.Lat = -90
	}
	if m.Lng > 180 {
		m.Lng = 180
	}
	if m.Lng < -180 {
		m.Lng = -180
	}
	if m.Width < 1 {
		m.Width = 1
	}
	if m.Height < 1 {
		m.Height = 1
	}
	return m
}
