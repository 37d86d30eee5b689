package storage

import (
	"time"
)

// ExportVersion tags the export envelope format.
const ExportVersion = "2.0.0"

// Export is the versioned envelope written by map export and accepted by
// map import.
type Export struct {
	Version    string         `json:"version"`
	Map        MapRecord      `json:"map"`
	Memories   []MemoryRecord `json:"memories"`
	ExportDate string         `json:"exportDate"`
}

// ExportMap bundles a map the user owns into the versioned envelope.
func (s *Store) ExportMap(userID string, mapID int64) (Export, error) {
	m, err := s.GetMap(userID, mapID)
	if err != nil {
		return Export{}, err
	}
	memories, err := s.MapMemories(userID, mapID)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Version:    ExportVersion,
		Map:        m,
		Memories:   memories,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ImportMemory is one memory record of an import payload. Photos accept the
// export shape ({photo_data, filename}).
type ImportMemory struct {
	SourceType     string        `json:"source_type"`
	SourceData     string        `json:"source_data"`
	ProcessedImage string        `json:"processed_image"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	ContentBounds  *Bounds       `json:"content_bounds"`
	Flipped        bool          `json:"flipped_horizontally"`
	Locked         bool          `json:"is_locked"`
	LogLocation    string        `json:"log_location"`
	LogDate        string        `json:"log_date"`
	LogMusings     string        `json:"log_musings"`
	Photos         []ImportPhoto `json:"photos"`
}

// ImportPhoto is one photo of an import payload.
type ImportPhoto struct {
	PhotoData string `json:"photo_data"`
	Filename  string `json:"filename"`
}

// ImportMemories inserts the given memories into a map the user owns,
// optionally clearing the map first. Returns the number imported.
func (s *Store) ImportMemories(userID string, mapID int64, memories []ImportMemory, clearExisting bool) (int, error) {
	if _, err := s.GetMap(userID, mapID); err != nil {
		return 0, err
	}
	if clearExisting {
		if _, err := s.DB.Exec(`DELETE FROM memories WHERE map_id = ?;`, mapID); err != nil {
			return 0, err
		}
	}
	count := 0
	for _, mem := range memories {
		sourceType := mem.SourceType
		if sourceType != "file" && sourceType != "text" {
			sourceType = "file"
		}
		nm := NewMemory{
			MapID:          mapID,
			SourceType:     sourceType,
			SourceData:     mem.SourceData,
			ProcessedImage: mem.ProcessedImage,
			Lat:            mem.Lat,
			Lng:            mem.Lng,
			Width:          mem.Width,
			Height:         mem.Height,
			ContentBounds:  mem.ContentBounds,
			Flipped:        mem.Flipped,
			Locked:         mem.Locked,
			LogLocation:    mem.LogLocation,
			LogDate:        mem.LogDate,
			LogMusings:     mem.LogMusings,
		}
		for _, p := range mem.Photos {
			nm.Photos = append(nm.Photos, NewPhoto{Data: p.PhotoData, Filename: p.Filename})
		}
		if _, err := s.CreateMemory(userID, nm); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
