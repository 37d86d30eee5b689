package editor

import (
	"encoding/base64"
	"strings"
	"time"

	"pixelmap/internal/client"
	"pixelmap/internal/memory"
)

func today() string {
	return time.Now().Format("2006-01-02")
}

func encodePhoto(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func mimeFromFilename(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(name), ".gif"):
		return "image/gif"
	case strings.HasSuffix(strings.ToLower(name), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// fromWire converts a backend memory row into the editor's working form.
// Photo and sprite payloads are base64 server-side; rows with corrupt
// payloads keep their metadata and lose the bytes.
func fromWire(rec client.Memory) memory.Memory {
	m := memory.Memory{
		RemoteID: rec.ID,
		Lat:      rec.Lat,
		Lng:      rec.Lng,
		Width:    float64(rec.Width),
		Height:   float64(rec.Height),
		Flipped:  rec.Flipped,
		Locked:   rec.Locked,
		Log: memory.Log{
			Location: rec.LogLocation,
			Date:     rec.LogDate,
			Musings:  rec.LogMusings,
		},
	}
	if rec.SourceType == "text" {
		m.SourceText = rec.SourceData
	}
	if rec.ProcessedImage != "" {
		if data, err := base64.StdEncoding.DecodeString(rec.ProcessedImage); err == nil {
			m.Sprite = data
		}
	}
	if rec.ContentBounds != nil {
		m.SpriteBounds = memory.Bounds{
			X: rec.ContentBounds.X, Y: rec.ContentBounds.Y,
			Width: rec.ContentBounds.Width, Height: rec.ContentBounds.Height,
		}
	}
	for _, p := range rec.Photos {
		data, err := base64.StdEncoding.DecodeString(p.PhotoData)
		if err != nil {
			data = nil
		}
		m.Photos = append(m.Photos, memory.Photo{Data: data, Filename: p.Filename, RemoteID: p.ID})
	}
	return m
}

// createPayload builds the full write shape for a new memory.
func createPayload(m memory.Memory) client.MemoryPayload {
	p := updatePayload(m)
	p.SourceType = "file"
	if m.SourceText != "" {
		p.SourceType = "text"
		p.SourceData = ptr(m.SourceText)
	} else if len(m.Photos) > 0 {
		p.SourceData = ptr(encodePhoto(m.Photos[0].Data))
	}
	return p
}

// updatePayload builds the write shape for persisting current state.
func updatePayload(m memory.Memory) client.MemoryPayload {
	p := client.MemoryPayload{
		Lat:         ptr(m.Lat),
		Lng:         ptr(m.Lng),
		Width:       ptr(int(m.Width)),
		Height:      ptr(int(m.Height)),
		Flipped:     ptr(m.Flipped),
		Locked:      ptr(m.Locked),
		LogLocation: ptr(m.Log.Location),
		LogDate:     ptr(m.Log.Date),
		LogMusings:  ptr(m.Log.Musings),
		ContentBounds: &client.Bounds{
			X: m.SpriteBounds.X, Y: m.SpriteBounds.Y,
			Width: m.SpriteBounds.Width, Height: m.SpriteBounds.Height,
		},
	}
	if m.HasSprite() {
		p.ProcessedImage = ptr(encodePhoto(m.Sprite))
	}
	return p
}

func ptr[T any](v T) *T {
	return &v
}
