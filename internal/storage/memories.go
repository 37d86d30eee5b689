package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Bounds is the tight rectangle of opaque sprite content, stored as JSON.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MemoryRecord mirrors a row of the memories table plus its photos.
type MemoryRecord struct {
	ID             int64         `json:"id"`
	MapID          int64         `json:"map_id"`
	SourceType     string        `json:"source_type"`
	SourceData     string        `json:"source_data,omitempty"`
	ProcessedImage string        `json:"processed_image,omitempty"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	ContentBounds  *Bounds       `json:"content_bounds,omitempty"`
	Flipped        bool          `json:"flipped_horizontally"`
	Locked         bool          `json:"is_locked"`
	LogLocation    string        `json:"log_location"`
	LogDate        string        `json:"log_date"`
	LogMusings     string        `json:"log_musings"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Photos         []PhotoRecord `json:"photos"`
}

// PhotoRecord mirrors a row of the photos table.
type PhotoRecord struct {
	ID        int64     `json:"id"`
	MemoryID  int64     `json:"memory_id"`
	PhotoData string    `json:"photo_data"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMemory carries the fields of a memory insert.
type NewMemory struct {
	MapID          int64
	SourceType     string
	SourceData     string
	ProcessedImage string
	Lat            float64
	Lng            float64
	Width          int
	Height         int
	ContentBounds  *Bounds
	Flipped        bool
	Locked         bool
	LogLocation    string
	LogDate        string
	LogMusings     string
	Photos         []NewPhoto
}

// NewPhoto carries the fields of a photo insert.
type NewPhoto struct {
	Data     string
	Filename string
}

// MemoryUpdate is a partial update; nil fields are left untouched.
type MemoryUpdate struct {
	ProcessedImage *string
	Lat            *float64
	Lng            *float64
	Width          *int
	Height         *int
	ContentBounds  *Bounds
	Flipped        *bool
	Locked         *bool
	LogLocation    *string
	LogDate        *string
	LogMusings     *string
}

const memoryCols = `id, map_id, source_type, source_data, processed_image, lat, lng,
    width, height, content_bounds, flipped_horizontally, is_locked,
    log_location, log_date, log_musings, created_at, updated_at`

// MapMemories returns all memories of a map the user owns, newest first,
// each with its nested photos.
func (s *Store) MapMemories(userID string, mapID int64) ([]MemoryRecord, error) {
	if _, err := s.GetMap(userID, mapID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(`SELECT `+memoryCols+` FROM memories WHERE map_id = ? ORDER BY created_at DESC, id DESC;`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range recs {
		photos, err := s.memoryPhotos(recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Photos = photos
	}
	return recs, nil
}

// GetMemory fetches one memory the user owns, with photos. Ownership runs
// through the owning map.
func (s *Store) GetMemory(userID string, memoryID int64) (MemoryRecord, error) {
	row := s.DB.QueryRow(`
        SELECT m.id, m.map_id, m.source_type, m.source_data, m.processed_image, m.lat, m.lng,
               m.width, m.height, m.content_bounds, m.flipped_horizontally, m.is_locked,
               m.log_location, m.log_date, m.log_musings, m.created_at, m.updated_at
        FROM memories m
        JOIN maps mp ON m.map_id = mp.id
        WHERE m.id = ? AND mp.user_id = ?;`, memoryID, userID)
	rec, err := scanMemory(row)
	if err != nil {
		return MemoryRecord{}, err
	}
	rec.Photos, err = s.memoryPhotos(rec.ID)
	if err != nil {
		return MemoryRecord{}, err
	}
	return rec, nil
}

// CreateMemory inserts a memory (and its photos) into a map the user owns.
func (s *Store) CreateMemory(userID string, nm NewMemory) (MemoryRecord, error) {
	if _, err := s.GetMap(userID, nm.MapID); err != nil {
		return MemoryRecord{}, err
	}
	if nm.Width <= 0 {
		nm.Width = 120
	}
	if nm.Height <= 0 {
		nm.Height = 120
	}
	res, err := s.DB.Exec(`
        INSERT INTO memories (
            map_id, source_type, source_data, processed_image,
            lat, lng, width, height, content_bounds,
            flipped_horizontally, is_locked,
            log_location, log_date, log_musings
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		nm.MapID, nm.SourceType, nullString(nm.SourceData), nullString(nm.ProcessedImage),
		nm.Lat, nm.Lng, nm.Width, nm.Height, boundsJSON(nm.ContentBounds),
		nm.Flipped, nm.Locked, nm.LogLocation, nm.LogDate, nm.LogMusings)
	if err != nil {
		return MemoryRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MemoryRecord{}, err
	}
	for _, p := range nm.Photos {
		if _, err := s.DB.Exec(`INSERT INTO photos (memory_id, photo_data, filename) VALUES (?, ?, ?);`,
			id, p.Data, p.Filename); err != nil {
			return MemoryRecord{}, err
		}
	}
	return s.GetMemory(userID, id)
}

// UpdateMemory applies a partial update to a memory the user owns.
func (s *Store) UpdateMemory(userID string, memoryID int64, upd MemoryUpdate) (MemoryRecord, error) {
	if _, err := s.GetMemory(userID, memoryID); err != nil {
		return MemoryRecord{}, err
	}

	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.ProcessedImage != nil {
		add("processed_image", *upd.ProcessedImage)
	}
	if upd.Lat != nil {
		add("lat", *upd.Lat)
	}
	if upd.Lng != nil {
		add("lng", *upd.Lng)
	}
	if upd.Width != nil {
		add("width", *upd.Width)
	}
	if upd.Height != nil {
		add("height", *upd.Height)
	}
	if upd.ContentBounds != nil {
		add("content_bounds", boundsJSON(upd.ContentBounds))
	}
	if upd.Flipped != nil {
		add("flipped_horizontally", *upd.Flipped)
	}
	if upd.Locked != nil {
		add("is_locked", *upd.Locked)
	}
	if upd.LogLocation != nil {
		add("log_location", *upd.LogLocation)
	}
	if upd.LogDate != nil {
		add("log_date", *upd.LogDate)
	}
	if upd.LogMusings != nil {
		add("log_musings", *upd.LogMusings)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		args = append(args, memoryID)
		query := "UPDATE memories SET " + strings.Join(sets, ", ") + " WHERE id = ?;"
		if _, err := s.DB.Exec(query, args...); err != nil {
			return MemoryRecord{}, err
		}
	}
	return s.GetMemory(userID, memoryID)
}

// DeleteMemory removes a memory the user owns; photos cascade.
func (s *Store) DeleteMemory(userID string, memoryID int64) error {
	if _, err := s.GetMemory(userID, memoryID); err != nil {
		return err
	}
	_, err := s.DB.Exec(`DELETE FROM memories WHERE id = ?;`, memoryID)
	return err
}

// AddPhoto appends a photo to a memory the user owns.
func (s *Store) AddPhoto(userID string, memoryID int64, data, filename string) (PhotoRecord, error) {
	if _, err := s.GetMemory(userID, memoryID); err != nil {
		return PhotoRecord{}, err
	}
	res, err := s.DB.Exec(`INSERT INTO photos (memory_id, photo_data, filename) VALUES (?, ?, ?);`,
		memoryID, data, filename)
	if err != nil {
		return PhotoRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PhotoRecord{}, err
	}
	return s.getPhoto(id)
}

// GetPhoto fetches one photo of a memory the user owns.
func (s *Store) GetPhoto(userID string, memoryID, photoID int64) (PhotoRecord, error) {
	row := s.DB.QueryRow(`
        SELECT p.id, p.memory_id, p.photo_data, p.filename, p.created_at
        FROM photos p
        JOIN memories m ON p.memory_id = m.id
        JOIN maps mp ON m.map_id = mp.id
        WHERE p.id = ? AND p.memory_id = ? AND mp.user_id = ?;`, photoID, memoryID, userID)
	return scanPhoto(row)
}

// DeletePhoto removes a photo; ownership runs through memory and map.
func (s *Store) DeletePhoto(userID string, photoID int64) error {
	row := s.DB.QueryRow(`
        SELECT p.id, p.memory_id, p.photo_data, p.filename, p.created_at
        FROM photos p
        JOIN memories m ON p.memory_id = m.id
        JOIN maps mp ON m.map_id = mp.id
        WHERE p.id = ? AND mp.user_id = ?;`, photoID, userID)
	if _, err := scanPhoto(row); err != nil {
		return err
	}
	_, err := s.DB.Exec(`DELETE FROM photos WHERE id = ?;`, photoID)
	return err
}

func (s *Store) getPhoto(id int64) (PhotoRecord, error) {
	row := s.DB.QueryRow(`SELECT id, memory_id, photo_data, filename, created_at FROM photos WHERE id = ?;`, id)
	return scanPhoto(row)
}

func (s *Store) memoryPhotos(memoryID int64) ([]PhotoRecord, error) {
	rows, err := s.DB.Query(`SELECT id, memory_id, photo_data, filename, created_at FROM photos WHERE memory_id = ? ORDER BY id ASC;`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []PhotoRecord
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (MemoryRecord, error) {
	var rec MemoryRecord
	var sourceData, processed, boundsStr, logLoc, logDate, logMusings sql.NullString
	var flipped, locked sql.NullBool
	err := row.Scan(&rec.ID, &rec.MapID, &rec.SourceType, &sourceData, &processed,
		&rec.Lat, &rec.Lng, &rec.Width, &rec.Height, &boundsStr, &flipped, &locked,
		&logLoc, &logDate, &logMusings, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MemoryRecord{}, ErrNotFound
	}
	if err != nil {
		return MemoryRecord{}, err
	}
	rec.SourceData = sourceData.String
	rec.ProcessedImage = processed.String
	rec.Flipped = flipped.Bool
	rec.Locked = locked.Bool
	rec.LogLocation = logLoc.String
	rec.LogDate = logDate.String
	rec.LogMusings = logMusings.String
	if boundsStr.Valid && boundsStr.String != "" {
		var b Bounds
		if err := json.Unmarshal([]byte(boundsStr.String), &b); err == nil {
			rec.ContentBounds = &b
		}
	}
	return rec, nil
}

func scanPhoto(row rowScanner) (PhotoRecord, error) {
	var p PhotoRecord
	var filename sql.NullString
	err := row.Scan(&p.ID, &p.MemoryID, &p.PhotoData, &filename, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PhotoRecord{}, ErrNotFound
	}
	if err != nil {
		return PhotoRecord{}, err
	}
	p.Filename = filename.String
	return p, nil
}

func boundsJSON(b *Bounds) any {
	if b == nil {
		return nil
	}
	buf, _ := json.Marshal(b)
	return string(buf)
}
