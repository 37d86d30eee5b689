package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for rows that do not exist or are not owned by
// the requesting user. Ownership misses deliberately look identical to
// missing rows so the API never leaks existence.
var ErrNotFound = errors.New("not found")

// Store wraps SQLite-backed persistence for users, maps, memories and photos.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT UNIQUE NOT NULL,
            email TEXT,
            display_name TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS maps (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL,
            name TEXT NOT NULL,
            is_public BOOLEAN DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS memories (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            map_id INTEGER NOT NULL,
            source_type TEXT CHECK(source_type IN ('file', 'text')) NOT NULL,
            source_data TEXT,
            processed_image TEXT,
            lat REAL NOT NULL,
            lng REAL NOT NULL,
            width INTEGER DEFAULT 120,
            height INTEGER DEFAULT 120,
            content_bounds TEXT,
            flipped_horizontally BOOLEAN DEFAULT 0,
            is_locked BOOLEAN DEFAULT 0,
            log_location TEXT,
            log_date TEXT,
            log_musings TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (map_id) REFERENCES maps(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS photos (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            memory_id INTEGER NOT NULL,
            photo_data TEXT NOT NULL,
            filename TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_maps_user_id ON maps(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_map_id ON memories(map_id);`,
		`CREATE INDEX IF NOT EXISTS idx_photos_memory_id ON photos(memory_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// User mirrors a row of the users table.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// MapRecord mirrors a row of the maps table.
type MapRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertUser inserts or refreshes an externally-authenticated user.
func (s *Store) UpsertUser(u User) error {
	_, err := s.DB.Exec(`
        INSERT INTO users (id, username, email, display_name)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            username = excluded.username,
            email = excluded.email,
            display_name = excluded.display_name,
            updated_at = CURRENT_TIMESTAMP;`,
		u.ID, u.Username, nullString(u.Email), nullString(u.DisplayName))
	return err
}

// GetUser fetches one user row.
func (s *Store) GetUser(id string) (User, error) {
	var u User
	var email, display sql.NullString
	err := s.DB.QueryRow(`SELECT id, username, email, display_name FROM users WHERE id = ?;`, id).
		Scan(&u.ID, &u.Username, &email, &display)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Email = email.String
	u.DisplayName = display.String
	return u, nil
}

// DefaultMap returns the user's oldest map, creating "My Travel Map" when
// the user has none yet.
func (s *Store) DefaultMap(userID string) (MapRecord, error) {
	m, err := s.scanMap(s.DB.QueryRow(
		`SELECT id, user_id, name, is_public, created_at, updated_at
         FROM maps WHERE user_id = ? ORDER BY created_at ASC, id ASC LIMIT 1;`, userID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return MapRecord{}, err
	}
	return s.CreateMap(userID, "My Travel Map", false)
}

// ListMaps returns the user's maps, most recently updated first.
func (s *Store) ListMaps(userID string) ([]MapRecord, error) {
	rows, err := s.DB.Query(
		`SELECT id, user_id, name, is_public, created_at, updated_at
         FROM maps WHERE user_id = ? ORDER BY updated_at DESC;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []MapRecord
	for rows.Next() {
		var m MapRecord
		var isPublic sql.NullBool
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &isPublic, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.IsPublic = isPublic.Bool
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

// GetMap fetches one map owned by userID.
func (s *Store) GetMap(userID string, mapID int64) (MapRecord, error) {
	return s.scanMap(s.DB.QueryRow(
		`SELECT id, user_id, name, is_public, created_at, updated_at
         FROM maps WHERE id = ? AND user_id = ?;`, mapID, userID))
}

// CreateMap inserts a new map for the user.
func (s *Store) CreateMap(userID, name string, isPublic bool) (MapRecord, error) {
	if name == "" {
		name = "New Map"
	}
	res, err := s.DB.Exec(`INSERT INTO maps (user_id, name, is_public) VALUES (?, ?, ?);`,
		userID, name, isPublic)
	if err != nil {
		return MapRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MapRecord{}, err
	}
	return s.GetMap(userID, id)
}

// UpdateMap changes name and/or visibility; nil fields keep current values.
func (s *Store) UpdateMap(userID string, mapID int64, name *string, isPublic *bool) (MapRecord, error) {
	m, err := s.GetMap(userID, mapID)
	if err != nil {
		return MapRecord{}, err
	}
	newName := m.Name
	if name != nil && *name != "" {
		newName = *name
	}
	newPublic := m.IsPublic
	if isPublic != nil {
		newPublic = *isPublic
	}
	_, err = s.DB.Exec(
		`UPDATE maps SET name = ?, is_public = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`,
		newName, newPublic, mapID)
	if err != nil {
		return MapRecord{}, err
	}
	return s.GetMap(userID, mapID)
}

// DeleteMap removes the map and, via cascade, its memories and photos.
func (s *Store) DeleteMap(userID string, mapID int64) error {
	if _, err := s.GetMap(userID, mapID); err != nil {
		return err
	}
	_, err := s.DB.Exec(`DELETE FROM maps WHERE id = ?;`, mapID)
	return err
}

func (s *Store) scanMap(row *sql.Row) (MapRecord, error) {
	var m MapRecord
	var isPublic sql.NullBool
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &isPublic, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MapRecord{}, ErrNotFound
	}
	if err != nil {
		return MapRecord{}, err
	}
	m.IsPublic = isPublic.Bool
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
