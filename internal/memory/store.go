package memory

// Store owns all memories of the active map. It is not safe for concurrent
// use on its own: the editor serializes every mutation through a single
// controller, preserving the single-writer discipline of the original
// event-loop design.
//
// Slice order is z-order; later entries draw on top.
type Store struct {
	memories []Memory
	nextID   int64
}

// NewStore returns an empty store. IDs start at 1.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// SeedID makes sure future IDs stay above those of loaded memories.
func (s *Store) SeedID(maxSeen int64) {
	if maxSeen >= s.nextID {
		s.nextID = maxSeen + 1
	}
}

// NextID hands out the next session-unique identifier.
func (s *Store) NextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Add inserts a memory. A zero ID gets the next session ID assigned; a
// non-zero ID (loaded from the backend) is kept and the counter advances
// past it.
func (s *Store) Add(m Memory) Memory {
	if m.ID == 0 {
		m.ID = s.NextID()
	} else {
		s.SeedID(m.ID)
	}
	m = clampGeo(m)
	s.memories = append(s.memories, m)
	return m
}

// Get returns a copy of the memory with the given id.
func (s *Store) Get(id int64) (Memory, bool) {
	for i := range s.memories {
		if s.memories[i].ID == id {
			return s.memories[i], true
		}
	}
	return Memory{}, false
}

// Update applies fn to the memory with the given id, replace-by-id. The
// update function receives and returns a value, keeping mutations
// auditable. Geographic and size invariants are re-clamped afterwards.
func (s *Store) Update(id int64, fn func(Memory) Memory) bool {
	for i := range s.memories {
		if s.memories[i].ID == id {
			s.memories[i] = clampGeo(fn(s.memories[i]))
			return true
		}
	}
	return false
}

// Remove deletes the memory with the given id.
func (s *Store) Remove(id int64) bool {
	for i := range s.memories {
		if s.memories[i].ID == id {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return true
		}
	}
	return false
}

// RemovePhoto deletes one photo by index. Removing the last photo removes
// the whole memory; the second return value reports that case.
func (s *Store) RemovePhoto(id int64, photoIndex int) (removed bool, memoryGone bool) {
	for i := range s.memories {
		if s.memories[i].ID != id {
			continue
		}
		photos := s.memories[i].Photos
		if photoIndex < 0 || photoIndex >= len(photos) {
			return false, false
		}
		if len(photos) == 1 {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return true, true
		}
		s.memories[i].Photos = append(photos[:photoIndex:photoIndex], photos[photoIndex+1:]...)
		return true, false
	}
	return false, false
}

// Raise moves the memory to the top of the z-order.
func (s *Store) Raise(id int64) {
	for i := range s.memories {
		if s.memories[i].ID == id {
			m := s.memories[i]
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			s.memories = append(s.memories, m)
			return
		}
	}
}

// List returns a copy of all memories in z-order.
func (s *Store) List() []Memory {
	out := make([]Memory, len(s.memories))
	copy(out, s.memories)
	return out
}

// Len reports the number of memories.
func (s *Store) Len() int {
	return len(s.memories)
}

// Clear drops every memory (map reset / reload).
func (s *Store) Clear() {
	s.memories = nil
}
