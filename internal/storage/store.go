package storage

import "sync"

// Store allocates Positions on top of a Backend and rolls to a new file
// number once the current file would exceed rollBytes. It does not know
// about node frames; Store.WriteSlot/ReadSlot move opaque byte slices.
type Store struct {
	backend   Backend
	rollBytes int64

	mu         sync.Mutex
	fileNumber uint64
	offset     int64
}

// NewStore resumes allocation bookkeeping from (fileNumber, offset) — the
// file number recorded in the btreestore metadata frame on a previous
// close and that file's current size, or (0, 0) for a brand new tree.
func NewStore(backend Backend, rollBytes int64, fileNumber uint64, offset int64) *Store {
	return &Store{
		backend:    backend,
		rollBytes:  rollBytes,
		fileNumber: fileNumber,
		offset:     offset,
	}
}

// CurrentFileNumber reports the file number new allocations will land in,
// for persisting into the metadata frame.
func (s *Store) CurrentFileNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileNumber
}

// NextPosition allocates a fresh slot of slotSize bytes, rolling to a new
// file number if the current file would exceed rollBytes.
func (s *Store) NextPosition(slotSize int) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offset+int64(slotSize) > s.rollBytes {
		s.fileNumber++
		s.offset = 0
	}

	pos := Position{FileNumber: s.fileNumber, Offset: uint64(s.offset)}
	s.offset += int64(slotSize)
	return pos, nil
}

// WriteSlot persists data (already padded to the slot width) at pos,
// in place — callers decide whether pos is freshly allocated or an
// existing slot being overwritten.
func (s *Store) WriteSlot(pos Position, data []byte) error {
	return s.backend.WriteAt(pos.FileNumber, int64(pos.Offset), data)
}

// ReadSlot reads size bytes starting at pos.
func (s *Store) ReadSlot(pos Position, size int) ([]byte, error) {
	buf := make([]byte, size)
	if err := s.backend.ReadAt(pos.FileNumber, int64(pos.Offset), buf); err != nil {
		return nil, err
	}
	return buf, nil
}
