package store

// SetIDSource replaces the generator of export IDs.
func SetIDSource(s *SQLiteStore, newID func() string) {
	s.newID = newID
}
