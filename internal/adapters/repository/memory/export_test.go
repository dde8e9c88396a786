package memory

import "context"

// HoldPlayerLock takes a player's lock for tests and returns its release.
func HoldPlayerLock(s *Store, id int64) func() {
	unlock, err := s.lockPlayer(context.Background(), "test", id)
	if err != nil {
		panic(err)
	}
	return unlock
}
