package storage

import (
	"fmt"
	"hash/fnv"
)

// Advisory lock key namespaces. Keys are derived by hashing a prefixed string
// so user and game locks can never collide on the same integer space.
const (
	userLockPrefix = "user"
	gameLockPrefix = "game"
)

// UserLockKey returns the advisory lock key serializing matchmaking searches
// for one user.
func UserLockKey(userID int64) int64 {
	return hashLockKey(userLockPrefix, userID)
}

// GameLockKey returns the advisory lock key serializing reconciliation for
// one game.
func GameLockKey(gameID int64) int64 {
	return hashLockKey(gameLockPrefix, gameID)
}

func hashLockKey(prefix string, id int64) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s_%d", prefix, id)
	return int64(h.Sum64())
}
