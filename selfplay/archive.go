package selfplay

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	_ "modernc.org/sqlite"
)

// Archive is the SQLite store of finished self-play games. Every game is
// keyed by a hash of its move list, so replaying an identical game is a
// no-op instead of a duplicate row.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	played_at TEXT NOT NULL,
	result TEXT NOT NULL,
	ply_count INTEGER NOT NULL,
	moves TEXT NOT NULL,
	moves_hash TEXT NOT NULL UNIQUE
);
`

// OpenArchive opens or creates the game archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Record stores one finished game. It reports false when an identical move
// sequence was already archived.
func (a *Archive) Record(o GameOutcome) (bool, error) {
	moves := strings.Join(o.Moves, " ")
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(moves))

	res, err := a.db.Exec(
		`INSERT INTO games (played_at, result, ply_count, moves, moves_hash)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(moves_hash) DO NOTHING`,
		time.Now().Format(time.RFC3339), o.Result.String(), len(o.Moves), moves, hash)
	if err != nil {
		return false, fmt.Errorf("record game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of archived games.
func (a *Archive) Count() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&n)
	return n, err
}
