package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Store wraps one badger instance shared by the repositories. Used for
// single-binary deployments that have no SQL server around.
type Store struct {
	db     *badger.DB
	errSeq *badger.Sequence
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	opts := badger.DefaultOptions(path).
		WithLogger(logrus.StandardLogger()).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq|scanerr"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scan error sequence: %w", err)
	}
	return &Store{db: db, errSeq: seq}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.errSeq != nil {
		// hand unused sequence numbers back before closing
		if err := s.errSeq.Release(); err != nil {
			logrus.WithError(err).Warn("release scan error sequence")
		}
	}
	return s.db.Close()
}
