package badgerdb

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	store *Store
}

func NewScanErrorRepository(store *Store) *ScanErrorRepository {
	return &ScanErrorRepository{store: store}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	seq, err := r.store.errSeq.Next()
	if err != nil {
		return err
	}

	cp := *e
	cp.ID = int64(seq)
	if strings.TrimSpace(cp.Message) == "" {
		cp.Message = "-"
	}
	if strings.TrimSpace(cp.Details) == "" {
		cp.Details = "{}"
	} else if !json.Valid([]byte(cp.Details)) {
		b, merr := json.Marshal(map[string]string{"raw": cp.Details})
		if merr != nil {
			return merr
		}
		cp.Details = string(b)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	} else {
		cp.CreatedAt = cp.CreatedAt.UTC()
	}

	raw, err := json.Marshal(&cp)
	if err != nil {
		return err
	}
	return r.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(scanErrKey(cp.ScanID, seq), raw)
	})
}

// ListByScan newest first. Seq numbers grow over time, so the walk runs
// in reverse over the scan's prefix.
func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*domain.ScanError
	err := r.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := scanErrPrefix(scanID)
		start := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(start); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var e domain.ScanError
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
