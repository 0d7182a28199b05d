package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

type ReportRepository struct {
	store *Store
}

func NewReportRepository(store *Store) *ReportRepository { return &ReportRepository{store: store} }

// Save insert/update report record. Index rows untuk target dan waktu
// ikut ditulis dalam satu transaksi.
func (r *ReportRepository) Save(ctx context.Context, rep *domain.Report) error {
	cp := *rep
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	} else {
		cp.StartedAt = cp.StartedAt.UTC()
	}
	if !cp.FinishedAt.IsZero() {
		cp.FinishedAt = cp.FinishedAt.UTC()
	}

	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	id := string(cp.ID)

	return r.store.db.Update(func(txn *badger.Txn) error {
		// updates with a shifted start time must not leave stale index rows
		if item, err := txn.Get(scanKey(id)); err == nil {
			var prev domain.Report
			if verr := item.Value(func(v []byte) error { return json.Unmarshal(v, &prev) }); verr == nil {
				if !prev.StartedAt.Equal(cp.StartedAt) || prev.Target != cp.Target {
					if derr := txn.Delete(targetKey(prev.Target, prev.StartedAt, id)); derr != nil {
						return derr
					}
					if derr := txn.Delete(timeKey(prev.StartedAt, id)); derr != nil {
						return derr
					}
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(scanKey(id), raw); err != nil {
			return err
		}
		if err := txn.Set(targetKey(cp.Target, cp.StartedAt, id), []byte(id)); err != nil {
			return err
		}
		return txn.Set(timeKey(cp.StartedAt, id), []byte(id))
	})
}

func (r *ReportRepository) Get(ctx context.Context, id domain.ScanID) (*domain.Report, error) {
	var rep *domain.Report
	err := r.store.db.View(func(txn *badger.Txn) error {
		got, err := getReport(txn, string(id))
		rep = got
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *ReportRepository) Latest(ctx context.Context, target string) (*domain.Report, error) {
	reps, err := r.History(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	if len(reps) == 0 {
		return nil, fmt.Errorf("target %s: %w", target, domain.ErrNotFound)
	}
	return reps[0], nil
}

func (r *ReportRepository) History(ctx context.Context, target string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*domain.Report
	err := r.store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := targetPrefix(target)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			rep, err := reportFromIndex(txn, it.Item())
			if err != nil {
				return err
			}
			out = append(out, rep)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one cursor page, newest first, with optional filters.
// Target and status are matched in Go while walking the time index.
func (r *ReportRepository) List(ctx context.Context, q domain.ListQuery) ([]*domain.Report, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	var out []*domain.Report
	err := r.store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("time|")
		start := prefix
		if !q.CursorTime.IsZero() {
			// resume at the cursor's stamp group; beforeCursor drops the
			// rows on or after the cursor itself
			start = timeKey(q.CursorTime.UTC(), "")
		}
		for it.Seek(start); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			rep, err := reportFromIndex(txn, it.Item())
			if err != nil {
				return err
			}
			if !q.CursorTime.IsZero() && !beforeCursor(rep, q.CursorTime, q.CursorID) {
				continue
			}
			if q.Target != "" && !strings.Contains(rep.Target, q.Target) {
				continue
			}
			if q.Status != "" && rep.Status != q.Status {
				continue
			}
			out = append(out, rep)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortReportsDesc(out)
	return out, nil
}

// Summary rekap hasil scan N hari terakhir. The time index is newest
// first, so the walk stops at the first row past the cutoff.
func (r *ReportRepository) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().UTC().AddDate(0, 0, -sinceDays)

	sum := domain.Summary{Findings: map[domain.FindingKind]int{}}
	err := r.store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("time|")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if ts, ok := indexStamp(it.Item().Key(), prefix); ok && ts.Before(cut) {
				break
			}
			rep, err := reportFromIndex(txn, it.Item())
			if err != nil {
				return err
			}
			sum.TotalScans++
			switch rep.Status {
			case domain.StatusComplete:
				sum.Complete++
			case domain.StatusPartial:
				sum.Partial++
			case domain.StatusFailed:
				sum.Failed++
			}
			for kind, n := range rep.Counts {
				sum.Findings[kind] += n
			}
		}
		return nil
	})
	if err != nil {
		return domain.Summary{}, err
	}
	return sum, nil
}

func getReport(txn *badger.Txn, id string) (*domain.Report, error) {
	item, err := txn.Get(scanKey(id))
	if err != nil {
		return nil, err
	}
	var rep domain.Report
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rep) }); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

// reportFromIndex loads the full report behind one index row.
func reportFromIndex(txn *badger.Txn, item *badger.Item) (*domain.Report, error) {
	var id string
	if err := item.Value(func(v []byte) error {
		id = string(v)
		return nil
	}); err != nil {
		return nil, err
	}
	rep, err := getReport(txn, id)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("index row for missing scan %s: %w", id, domain.ErrNotFound)
	}
	return rep, err
}

// indexStamp extracts the timestamp segment from a time index key.
func indexStamp(key, prefix []byte) (time.Time, bool) {
	rest := key[len(prefix):]
	i := bytes.IndexByte(rest, '|')
	if i < 0 {
		return time.Time{}, false
	}
	return stampTime(string(rest[:i]))
}

func beforeCursor(rep *domain.Report, curTime time.Time, curID string) bool {
	started := rep.StartedAt.UTC()
	if started.Before(curTime) {
		return true
	}
	return started.Equal(curTime) && string(rep.ID) < curID
}

func sortReportsDesc(reps []*domain.Report) {
	sort.SliceStable(reps, func(i, j int) bool {
		if !reps[i].StartedAt.Equal(reps[j].StartedAt) {
			return reps[i].StartedAt.After(reps[j].StartedAt)
		}
		return reps[i].ID > reps[j].ID
	})
}
