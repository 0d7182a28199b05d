package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bryanwahyu/automaton-recon/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

type AnalysisRepository struct {
	store *Store
}

func NewAnalysisRepository(store *Store) *AnalysisRepository {
	return &AnalysisRepository{store: store}
}

func (r *AnalysisRepository) Save(ctx context.Context, a *ai.Analysis) error {
	cp := *a
	if strings.TrimSpace(cp.Result) == "" {
		cp.Result = "{}"
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
		return txn.Set(analysisKey(cp.ScanID, cp.CreatedAt, string(cp.ID)), raw)
	})
}

func (r *AnalysisRepository) LatestByScan(ctx context.Context, scanID string) (*ai.Analysis, error) {
	var a *ai.Analysis
	err := r.store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := analysisPrefix(scanID)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var got ai.Analysis
		if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &got) }); err != nil {
			return err
		}
		a = &got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("analysis for scan %s: %w", scanID, domain.ErrNotFound)
	}
	return a, nil
}
