package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedragon/notion-cleanup/internal/models"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// Repository keeps an audit trail of past runs. The cleanup itself never
// reads from it.
type Repository interface {
	Store(summary *models.RunSummary) error
	List(limit int) ([]models.RunSummary, error)
	Prune(keep int) (int, error)
}

type BoltRepository struct {
	db     *bolt.DB
	logger *zap.Logger
}

func NewRepository(db *bolt.DB, logger *zap.Logger) (Repository, error) {
	if err := Init(db); err != nil {
		return nil, err
	}

	return &BoltRepository{
		db:     db,
		logger: logger,
	}, nil
}

// key sorts chronologically: fixed-width UTC timestamp, then run id.
func key(summary *models.RunSummary) []byte {
	return []byte(summary.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + summary.RunID)
}

func (r *BoltRepository) Store(summary *models.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("cannot store a run without id")
	}

	marshalled, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return fmt.Errorf("bucket %s doesn't exist", string(bucketName))
		}

		return bucket.Put(key(summary), marshalled)
	})
}

// List returns up to limit runs, newest first. A limit <= 0 returns all of
// them.
func (r *BoltRepository) List(limit int) ([]models.RunSummary, error) {
	var runs []models.RunSummary

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return fmt.Errorf("bucket %s doesn't exist", string(bucketName))
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}

			var summary models.RunSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				r.logger.Warn("Skipping unreadable run", zap.ByteString("key", k), zap.Error(err))
				continue
			}

			runs = append(runs, summary)
		}

		return nil
	})

	return runs, err
}

// Prune deletes all but the newest keep runs and returns how many it
// deleted. A keep <= 0 deletes nothing.
func (r *BoltRepository) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	var deleted int

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return errors.New("bucket doesn't exist")
		}

		var stale [][]byte
		seen := 0
		c := bucket.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			seen++
			if seen > keep {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)

		return nil
	})

	if deleted > 0 {
		r.logger.Info("Pruned run history", zap.Int("deleted", deleted), zap.Int("kept", keep))
	}

	return deleted, err
}
