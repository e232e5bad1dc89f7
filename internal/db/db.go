package db

import (
	"time"

	"github.com/boltdb/bolt"
)

var bucketName = []byte("Runs")

func Connect(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
}

// Init creates the buckets the repository expects.
func Init(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
}
