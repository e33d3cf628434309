package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// BoltDB wraps a bbolt database with the buckets used by arrdeck.
type BoltDB struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltDB opens (or creates) the database file inside dataDir and ensures
// all buckets exist.
func NewBoltDB(dataDir string, logger *zap.SugaredLogger) (*BoltDB, error) {
	path := filepath.Join(dataDir, "arrdeck.db")

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	b := &BoltDB{db: db, logger: logger}
	if err := b.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debugw("Opened database", "path", path)
	return b, nil
}

func (b *BoltDB) ensureBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{ServicesBucket, NotifyQueueBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(MetaBucket))
		if meta.Get([]byte(SchemaVersionKey)) == nil {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], CurrentSchemaVersion)
			return meta.Put([]byte(SchemaVersionKey), buf[:])
		}
		return nil
	})
}

// Close closes the underlying database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// SaveService writes a service record, keyed by its id.
func (b *BoltDB) SaveService(record *ServiceRecord) error {
	data, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal service %s: %w", record.ID, err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(ServicesBucket)).Put([]byte(record.ID), data)
	})
}

// GetService fetches a service record by id.
func (b *BoltDB) GetService(id string) (*ServiceRecord, error) {
	var record ServiceRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(ServicesBucket)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return record.UnmarshalBinary(data)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListServices returns all service records sorted by id.
func (b *BoltDB) ListServices() ([]*ServiceRecord, error) {
	var records []*ServiceRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(ServicesBucket)).ForEach(func(_, v []byte) error {
			var record ServiceRecord
			if err := record.UnmarshalBinary(v); err != nil {
				// Skip corrupt records rather than failing the whole list.
				b.logger.Warnw("Skipping unreadable service record", "error", err)
				return nil
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// DeleteService removes a service record. Deleting an absent id is a no-op.
func (b *BoltDB) DeleteService(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(ServicesBucket)).Delete([]byte(id))
	})
}

// GetItem reads a raw value from the notify queue bucket.
func (b *BoltDB) GetItem(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(NotifyQueueBucket)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetItem writes a raw value into the notify queue bucket.
func (b *BoltDB) SetItem(key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(NotifyQueueBucket)).Put([]byte(key), value)
	})
}

// RemoveItem deletes a raw value from the notify queue bucket.
func (b *BoltDB) RemoveItem(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(NotifyQueueBucket)).Delete([]byte(key))
	})
}
