package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/snappy"
	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/redo"
	bolt "go.etcd.io/bbolt"
)

var (
	SchemaBucket     = []byte("schema")
	CheckpointBucket = []byte("checkpoints")
	MetadataBucket   = []byte("metadata")
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrChecksum = errors.New("storage: checksum mismatch")
)

const checksumSize = 8

type Storage struct {
	db *bolt.DB
}

// Checkpoint is a position in the redo stream from which processing can
// resume.
type Checkpoint struct {
	SCN       redo.SCN  `json:"scn"`
	Time      redo.Time `json:"time"`
	Sequence  uint32    `json:"sequence"`
	Offset    uint64    `json:"offset"`
	OldestSCN redo.SCN  `json:"oldest_scn"`
	SchemaSCN redo.SCN  `json:"schema_scn"`
	CreatedAt time.Time `json:"created_at"`
}

func New(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{SchemaBucket, CheckpointBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Path() string {
	return s.db.Path()
}

func scnKey(scn redo.SCN) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(scn))
	return key
}

// encodeSchema compresses the JSON form of the snapshot and prefixes it
// with an xxhash64 of the compressed bytes.
func encodeSchema(snap *catalog.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	out := make([]byte, checksumSize+len(compressed))
	binary.BigEndian.PutUint64(out, xxhash.Checksum64(compressed))
	copy(out[checksumSize:], compressed)
	return out, nil
}

// DecodeSchema verifies and decodes a stored schema value.
func DecodeSchema(value []byte) (*catalog.Snapshot, error) {
	if len(value) < checksumSize {
		return nil, fmt.Errorf("schema record too short: %d bytes", len(value))
	}
	compressed := value[checksumSize:]
	if binary.BigEndian.Uint64(value) != xxhash.Checksum64(compressed) {
		return nil, ErrChecksum
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress schema: %w", err)
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &snap, nil
}

// SaveSchema stores the snapshot under its SCN. A later save at the same
// SCN replaces the earlier one.
func (s *Storage) SaveSchema(snap *catalog.Snapshot) error {
	value, err := encodeSchema(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(SchemaBucket).Put(scnKey(snap.SCN), value)
	})
}

// LoadSchema returns the snapshot with the highest SCN.
func (s *Storage) LoadSchema() (*catalog.Snapshot, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(SchemaBucket).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return DecodeSchema(value)
}

// LoadSchemaAt returns the newest snapshot taken at or before scn.
func (s *Storage) LoadSchemaAt(scn redo.SCN) (*catalog.Snapshot, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(SchemaBucket).Cursor()
		k, v := c.Seek(scnKey(scn))
		if k == nil {
			k, v = c.Last()
		} else if binary.BigEndian.Uint64(k) > uint64(scn) {
			k, v = c.Prev()
		}
		if k == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return DecodeSchema(value)
}

// SchemaSCNs lists the SCNs of all stored snapshots in ascending order.
func (s *Storage) SchemaSCNs() ([]redo.SCN, error) {
	var out []redo.SCN
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(SchemaBucket).ForEach(func(k, _ []byte) error {
			out = append(out, redo.SCN(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	return out, err
}

// PruneSchemas keeps the newest keep snapshots.
func (s *Storage) PruneSchemas(keep int) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(SchemaBucket)
		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for len(keys)-removed > keep {
			if err := b.Delete(keys[removed]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Storage) SaveCheckpoint(cp *Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(CheckpointBucket)

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}
		return bucket.Put(key, data)
	})
}

func (s *Storage) LatestCheckpoint() (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(CheckpointBucket).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Checkpoints returns up to limit of the most recent checkpoints, oldest
// first. A limit of 0 returns all of them.
func (s *Storage) Checkpoints(limit int) ([]Checkpoint, error) {
	var out []Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(CheckpointBucket).Cursor()
		for k, v := c.Last(); k != nil && (limit == 0 || len(out) < limit); k, v = c.Prev() {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				continue
			}
			out = append(out, cp)
		}
		return nil
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}

// ReplaceCheckpoints drops the checkpoint history and stores cps instead.
func (s *Storage) ReplaceCheckpoints(cps []Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(CheckpointBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		bucket, err := tx.CreateBucket(CheckpointBucket)
		if err != nil {
			return err
		}
		for i := range cps {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			data, err := json.Marshal(&cps[i])
			if err != nil {
				return fmt.Errorf("failed to marshal checkpoint: %w", err)
			}
			if err := bucket.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Storage) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key not found: %s: %w", key, ErrNotFound)
		}
		value = string(data)
		return nil
	})

	return value, err
}
