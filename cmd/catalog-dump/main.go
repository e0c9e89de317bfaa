package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/storage"
	bolt "go.etcd.io/bbolt"
)

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <boltdb-path> [scn]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Lists stored schema snapshots and checkpoints, or prints the tables of one snapshot\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open BoltDB: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) == 3 {
		scn, err := strconv.ParseUint(os.Args[2], 0, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid SCN %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}
		err = db.View(func(tx *bolt.Tx) error {
			return dumpSnapshot(tx, redo.SCN(scn))
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	err = db.View(func(tx *bolt.Tx) error {
		if err := listSchemas(tx); err != nil {
			return err
		}
		return listCheckpoints(tx)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func listSchemas(tx *bolt.Tx) error {
	bucket := tx.Bucket(storage.SchemaBucket)
	if bucket == nil {
		return fmt.Errorf("bucket not found: %s", storage.SchemaBucket)
	}

	fmt.Println("Schema snapshots:")
	cursor := bucket.Cursor()
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		scn := redo.SCN(binary.BigEndian.Uint64(k))
		snap, err := storage.DecodeSchema(v)
		if err != nil {
			fmt.Printf("  %s  %d bytes  CORRUPT: %v\n", scn, len(v), err)
			continue
		}
		fmt.Printf("  %s  %d bytes  %d rows\n", scn, len(v), snap.RowCount())
	}
	return nil
}

func listCheckpoints(tx *bolt.Tx) error {
	bucket := tx.Bucket(storage.CheckpointBucket)
	if bucket == nil {
		return fmt.Errorf("bucket not found: %s", storage.CheckpointBucket)
	}

	fmt.Println("Checkpoints:")
	cursor := bucket.Cursor()
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		var cp storage.Checkpoint
		if err := json.Unmarshal(v, &cp); err != nil {
			fmt.Printf("  #%d  unreadable: %v\n", binary.BigEndian.Uint64(k), err)
			continue
		}
		fmt.Printf("  #%d  scn %s  seq %d offset %d  schema %s\n",
			binary.BigEndian.Uint64(k), cp.SCN, cp.Sequence, cp.Offset, cp.SchemaSCN)
	}
	return nil
}

func dumpSnapshot(tx *bolt.Tx, scn redo.SCN) error {
	bucket := tx.Bucket(storage.SchemaBucket)
	if bucket == nil {
		return fmt.Errorf("bucket not found: %s", storage.SchemaBucket)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(scn))
	v := bucket.Get(key)
	if v == nil {
		return fmt.Errorf("no snapshot at SCN %s", scn)
	}

	snap, err := storage.DecodeSchema(v)
	if err != nil {
		return err
	}
	c, err := catalog.Restore(snap)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot %s: %d rows\n", scn, snap.RowCount())
	for _, o := range c.Objects("") {
		fmt.Printf("  %s (obj %d, dataobj %d, %d columns)\n", o.FullName(), o.Obj, o.DataObj, len(o.Columns))
	}
	return nil
}
