// Package storage — bolt.go
//
// BoltDB-backed persistent audit ledger for the range coordinator.
//
// Schema (BoltDB bucket layout):
//
//	/ledger
//	    key:   RFC3339Nano timestamp + "_" + sequence  [monotonic, sortable]
//	    value: JSON-encoded LedgerEntry
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// The coordinator keeps no gameplay state here (scores, HP, round phase)
// — that is in-memory only for the duration of a match. BoltDB records
// only the append-only event trail: match lifecycle transitions and
// admin actions, for post-hoc review.
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Ledger entries older than RetentionDays are pruned on startup and
//     periodically by the coordinator's retention goroutine.
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The coordinator logs a fatal event and refuses to start.
//   - Disk full: bbolt.Update() returns an error. The coordinator logs
//     the error and continues without persisting (in-memory match state
//     preserved).
package storage

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/rangecoord/rangecoord.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	// bucketLedger is the BoltDB bucket name for the audit ledger.
	bucketLedger = "ledger"

	// bucketMeta is the BoltDB bucket name for schema metadata.
	bucketMeta = "meta"
)

// Ledger event types.
const (
	EventMatchStarted    = "match_started"
	EventMatchStopped    = "match_stopped"
	EventRoundCompleted  = "round_completed"
	EventGameEnded       = "game_ended"
	EventPlayerConnected = "player_connected"
	EventPlayerLeft      = "player_left"
	EventAdminAction     = "admin_action"
)

// LedgerEntry is a single audit log record. Stored as JSON in the ledger
// bucket.
type LedgerEntry struct {
	// Timestamp is the event time (nanosecond precision).
	Timestamp time.Time `json:"timestamp"`

	// EventType is one of the Event* constants above.
	EventType string `json:"event_type"`

	// RoundNum is the round the event pertains to, or 0 for match-wide
	// events.
	RoundNum int `json:"round_num,omitempty"`

	// PlayerID is set for per-player events (connect/leave).
	PlayerID string `json:"player_id,omitempty"`

	// Detail is a short free-text description (e.g. an admin command, a
	// final ranking summary).
	Detail string `json:"detail,omitempty"`

	// NodeID is the coordinator node that recorded this entry.
	NodeID string `json:"node_id"`
}

// DB wraps a BoltDB instance with typed accessors for the ledger.
type DB struct {
	db            *bolt.DB
	retentionDays int
	seq           atomic.Uint64
	metrics       *observability.Metrics
}

// SetMetrics attaches the Prometheus metrics registry and initialises
// StorageLedgerEntries from the bucket's current key count. Safe to leave
// unset; metric updates become no-ops if d.metrics is nil.
func (d *DB) SetMetrics(m *observability.Metrics) {
	d.metrics = m
	if m == nil {
		return
	}
	_ = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		m.StorageLedgerEntries.Set(float64(b.Stats().KeyN))
		return nil
	})
}

// Open opens (or creates) the BoltDB database at the given path.
// Initialises all required buckets and verifies the schema version.
// Returns an error if the database is corrupt or schema is incompatible.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		NoGrowSync:   false,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketLedger, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

// checkSchemaVersion reads and validates the stored schema version.
func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, coordinator requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ledgerKey constructs a sortable BoltDB key for a ledger entry.
// Format: RFC3339Nano + "_" + monotonic sequence (zero-padded to 10
// digits). Lexicographic sort = chronological sort, and the sequence
// disambiguates entries sharing a timestamp.
func ledgerKey(t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%010d", t.UTC().Format(time.RFC3339Nano), seq))
}

// AppendLedger writes a new audit ledger entry. Uses a single ACID write
// transaction.
func (d *DB) AppendLedger(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendLedger marshal: %w", err)
	}

	key := ledgerKey(entry.Timestamp, d.seq.Add(1))

	start := time.Now()
	err = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("AppendLedger bolt.Put: %w", err)
		}
		return nil
	})
	if d.metrics != nil {
		d.metrics.StorageWriteLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			d.metrics.StorageLedgerEntries.Inc()
		}
	}
	return err
}

// PruneOldLedgerEntries deletes ledger entries older than retentionDays.
// Called on startup and periodically by the coordinator's retention
// goroutine. Returns the number of entries deleted.
func (d *DB) PruneOldLedgerEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, 0)

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldLedgerEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err == nil && deleted > 0 && d.metrics != nil {
		d.metrics.StorageLedgerEntries.Sub(float64(deleted))
	}
	return deleted, err
}

// ReadLedger returns all ledger entries in chronological order. For
// operational use (admin inspection). Not called on the hot path.
func (d *DB) ReadLedger() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		return b.ForEach(func(_, v []byte) error {
			var entry LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}
