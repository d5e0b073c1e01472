// Package storage — bolt.go
//
// BoltDB-backed durable storage for streamguard. Three buckets:
//
//	/alerts
//	    key:   fixed-width UTC timestamp (9-digit nanoseconds) + "_" + user_id  [monotonic, sortable]
//	    value: JSON-encoded LedgerEntry
//
//	/baselines
//	    key:   "user" or "ip"
//	    value: JSON-encoded BaselineRecord
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// This is a tamper-evident audit trail and an optional scoring-policy
// bootstrap, not pipeline state — the in-memory window, user index and IP
// index are never written here and never reconstructed from here on
// startup (SPEC_FULL.md §8, carried as a Non-goal).
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// Retention:
//   - Ledger entries older than RetentionDays are pruned on startup.
//
// Failure modes:
//   - Database file corruption: bbolt detects via CRC and returns an
//     error on Open(). The caller should treat this as fatal.
//   - Disk full: bbolt.Update() returns an error; callers log it and
//     keep running — a ledger write failure must never stall the pipeline.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/streamguard/streamguard/internal/observability"
	"github.com/streamguard/streamguard/internal/scoring"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/streamguard/streamguard.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	bucketAlerts    = "alerts"
	bucketBaselines = "baselines"
	bucketMeta      = "meta"

	baselineKeyUser = "user"
	baselineKeyIP   = "ip"
)

// LedgerEntry is the persisted form of a critical-severity alert, as
// written by the Alert Sink after internal/audit has validated and
// hash-chained it.
type LedgerEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       int64     `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	Score        float64   `json:"score"`
	Severity     uint8     `json:"severity"`
	DecisionHash string    `json:"decision_hash"`
	ParentHash   string    `json:"parent_hash"`
}

// BaselineRecord is the persisted form of a scoring.Baseline.
type BaselineRecord struct {
	MeanVector       []float64   `json:"mean_vector"`
	CovarianceMatrix [][]float64 `json:"covariance_matrix"`
	BaselineEntropy  float64     `json:"baseline_entropy"`
	SampleCount      int         `json:"sample_count"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// ToBaseline converts a persisted record into the in-memory form scoring
// consumes, recomputing the inverse covariance on load.
func (r *BaselineRecord) ToBaseline() *scoring.Baseline {
	if r == nil {
		return nil
	}
	return &scoring.Baseline{
		MeanVector:       r.MeanVector,
		CovarianceMatrix: r.CovarianceMatrix,
		InvCovariance:    scoring.InvertCovariance(r.CovarianceMatrix),
		BaselineEntropy:  r.BaselineEntropy,
		SampleCount:      r.SampleCount,
	}
}

// DB wraps a BoltDB instance with typed accessors for streamguard data.
type DB struct {
	db            *bolt.DB
	retentionDays int
	metrics       *observability.Metrics
}

// Open opens (or creates) the BoltDB database at the given path,
// initialising all required buckets and verifying the schema version.
// metrics may be nil.
func Open(path string, retentionDays int, metrics *observability.Metrics) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays, metrics: metrics}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketAlerts, bucketBaselines, bucketMeta} {
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
	d.reportLedgerSize()
	return d, nil
}

// reportLedgerSize sets StorageLedgerEntries to the current alert
// bucket key count. Called after every mutation of the alerts bucket.
func (d *DB) reportLedgerSize() {
	if d.metrics == nil {
		return
	}
	_ = d.db.View(func(tx *bolt.Tx) error {
		stats := tx.Bucket([]byte(bucketAlerts)).Stats()
		d.metrics.StorageLedgerEntries.Set(float64(stats.KeyN))
		return nil
	})
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("schema version mismatch: database has %q, streamguard requires %q",
				string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Alert ledger ─────────────────────────────────────────────────────────────

// ledgerKey constructs a sortable BoltDB key: a fixed-width UTC RFC3339
// timestamp with all nine nanosecond digits + "_" + user_id zero-padded,
// so lexicographic order is chronological order. IP-level alerts
// (model.NoUser) sort before any real user ID at the same instant.
func ledgerKey(t time.Time, userID int64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), userID))
}

// AppendAlert writes one critical-severity alert to the ledger.
func (d *DB) AppendAlert(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendAlert marshal: %w", err)
	}
	key := ledgerKey(entry.Timestamp, entry.UserID)

	start := time.Now()
	err = d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).Put(key, data)
	})
	if d.metrics != nil {
		d.metrics.StorageWriteLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}
	d.reportLedgerSize()
	return nil
}

// PruneOldAlerts deletes ledger entries older than retentionDays. Returns
// the number deleted.
func (d *DB) PruneOldAlerts() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, 0)

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAlerts))
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
				return fmt.Errorf("PruneOldAlerts delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err == nil {
		d.reportLedgerSize()
	}
	return deleted, err
}

// ReadAlerts returns all ledger entries in chronological order. For
// operator/CLI inspection, not called on the hot path.
func (d *DB) ReadAlerts() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).ForEach(func(_, v []byte) error {
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

// ─── Scoring baselines ────────────────────────────────────────────────────────

func (d *DB) putBaseline(key string, rec BaselineRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("putBaseline marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketBaselines)).Put([]byte(key), data)
	})
}

func (d *DB) getBaseline(key string) (*BaselineRecord, error) {
	var rec BaselineRecord
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketBaselines)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("getBaseline(%q): %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// PutUserBaseline persists the user-class scoring baseline.
func (d *DB) PutUserBaseline(rec BaselineRecord) error { return d.putBaseline(baselineKeyUser, rec) }

// PutIPBaseline persists the IP-class scoring baseline.
func (d *DB) PutIPBaseline(rec BaselineRecord) error { return d.putBaseline(baselineKeyIP, rec) }

// GetUserBaselineRecord returns the raw persisted user-class baseline, or
// nil if none has been trained yet.
func (d *DB) GetUserBaselineRecord() (*BaselineRecord, error) { return d.getBaseline(baselineKeyUser) }

// GetIPBaselineRecord returns the raw persisted IP-class baseline, or nil
// if none has been trained yet.
func (d *DB) GetIPBaselineRecord() (*BaselineRecord, error) { return d.getBaseline(baselineKeyIP) }

// UserBaseline implements scoring.BaselineStore.
func (d *DB) UserBaseline() *scoring.Baseline {
	rec, err := d.GetUserBaselineRecord()
	if err != nil {
		return nil
	}
	return rec.ToBaseline()
}

// IPBaseline implements scoring.BaselineStore.
func (d *DB) IPBaseline() *scoring.Baseline {
	rec, err := d.GetIPBaselineRecord()
	if err != nil {
		return nil
	}
	return rec.ToBaseline()
}
