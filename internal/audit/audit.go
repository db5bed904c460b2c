// Package audit provides an append-only diagnostic history of Command
// emissions and plugin faults, backed by BoltDB. It exists purely for
// operator visibility (the "tessera audit tail" subcommand) — it is never
// read back to reconstruct the live Subscription Index.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/tessera-wm/tessera/internal/windowsystem"
)

var bucketEvents = []byte("events")

// timeNow is a var so tests can pin the clock.
var timeNow = time.Now

// Kind discriminates the audit record types.
type Kind string

const (
	KindSubscribe       Kind = "command.subscribe"
	KindUnsubscribe     Kind = "command.unsubscribe"
	KindConfigureWindow Kind = "command.configure_window"
	KindPluginFault     Kind = "plugin.fault"
)

// Record is one append-only audit entry.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	PluginID  string    `json:"plugin_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Log is a BoltDB-backed append-only audit log.
type Log struct {
	db *bolt.DB
}

// Open creates or opens the audit database under dataDir.
func Open(dataDir string) (*Log, error) {
	path := filepath.Join(dataDir, "tessera-audit.db")

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create bucket: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append writes r to the log, assigning it an ID and Timestamp if unset,
// keyed by BoltDB's own autoincrement sequence so keys sort in insertion
// order and Tail can walk them back from the newest.
func (l *Log) Append(r Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = timeNow()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// RecordCommand translates a windowsystem.Command into an audit Record.
func (l *Log) RecordCommand(cmd windowsystem.Command) error {
	switch cmd.Kind {
	case windowsystem.CommandSubscribe:
		return l.Append(Record{Kind: KindSubscribe, Detail: fmt.Sprintf("event_tag=%d", cmd.SubscriptionEvent.Tag)})
	case windowsystem.CommandUnsubscribe:
		return l.Append(Record{Kind: KindUnsubscribe, Detail: fmt.Sprintf("event_tag=%d", cmd.SubscriptionEvent.Tag)})
	case windowsystem.CommandConfigureWindow:
		return l.Append(Record{Kind: KindConfigureWindow, Detail: fmt.Sprintf("window_id=%d", cmd.WindowID)})
	default:
		return fmt.Errorf("audit: unrecognized command kind %d", cmd.Kind)
	}
}

// RecordPluginFault logs a plugin-attributable failure (a load error, a
// trapped handle() or host-call).
func (l *Log) RecordPluginFault(pluginID, detail string) error {
	return l.Append(Record{Kind: KindPluginFault, PluginID: pluginID, Detail: detail})
}

// Tail returns the most recent n records, newest first.
func (l *Log) Tail(n int) ([]Record, error) {
	var records []Record

	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("audit: decode record: %w", err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
