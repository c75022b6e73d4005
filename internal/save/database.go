package save

import "context"

// StoredRecord is the persisted form of one record: the body is opaque to the
// database and decoded by type tag.
type StoredRecord struct {
	Collection  string
	Key         string
	TypeTag     string
	TypeVersion int
	Seq         uint64
	Data        []byte
}

// RecordMutation is one change inside a committed write transaction.
type RecordMutation struct {
	Delete bool
	Record StoredRecord
}

// Database persists record store contents. A batch passed to
// ApplyMutations is applied atomically.
type Database interface {
	LoadRecords(ctx context.Context) ([]StoredRecord, error)
	ApplyMutations(ctx context.Context, batch []RecordMutation) error

	// DataVersion changes whenever another connection commits to the same
	// database file. Writes through this connection do not change it.
	DataVersion(ctx context.Context) (int64, error)

	BackupTo(path string) error
	Close() error
}
