package hoodie

// Key identifies a record within the table: a record key scoped to a
// partition path. The same record key may repeat across partitions but
// never within one.
type Key struct {
	PartitionPath string
	RecordKey     string
}

// RecordLocation is the (commit time, file id) pair identifying which data
// file currently holds a record.
type RecordLocation struct {
	CommitTime string
	FileID     string
}

// Record is a caller-owned record: a key, an opaque payload, and the
// location resolved by the index. A nil CurrentLocation means the record has
// no home file yet (an insert); the index only ever sets it, never clears it.
type Record struct {
	Key
	Payload         []byte
	CurrentLocation *RecordLocation
}

// SetCurrentLocation tags the record with its resolved location.
func (r *Record) SetCurrentLocation(loc RecordLocation) {
	r.CurrentLocation = &loc
}

// IsLocated reports whether the record has been tagged with a home file.
func (r *Record) IsLocated() bool {
	return r.CurrentLocation != nil
}

// WriteStatus carries the outcome of writing a batch of records to a single
// file. The bloom index stores nothing outside the data files themselves, so
// UpdateLocation passes these through untouched.
type WriteStatus struct {
	PartitionPath string
	FileID        string
	TotalRecords  int64
	TotalErrors   int64
}
