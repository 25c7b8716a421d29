package hoodie

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers

// buildTestTable assembles an in-memory table with the given files and their
// key sets; each file's commit time becomes a completed instant.
func buildTestTable(t *testing.T, basePath string, files map[DataFile][]string) *Table {
	t.Helper()

	view := NewInMemoryFileSystemView()
	timeline := NewInMemoryTimeline()
	checker := NewInMemoryMembershipChecker(1000, 0.001)

	for file, keys := range files {
		view.AddFile(file)
		checker.RegisterFile(file, keys)
		timeline.AddInstant(Instant{Timestamp: file.CommitTime, State: StateCompleted})
	}

	return &Table{
		BasePath:   basePath,
		View:       view,
		Timeline:   timeline,
		Membership: checker,
	}
}

func newTestIndex(t *testing.T, config Config) *BloomIndex {
	t.Helper()
	index, err := NewBloomIndex(config)
	require.NoError(t, err)
	return index
}

func recordsForKeys(partitionPath string, recordKeys ...string) []Record {
	records := make([]Record, 0, len(recordKeys))
	for _, key := range recordKeys {
		records = append(records, Record{
			Key:     Key{PartitionPath: partitionPath, RecordKey: key},
			Payload: []byte(fmt.Sprintf(`{"key":%q}`, key)),
		})
	}
	return records
}

func TestTagLocation(t *testing.T) {
	partition := "2023/01/01"
	f1 := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f1", "1-0-1", "20230101000000"),
		CommitTime:    "20230101000000",
		FileID:        "f1",
	}
	f2 := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f2", "1-0-1", "20230101010000"),
		CommitTime:    "20230101010000",
		FileID:        "f2",
	}

	table := buildTestTable(t, "/tmp/hoodie-table", map[DataFile][]string{
		f1: {"a", "b"},
		f2: {"c"},
	})
	index := newTestIndex(t, DefaultConfig())

	tagged, err := index.TagLocation(context.Background(), recordsForKeys(partition, "a", "c", "d"), table)
	require.NoError(t, err)
	require.Len(t, tagged, 3)

	byKey := make(map[string]Record)
	for _, record := range tagged {
		byKey[record.RecordKey] = record
	}

	require.NotNil(t, byKey["a"].CurrentLocation)
	assert.Equal(t, "f1", byKey["a"].CurrentLocation.FileID)
	assert.Equal(t, "20230101000000", byKey["a"].CurrentLocation.CommitTime)

	require.NotNil(t, byKey["c"].CurrentLocation)
	assert.Equal(t, "f2", byKey["c"].CurrentLocation.FileID)
	assert.Equal(t, "20230101010000", byKey["c"].CurrentLocation.CommitTime)

	assert.Nil(t, byKey["d"].CurrentLocation, "unmatched key is an insert, not an error")
}

func TestTagLocationEmptyTable(t *testing.T) {
	table := &Table{
		BasePath:   "/tmp/hoodie-table",
		View:       NewInMemoryFileSystemView(),
		Timeline:   NewInMemoryTimeline(),
		Membership: NewInMemoryMembershipChecker(1000, 0.001),
	}
	index := newTestIndex(t, DefaultConfig())

	tagged, err := index.TagLocation(context.Background(), recordsForKeys("2023/01/01", "a", "b"), table)
	require.NoError(t, err)
	for _, record := range tagged {
		assert.Nil(t, record.CurrentLocation, "every key in an empty table is an insert")
	}
}

func TestTagLocationNoCompletedCommit(t *testing.T) {
	partition := "2023/01/01"
	file := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f1", "1-0-1", "20230101000000"),
		CommitTime:    "20230101000000",
		FileID:        "f1",
	}

	view := NewInMemoryFileSystemView()
	view.AddFile(file)
	checker := NewInMemoryMembershipChecker(1000, 0.001)
	checker.RegisterFile(file, []string{"a"})
	timeline := NewInMemoryTimeline(Instant{Timestamp: "20230101000000", State: StateInflight})

	table := &Table{BasePath: "/t", View: view, Timeline: timeline, Membership: checker}
	index := newTestIndex(t, DefaultConfig())

	tagged, err := index.TagLocation(context.Background(), recordsForKeys(partition, "a"), table)
	require.NoError(t, err)
	assert.Nil(t, tagged[0].CurrentLocation, "files behind an incomplete commit are invisible")
}

func TestTagLocationDeterministicAcrossParallelism(t *testing.T) {
	partition := "2023/01/01"
	files := make(map[DataFile][]string)
	var allKeys []string
	for f := 0; f < 5; f++ {
		fileID := fmt.Sprintf("file-%d", f)
		commitTime := fmt.Sprintf("2023010100%04d", f)
		var keys []string
		for k := 0; k < 40; k++ {
			key := fmt.Sprintf("key-%d-%d", f, k)
			keys = append(keys, key)
			allKeys = append(allKeys, key)
		}
		files[DataFile{
			PartitionPath: partition,
			FileName:      MakeDataFileName(fileID, "1-0-1", commitTime),
			CommitTime:    commitTime,
			FileID:        fileID,
		}] = keys
	}
	// Some keys that exist nowhere.
	batch := append([]string{}, allKeys...)
	batch = append(batch, "absent-1", "absent-2", "absent-3")

	var baseline map[string]RecordLocation
	for _, parallelism := range []int{0, 1, 7, 64} {
		config := DefaultConfig()
		config.BloomIndexParallelism = parallelism
		// A tiny shard budget forces multi-sub-partition splitting.
		config.TargetShardBytes = 3000
		config.BytesPerTriplet = 300
		index := newTestIndex(t, config)

		table := buildTestTable(t, "/t", files)
		tagged, err := index.TagLocation(context.Background(), recordsForKeys(partition, batch...), table)
		require.NoError(t, err)

		got := make(map[string]RecordLocation)
		for _, record := range tagged {
			if record.CurrentLocation != nil {
				got[record.RecordKey] = *record.CurrentLocation
			}
		}
		assert.Len(t, got, len(allKeys))
		if baseline == nil {
			baseline = got
			continue
		}
		assert.Equal(t, baseline, got, "parallelism %d changed the tagging output", parallelism)
	}
}

func TestFetchRecordLocation(t *testing.T) {
	partition := "2023/01/01"
	fileName := MakeDataFileName("f1", "1-0-1", "20230101000000")
	file := DataFile{
		PartitionPath: partition,
		FileName:      fileName,
		CommitTime:    "20230101000000",
		FileID:        "f1",
	}
	table := buildTestTable(t, "/data/tables/trips", map[DataFile][]string{file: {"a"}})
	index := newTestIndex(t, DefaultConfig())

	locations, err := index.FetchRecordLocation(context.Background(), []Key{
		{PartitionPath: partition, RecordKey: "a"},
		{PartitionPath: partition, RecordKey: "missing"},
	}, table)
	require.NoError(t, err)
	require.Len(t, locations, 2)

	require.NotNil(t, locations[0].Path)
	assert.Equal(t, "/data/tables/trips/2023/01/01/"+fileName, *locations[0].Path)
	assert.Nil(t, locations[1].Path, "no-match yields an explicit absent path")
}

func TestDuplicateRecordKeyAcrossFiles(t *testing.T) {
	partition := "2023/01/01"
	f1 := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f1", "1-0-1", "20230101000000"),
		CommitTime:    "20230101000000",
		FileID:        "f1",
	}
	f2 := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f2", "1-0-1", "20230101010000"),
		CommitTime:    "20230101010000",
		FileID:        "f2",
	}
	// Corrupt table: the same key lives in two files.
	table := buildTestTable(t, "/t", map[DataFile][]string{
		f1: {"dup"},
		f2: {"dup"},
	})
	index := newTestIndex(t, DefaultConfig())

	_, err := index.TagLocation(context.Background(), recordsForKeys(partition, "dup"), table)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRecordKey)
}

// failingMembershipChecker simulates unreadable files.
type failingMembershipChecker struct {
	err error
}

func (f *failingMembershipChecker) LoadFilter(ctx context.Context, file DataFile) (*FileFilter, error) {
	return nil, f.err
}

func (f *failingMembershipChecker) ContainsKey(ctx context.Context, file DataFile, recordKey string) (bool, error) {
	return false, f.err
}

func TestCollaboratorErrorPropagates(t *testing.T) {
	partition := "2023/01/01"
	file := DataFile{
		PartitionPath: partition,
		FileName:      MakeDataFileName("f1", "1-0-1", "20230101000000"),
		CommitTime:    "20230101000000",
		FileID:        "f1",
	}
	view := NewInMemoryFileSystemView()
	view.AddFile(file)
	timeline := NewInMemoryTimeline(Instant{Timestamp: "20230101000000", State: StateCompleted})

	ioErr := errors.New("disk on fire")
	table := &Table{
		BasePath:   "/t",
		View:       view,
		Timeline:   timeline,
		Membership: &failingMembershipChecker{err: ioErr},
	}
	index := newTestIndex(t, DefaultConfig())

	_, err := index.TagLocation(context.Background(), recordsForKeys(partition, "a"), table)
	require.Error(t, err, "an unreadable file must abort the lookup, not read as no-match")
	assert.ErrorIs(t, err, ioErr)
}

func TestRollbackCommitIsNoOp(t *testing.T) {
	index := newTestIndex(t, DefaultConfig())
	assert.True(t, index.RollbackCommit("20230101000000"))
}

func TestUpdateLocationPassesThrough(t *testing.T) {
	index := newTestIndex(t, DefaultConfig())
	statuses := []WriteStatus{
		{PartitionPath: "2023/01/01", FileID: "f1", TotalRecords: 10},
		{PartitionPath: "2023/01/02", FileID: "f2", TotalRecords: 20, TotalErrors: 1},
	}
	out, err := index.UpdateLocation(context.Background(), statuses, nil)
	require.NoError(t, err)
	assert.Equal(t, statuses, out)
}

func TestNewBloomIndexValidatesConfig(t *testing.T) {
	bad := DefaultConfig()
	bad.TargetShardBytes = 0
	_, err := NewBloomIndex(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad = DefaultConfig()
	bad.BloomIndexParallelism = -1
	_, err = NewBloomIndex(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
