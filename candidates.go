package hoodie

import (
	"fmt"

	"github.com/cespare/xxhash"
)

// partitionRecordKey is one incoming (partitionPath, recordKey) pair.
type partitionRecordKey struct {
	PartitionPath string
	RecordKey     string
}

// partitionFile is one enumerated (partitionPath, fileName) pair.
type partitionFile struct {
	PartitionPath string
	FileName      string
}

// candidate is one (file, recordKey) pair to verify, carrying the
// sub-partition it was joined in.
type candidate struct {
	SubPartition  string
	PartitionPath string
	FileName      string
	RecordKey     string
}

// subPartitionKey builds the synthetic shard key "<partitionPath>#<n>". It
// never escapes the candidate/verifier boundary.
func subPartitionKey(partitionPath string, part int64) string {
	return fmt.Sprintf("%s#%d", partitionPath, part)
}

// recordKeyShard assigns a record key to one of subParts shards. xxhash keeps
// the assignment stable across runs and processes, so reruns land every key
// in the same shard.
func recordKeyShard(recordKey string, subParts int64) int64 {
	return int64(xxhash.Sum64String(recordKey) % uint64(subParts))
}

// explodePartitionFiles replicates every (partition, file) pair into each of
// the partition's sub-partitions. A file must be checked in every shard of
// its partition because any of the partition's keys may land in any shard.
func explodePartitionFiles(files []partitionFile, subParts map[string]int64) map[string][]string {
	exploded := make(map[string][]string)
	for _, file := range files {
		for part := int64(0); part < subParts[file.PartitionPath]; part++ {
			key := subPartitionKey(file.PartitionPath, part)
			exploded[key] = append(exploded[key], file.FileName)
		}
	}
	return exploded
}

// splitPartitionRecordKeys assigns each incoming (partition, recordKey) pair
// to exactly one sub-partition by hash mod.
func splitPartitionRecordKeys(pairs []partitionRecordKey, subParts map[string]int64) map[string][]string {
	split := make(map[string][]string)
	for _, pair := range pairs {
		n := subParts[pair.PartitionPath]
		if n < 1 {
			n = 1
		}
		key := subPartitionKey(pair.PartitionPath, recordKeyShard(pair.RecordKey, n))
		split[key] = append(split[key], pair.RecordKey)
	}
	return split
}

// joinCandidates co-locates exploded files with split record keys on the
// sub-partition key, producing every (file, recordKey) pair to verify.
// Sub-partitions with files but no keys (or keys but no files) contribute
// nothing, mirroring inner-join semantics.
func joinCandidates(filesBySubPartition, keysBySubPartition map[string][]string) []candidate {
	var candidates []candidate
	for subPartition, fileNames := range filesBySubPartition {
		recordKeys, ok := keysBySubPartition[subPartition]
		if !ok {
			continue
		}
		partitionPath := partitionPathOf(subPartition)
		for _, fileName := range fileNames {
			for _, recordKey := range recordKeys {
				candidates = append(candidates, candidate{
					SubPartition:  subPartition,
					PartitionPath: partitionPath,
					FileName:      fileName,
					RecordKey:     recordKey,
				})
			}
		}
	}
	return candidates
}

// partitionPathOf strips the "#<n>" suffix from a sub-partition key. The
// partition path itself may contain '#', so only the suffix after the last
// one is dropped.
func partitionPathOf(subPartition string) string {
	for i := len(subPartition) - 1; i >= 0; i-- {
		if subPartition[i] == '#' {
			return subPartition[:i]
		}
	}
	return subPartition
}
