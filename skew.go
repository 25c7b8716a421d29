package hoodie

// The index lookup can be skewed in three dimensions: files, partitions, and
// records. To keep any one join shard within the configured byte budget, each
// partition is split into sub-partitions sized by the product of its file and
// record counts.

// computeSubPartitions returns, per partition path, the number of
// sub-partitions to split the join into. Partitions with no known files are
// costed as one file so the count never degenerates to zero; the result is
// always >= 1 and depends only on the counts, not on map iteration order.
func computeSubPartitions(recordsPerPartition, filesPerPartition map[string]int64, maxItemsPerShard int64) map[string]int64 {
	subParts := make(map[string]int64, len(recordsPerPartition))
	for partitionPath, numRecords := range recordsPerPartition {
		numFiles := int64(1)
		if n, ok := filesPerPartition[partitionPath]; ok {
			numFiles = n
		}
		subParts[partitionPath] = (numFiles*numRecords)/maxItemsPerShard + 1
	}
	return subParts
}

// determineJoinParallelism picks the shard count for the join/verify stage:
// never below the total sub-partition count (that would reintroduce oversized
// shards), but raised to the input shard hint or the configured override when
// either is larger. Over-provisioning here only costs scheduling, never
// correctness.
func determineJoinParallelism(inputShardHint, configuredParallelism int, subParts map[string]int64) int {
	totalSubParts := 0
	for _, n := range subParts {
		totalSubParts += int(n)
	}
	indexParallelism := max(inputShardHint, configuredParallelism)
	return max(totalSubParts, indexParallelism)
}
