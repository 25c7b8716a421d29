package hoodie

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSubPartitions(t *testing.T) {
	t.Run("small partitions get one sub-partition", func(t *testing.T) {
		subParts := computeSubPartitions(
			map[string]int64{"p1": 100, "p2": 5},
			map[string]int64{"p1": 3, "p2": 1},
			5_000_000,
		)
		assert.Equal(t, map[string]int64{"p1": 1, "p2": 1}, subParts)
	})

	t.Run("skewed partition splits", func(t *testing.T) {
		// 200 files * 100k records = 20M triplets over a 5M budget -> 5 shards
		subParts := computeSubPartitions(
			map[string]int64{"hot": 100_000},
			map[string]int64{"hot": 200},
			5_000_000,
		)
		assert.Equal(t, int64(5), subParts["hot"])
	})

	t.Run("partition missing from file counts is costed as one file", func(t *testing.T) {
		subParts := computeSubPartitions(
			map[string]int64{"fresh": 10},
			map[string]int64{},
			5_000_000,
		)
		assert.Equal(t, int64(1), subParts["fresh"], "must never be zero")
	})

	t.Run("always at least one", func(t *testing.T) {
		subParts := computeSubPartitions(
			map[string]int64{"p": 0},
			map[string]int64{"p": 0},
			1,
		)
		assert.GreaterOrEqual(t, subParts["p"], int64(1))
	})

	t.Run("independent of input map construction order", func(t *testing.T) {
		records := map[string]int64{}
		files := map[string]int64{}
		for i := 0; i < 50; i++ {
			records[string(rune('a'+i%26))+string(rune('0'+i/26))] = int64(i * 1000)
			files[string(rune('a'+i%26))+string(rune('0'+i/26))] = int64(i)
		}
		first := computeSubPartitions(records, files, 10_000)
		second := computeSubPartitions(records, files, 10_000)
		assert.Equal(t, first, second)
	})
}

func TestDetermineJoinParallelism(t *testing.T) {
	subParts := map[string]int64{"p1": 3, "p2": 2}

	t.Run("never below total sub-partitions", func(t *testing.T) {
		assert.Equal(t, 5, determineJoinParallelism(1, 0, subParts))
	})

	t.Run("input shard hint can raise it", func(t *testing.T) {
		assert.Equal(t, 40, determineJoinParallelism(40, 0, subParts))
	})

	t.Run("configured parallelism can raise it", func(t *testing.T) {
		assert.Equal(t, 100, determineJoinParallelism(8, 100, subParts))
	})

	t.Run("empty estimate falls back to hint", func(t *testing.T) {
		assert.Equal(t, 4, determineJoinParallelism(4, 2, map[string]int64{}))
	})
}
