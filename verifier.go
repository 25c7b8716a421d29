package hoodie

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateRecordKey = errors.New("record key matched multiple files")
)

// LookupResult is the verifier's output unit: the confirmed record keys of
// one data file within one shard. A file exploded into several sub-partitions
// may produce results in several shards.
type LookupResult struct {
	FileName           string
	MatchingRecordKeys []string
}

// shardCandidates distributes candidates across shardCount shards by their
// sub-partition key and sorts each shard by the "<fileName>#<recordKey>"
// composite, so all of one file's work within a shard is contiguous.
func shardCandidates(candidates []candidate, shardCount int) [][]candidate {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([][]candidate, shardCount)
	for _, c := range candidates {
		idx := xxhash.Sum64String(c.SubPartition) % uint64(shardCount)
		shards[idx] = append(shards[idx], c)
	}
	for _, shard := range shards {
		sort.Slice(shard, func(i, j int) bool {
			if shard[i].FileName != shard[j].FileName {
				return shard[i].FileName < shard[j].FileName
			}
			return shard[i].RecordKey < shard[j].RecordKey
		})
	}
	return shards
}

// verifyShard walks one sorted shard, loading each file's filter exactly once
// per contiguous run, probing every candidate key against it, and confirming
// filter positives with the exact membership check. Runs with zero confirmed
// keys emit nothing. Any collaborator error aborts the shard: treating an
// unreadable file as "no match" would double-insert keys that have a home.
func (idx *BloomIndex) verifyShard(ctx context.Context, shard []candidate, checker MembershipChecker) ([]LookupResult, error) {
	var results []LookupResult

	for start := 0; start < len(shard); {
		end := start
		for end < len(shard) && shard[end].FileName == shard[start].FileName {
			end++
		}
		run := shard[start:end]
		start = end

		file, err := dataFileOf(run[0])
		if err != nil {
			return nil, err
		}

		filter, err := checker.LoadFilter(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load filter for %s: %w", file.FileName, err)
		}

		var matching []string
		for _, c := range run {
			idx.metrics.bloomProbes.Inc()
			if !filter.MightContain(c.RecordKey) {
				continue
			}
			found, err := checker.ContainsKey(ctx, file, c.RecordKey)
			if err != nil {
				return nil, fmt.Errorf("failed exact key check for %s: %w", file.FileName, err)
			}
			if !found {
				idx.metrics.bloomFalsePositives.Inc()
				continue
			}
			matching = append(matching, c.RecordKey)
		}

		if len(matching) > 0 {
			results = append(results, LookupResult{
				FileName:           file.FileName,
				MatchingRecordKeys: matching,
			})
		}
	}
	return results, nil
}

// verifyCandidates reshapes the candidate set into shardCount shards and
// verifies them in parallel, returning every non-empty LookupResult.
func (idx *BloomIndex) verifyCandidates(ctx context.Context, candidates []candidate, shardCount int, checker MembershipChecker) ([]LookupResult, error) {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := shardCandidates(candidates, shardCount)
	resultsByShard := make([][]LookupResult, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shardCount)
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		i, shard := i, shard
		g.Go(func() error {
			results, err := idx.verifyShard(gctx, shard, checker)
			if err != nil {
				return err
			}
			resultsByShard[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []LookupResult
	for _, shardResults := range resultsByShard {
		results = append(results, shardResults...)
	}
	return results, nil
}

// collectMatches flattens LookupResults into recordKey -> fileName. A record
// key confirmed in two distinct files means the table itself holds the key
// twice; that is surfaced, never resolved by picking a winner.
func collectMatches(results []LookupResult) (map[string]string, error) {
	matches := make(map[string]string)
	for _, result := range results {
		for _, recordKey := range result.MatchingRecordKeys {
			if existing, ok := matches[recordKey]; ok && existing != result.FileName {
				return nil, fmt.Errorf("%w: key %q found in both %s and %s",
					ErrDuplicateRecordKey, recordKey, existing, result.FileName)
			}
			matches[recordKey] = result.FileName
		}
	}
	return matches, nil
}

// dataFileOf rebuilds the DataFile identity a candidate refers to. The file
// name came from the enumerator, so a parse failure here is an upstream bug.
func dataFileOf(c candidate) (DataFile, error) {
	fileID, commitTime, err := ParseDataFileName(c.FileName)
	if err != nil {
		return DataFile{}, err
	}
	return DataFile{
		PartitionPath: c.PartitionPath,
		FileName:      c.FileName,
		CommitTime:    commitTime,
		FileID:        fileID,
	}, nil
}
