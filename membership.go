package hoodie

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// FileFilter is the probabilistic portion of a file's index: the bloom filter
// over its record keys plus the exact key range. The range lets callers skip
// the bloom probe entirely for keys that cannot be in the file; it never
// produces a false negative because min/max are exact bounds.
type FileFilter struct {
	Bloom        *bloom.BloomFilter
	MinRecordKey string
	MaxRecordKey string
	NumKeys      int
}

// MightContain reports whether the file may contain the record key. False
// means definitely absent; true must be confirmed by an exact check.
func (f *FileFilter) MightContain(recordKey string) bool {
	if f.NumKeys == 0 {
		return false
	}
	if recordKey < f.MinRecordKey || recordKey > f.MaxRecordKey {
		return false
	}
	return f.Bloom.TestString(recordKey)
}

// MembershipChecker answers "does this data file contain this record key",
// first probabilistically via the file's bloom filter, then exactly via its
// stored key set. Both calls involve I/O; errors mean the file could not be
// read and must abort the lookup, never be treated as "no match".
type MembershipChecker interface {
	// LoadFilter loads the file's bloom filter and key range.
	LoadFilter(ctx context.Context, file DataFile) (*FileFilter, error)

	// ContainsKey is the exact membership check against the file's actual
	// key set, used to disambiguate bloom filter positives.
	ContainsKey(ctx context.Context, file DataFile, recordKey string) (bool, error)
}

// InMemoryMembershipChecker serves membership checks from registered key
// sets, building bloom filters up front. Used by embedded tables and tests.
type InMemoryMembershipChecker struct {
	expectedItems     uint
	falsePositiveRate float64

	mu      sync.RWMutex
	filters map[string]*FileFilter
	keys    map[string]map[string]struct{}
}

func NewInMemoryMembershipChecker(expectedItems uint, falsePositiveRate float64) *InMemoryMembershipChecker {
	return &InMemoryMembershipChecker{
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
		filters:           make(map[string]*FileFilter),
		keys:              make(map[string]map[string]struct{}),
	}
}

// RegisterFile records the key set of a data file.
func (c *InMemoryMembershipChecker) RegisterFile(file DataFile, recordKeys []string) {
	sorted := dedupeSorted(recordKeys)
	filter := bloom.NewWithEstimates(c.expectedItems, c.falsePositiveRate)
	keySet := make(map[string]struct{}, len(sorted))
	for _, key := range sorted {
		filter.AddString(key)
		keySet[key] = struct{}{}
	}

	fileFilter := &FileFilter{
		Bloom:   filter,
		NumKeys: len(sorted),
	}
	if len(sorted) > 0 {
		fileFilter.MinRecordKey = sorted[0]
		fileFilter.MaxRecordKey = sorted[len(sorted)-1]
	}

	ref := membershipRef(file)
	c.mu.Lock()
	c.filters[ref] = fileFilter
	c.keys[ref] = keySet
	c.mu.Unlock()
}

func (c *InMemoryMembershipChecker) LoadFilter(ctx context.Context, file DataFile) (*FileFilter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	filter, ok := c.filters[membershipRef(file)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no filter registered for file %s/%s", file.PartitionPath, file.FileName)
	}
	return filter, nil
}

func (c *InMemoryMembershipChecker) ContainsKey(ctx context.Context, file DataFile, recordKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	keySet, ok := c.keys[membershipRef(file)]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("no key set registered for file %s/%s", file.PartitionPath, file.FileName)
	}
	_, found := keySet[recordKey]
	return found, nil
}

func membershipRef(file DataFile) string {
	return file.PartitionPath + "/" + file.FileName
}

// SidecarSuffix is appended to a data file's name to locate its index sidecar.
const SidecarSuffix = ".bloom"

// SidecarMembershipChecker reads per-file index sidecars laid out next to the
// data files under the table base path. Loaded key sets are cached for the
// lifetime of the checker, which is scoped to a single lookup.
type SidecarMembershipChecker struct {
	basePath string

	mu      sync.Mutex
	keySets map[string]map[string]struct{}
}

func NewSidecarMembershipChecker(basePath string) *SidecarMembershipChecker {
	return &SidecarMembershipChecker{
		basePath: basePath,
		keySets:  make(map[string]map[string]struct{}),
	}
}

func (c *SidecarMembershipChecker) sidecarPath(file DataFile) string {
	return FullPath(c.basePath, file.PartitionPath, file.FileName) + SidecarSuffix
}

func (c *SidecarMembershipChecker) LoadFilter(ctx context.Context, file DataFile) (*FileFilter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metadata, f, err := c.readMetadata(file)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &FileFilter{
		Bloom:        metadata.BloomFilter,
		MinRecordKey: metadata.MinRecordKey,
		MaxRecordKey: metadata.MaxRecordKey,
		NumKeys:      metadata.NumKeys,
	}, nil
}

func (c *SidecarMembershipChecker) ContainsKey(ctx context.Context, file DataFile, recordKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ref := membershipRef(file)
	c.mu.Lock()
	keySet, cached := c.keySets[ref]
	c.mu.Unlock()

	if !cached {
		metadata, f, err := c.readMetadata(file)
		if err != nil {
			return false, err
		}
		keySet, err = ReadIndexKeyBlock(f, metadata)
		f.Close()
		if err != nil {
			return false, fmt.Errorf("failed to read key set for %s: %w", c.sidecarPath(file), err)
		}
		c.mu.Lock()
		c.keySets[ref] = keySet
		c.mu.Unlock()
	}

	_, found := keySet[recordKey]
	return found, nil
}

func (c *SidecarMembershipChecker) readMetadata(file DataFile) (*IndexFileMetadata, *os.File, error) {
	sidecarPath := c.sidecarPath(file)
	f, err := os.Open(sidecarPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index sidecar %s: %w", sidecarPath, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat index sidecar %s: %w", sidecarPath, err)
	}
	metadata, err := ReadIndexSidecarMetadata(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read index sidecar %s: %w", sidecarPath, err)
	}
	return metadata, f, nil
}

func init() {
	var _ MembershipChecker = &InMemoryMembershipChecker{}
	var _ MembershipChecker = &SidecarMembershipChecker{}
}
