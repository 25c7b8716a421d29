package hoodie

import (
	"context"
	"sort"
)

// FileSystemView lists the data files of the table. Implementations resolve
// the "latest version" of each file group as of a commit time, hiding files
// written by later or uncommitted actions.
type FileSystemView interface {
	// LatestVersionInPartition returns, for each file group in the
	// partition, its newest version visible as of asOfCommit. An unknown
	// partition returns no files and no error.
	LatestVersionInPartition(ctx context.Context, partitionPath, asOfCommit string) ([]DataFile, error)
}

// Table bundles the read-only collaborators the index needs: where the table
// lives, which files it has, and which commits completed.
type Table struct {
	BasePath   string
	View       FileSystemView
	Timeline   Timeline
	Membership MembershipChecker
}

// InMemoryFileSystemView is a FileSystemView over a fixed file listing,
// used by embedded tables and tests.
type InMemoryFileSystemView struct {
	files map[string][]DataFile
}

func NewInMemoryFileSystemView() *InMemoryFileSystemView {
	return &InMemoryFileSystemView{files: make(map[string][]DataFile)}
}

// AddFile registers a data file under its partition path.
func (v *InMemoryFileSystemView) AddFile(file DataFile) {
	v.files[file.PartitionPath] = append(v.files[file.PartitionPath], file)
}

func (v *InMemoryFileSystemView) LatestVersionInPartition(ctx context.Context, partitionPath, asOfCommit string) ([]DataFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Newest visible version per file group wins.
	latest := make(map[string]DataFile)
	for _, file := range v.files[partitionPath] {
		if file.CommitTime > asOfCommit {
			continue
		}
		if existing, ok := latest[file.FileID]; !ok || file.CommitTime > existing.CommitTime {
			latest[file.FileID] = file
		}
	}

	out := make([]DataFile, 0, len(latest))
	for _, file := range latest {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FileName < out[j].FileName
	})
	return out, nil
}

func init() {
	var _ FileSystemView = &InMemoryFileSystemView{}
}
