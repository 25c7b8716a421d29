package hoodie

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMalformedFileName = errors.New("malformed data file name")
)

// DataFileExtension is the extension data files carry on disk.
const DataFileExtension = ".parquet"

// DataFile is one physical data file of the table, as reported by the file
// system view. Its bloom filter over contained record keys is reachable
// through the MembershipChecker, not carried here.
type DataFile struct {
	PartitionPath string
	FileName      string
	CommitTime    string
	FileID        string
}

// NewFileID generates a fresh file id.
func NewFileID() string {
	return uuid.NewString()
}

// MakeDataFileName encodes a file id, write token, and commit time into the
// table's fixed file naming convention: <fileID>_<writeToken>_<commitTime>.parquet
func MakeDataFileName(fileID, writeToken, commitTime string) string {
	return fmt.Sprintf("%s_%s_%s%s", fileID, writeToken, commitTime, DataFileExtension)
}

// ParseDataFileName recovers the file id and commit time from a data file
// name. A name that doesn't follow the convention is a contract violation by
// whatever enumerated the file, not a recoverable input.
func ParseDataFileName(fileName string) (fileID string, commitTime string, err error) {
	base := strings.TrimSuffix(fileName, DataFileExtension)
	if base == fileName {
		return "", "", fmt.Errorf("%w: %q missing %s extension", ErrMalformedFileName, fileName, DataFileExtension)
	}
	parts := strings.Split(base, "_")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedFileName, fileName)
	}
	return parts[0], parts[2], nil
}

// LocationFromFileName parses a file name into the location it encodes.
func LocationFromFileName(fileName string) (RecordLocation, error) {
	fileID, commitTime, err := ParseDataFileName(fileName)
	if err != nil {
		return RecordLocation{}, err
	}
	return RecordLocation{CommitTime: commitTime, FileID: fileID}, nil
}

// FullPath returns the base-path-joined, partition-qualified path of a data
// file within the table.
func FullPath(basePath, partitionPath, fileName string) string {
	return path.Join(basePath, partitionPath, fileName)
}
