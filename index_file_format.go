package hoodie

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHash   = errors.New("invalid hash")
	ErrInvalidFormat = errors.New("invalid index file format")
)

// Index sidecar format constants
const (
	IndexFileVersion = uint32(1)
	IndexMagicBytes  = "HUDIBLMI"

	lengthPrefixSize  = 4
	versionPrefixSize = 4
	hashSize          = 8
)

// IndexFileMetadata is the footer metadata of a per-data-file index sidecar:
// the bloom filter over the file's record keys, the key range, and the frame
// of the compressed key block at the start of the file.
type IndexFileMetadata struct {
	BloomFilter            *bloom.BloomFilter
	BloomExpectedItems     uint
	BloomFalsePositiveRate float64

	MinRecordKey string
	MaxRecordKey string
	NumKeys      int

	// Key block framing: zstd-compressed, length-prefixed keys at offset 0,
	// followed by an 8-byte xxhash of the compressed bytes.
	KeyBlockSize        int
	UncompressedKeySize int
}

// Bytes returns the metadata as a byte slice and the xxhash of those bytes.
func (m *IndexFileMetadata) Bytes() ([]byte, []byte) {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	xxhashValue := xxhash.Sum64(jsonBytes)
	xxhashBytes := make([]byte, hashSize)
	binary.LittleEndian.PutUint64(xxhashBytes, xxhashValue)
	return jsonBytes, xxhashBytes
}

// IndexFileMetadataFromBytesWithHash verifies the hash and unmarshals the
// footer metadata.
func IndexFileMetadataFromBytesWithHash(bytes []byte, expectedHashBytes []byte) (*IndexFileMetadata, error) {
	actualHash := xxhash.Sum64(bytes)
	expectedHash := binary.LittleEndian.Uint64(expectedHashBytes)
	if actualHash != expectedHash {
		return nil, fmt.Errorf("%w: expected %x, got %x", ErrInvalidHash, expectedHash, actualHash)
	}

	var metadata IndexFileMetadata
	if err := json.Unmarshal(bytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index metadata: %w", err)
	}
	return &metadata, nil
}

// WriteIndexSidecar writes a complete index sidecar for the given record
// keys: [key block][key block hash][metadata][metadata hash][metadata length]
// [version][magic]. Keys are deduplicated and sorted before writing.
func WriteIndexSidecar(w io.Writer, recordKeys []string, expectedItems uint, falsePositiveRate float64) error {
	keys := dedupeSorted(recordKeys)

	filter := bloom.NewWithEstimates(expectedItems, falsePositiveRate)
	for _, key := range keys {
		filter.AddString(key)
	}

	// Length-prefix each key, then compress the whole block.
	var raw []byte
	for _, key := range keys {
		lengthBytes := make([]byte, lengthPrefixSize)
		binary.LittleEndian.PutUint32(lengthBytes, uint32(len(key)))
		raw = append(raw, lengthBytes...)
		raw = append(raw, key...)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	compressed := encoder.EncodeAll(raw, nil)
	encoder.Close()

	metadata := IndexFileMetadata{
		BloomFilter:            filter,
		BloomExpectedItems:     expectedItems,
		BloomFalsePositiveRate: falsePositiveRate,
		NumKeys:                len(keys),
		KeyBlockSize:           len(compressed),
		UncompressedKeySize:    len(raw),
	}
	if len(keys) > 0 {
		metadata.MinRecordKey = keys[0]
		metadata.MaxRecordKey = keys[len(keys)-1]
	}

	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write key block: %w", err)
	}

	keyBlockHashBytes := make([]byte, hashSize)
	binary.LittleEndian.PutUint64(keyBlockHashBytes, xxhash.Sum64(compressed))
	if _, err := w.Write(keyBlockHashBytes); err != nil {
		return fmt.Errorf("failed to write key block hash: %w", err)
	}

	metadataBytes, metadataHashBytes := metadata.Bytes()
	if _, err := w.Write(metadataBytes); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}
	if _, err := w.Write(metadataHashBytes); err != nil {
		return fmt.Errorf("failed to write index metadata hash: %w", err)
	}

	metadataLengthBytes := make([]byte, lengthPrefixSize)
	binary.LittleEndian.PutUint32(metadataLengthBytes, uint32(len(metadataBytes)))
	if _, err := w.Write(metadataLengthBytes); err != nil {
		return fmt.Errorf("failed to write index metadata length: %w", err)
	}

	versionBytes := make([]byte, versionPrefixSize)
	binary.LittleEndian.PutUint32(versionBytes, IndexFileVersion)
	if _, err := w.Write(versionBytes); err != nil {
		return fmt.Errorf("failed to write index file version: %w", err)
	}

	if _, err := w.Write([]byte(IndexMagicBytes)); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	return nil
}

// ReadIndexSidecarMetadata reads and verifies the footer metadata of a
// sidecar of the given total size.
func ReadIndexSidecarMetadata(r io.ReaderAt, fileSize int64) (*IndexFileMetadata, error) {
	// Footer: [metadata hash][metadata length][version][magic]
	minFooterSize := int64(hashSize + lengthPrefixSize + versionPrefixSize + len(IndexMagicBytes))
	if fileSize < minFooterSize {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidFormat, fileSize)
	}

	magicBytes := make([]byte, len(IndexMagicBytes))
	if _, err := r.ReadAt(magicBytes, fileSize-int64(len(IndexMagicBytes))); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magicBytes) != IndexMagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %q", ErrInvalidFormat, magicBytes)
	}

	versionBytes := make([]byte, versionPrefixSize)
	if _, err := r.ReadAt(versionBytes, fileSize-int64(len(IndexMagicBytes))-versionPrefixSize); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version := binary.LittleEndian.Uint32(versionBytes); version != IndexFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, version)
	}

	metadataLengthBytes := make([]byte, lengthPrefixSize)
	if _, err := r.ReadAt(metadataLengthBytes, fileSize-int64(len(IndexMagicBytes))-versionPrefixSize-lengthPrefixSize); err != nil {
		return nil, fmt.Errorf("failed to read metadata length: %w", err)
	}
	metadataLength := binary.LittleEndian.Uint32(metadataLengthBytes)

	metadataHashBytes := make([]byte, hashSize)
	hashOffset := fileSize - int64(len(IndexMagicBytes)) - versionPrefixSize - lengthPrefixSize - hashSize
	if _, err := r.ReadAt(metadataHashBytes, hashOffset); err != nil {
		return nil, fmt.Errorf("failed to read metadata hash: %w", err)
	}

	metadataOffset := hashOffset - int64(metadataLength)
	if metadataOffset < 0 {
		return nil, fmt.Errorf("%w: metadata length %d exceeds file size", ErrInvalidFormat, metadataLength)
	}
	metadataBytes := make([]byte, metadataLength)
	if _, err := r.ReadAt(metadataBytes, metadataOffset); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	return IndexFileMetadataFromBytesWithHash(metadataBytes, metadataHashBytes)
}

// ReadIndexKeyBlock reads, verifies, and decompresses the key block described
// by the metadata, returning the file's record keys as a set.
func ReadIndexKeyBlock(r io.ReaderAt, metadata *IndexFileMetadata) (map[string]struct{}, error) {
	compressed := make([]byte, metadata.KeyBlockSize)
	if _, err := r.ReadAt(compressed, 0); err != nil {
		return nil, fmt.Errorf("failed to read key block: %w", err)
	}

	keyBlockHashBytes := make([]byte, hashSize)
	if _, err := r.ReadAt(keyBlockHashBytes, int64(metadata.KeyBlockSize)); err != nil {
		return nil, fmt.Errorf("failed to read key block hash: %w", err)
	}
	expectedHash := binary.LittleEndian.Uint64(keyBlockHashBytes)
	if actualHash := xxhash.Sum64(compressed); actualHash != expectedHash {
		return nil, fmt.Errorf("%w: expected %x, got %x", ErrInvalidHash, expectedHash, actualHash)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(compressed, make([]byte, 0, metadata.UncompressedKeySize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress key block: %w", err)
	}

	keys := make(map[string]struct{}, metadata.NumKeys)
	for offset := 0; offset < len(raw); {
		if offset+lengthPrefixSize > len(raw) {
			return nil, fmt.Errorf("%w: truncated key length prefix", ErrInvalidFormat)
		}
		keyLength := int(binary.LittleEndian.Uint32(raw[offset : offset+lengthPrefixSize]))
		offset += lengthPrefixSize
		if offset+keyLength > len(raw) {
			return nil, fmt.Errorf("%w: truncated key", ErrInvalidFormat)
		}
		keys[string(raw[offset:offset+keyLength])] = struct{}{}
		offset += keyLength
	}
	if len(keys) != metadata.NumKeys {
		return nil, fmt.Errorf("%w: expected %d keys, decoded %d", ErrInvalidFormat, metadata.NumKeys, len(keys))
	}
	return keys, nil
}

func dedupeSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
