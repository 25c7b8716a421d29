package hoodie

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	// BasePath is the table root, used to build absolute result paths.
	BasePath string `yaml:"base_path"`

	// BloomIndexParallelism is an operator override for the join/verify
	// shard count. Zero means "derive from the skew estimate alone".
	BloomIndexParallelism int `yaml:"bloom_index_parallelism"`

	// TargetShardBytes bounds the estimated payload of one join shard.
	TargetShardBytes int64 `yaml:"target_shard_bytes"`

	// BytesPerTriplet is the estimated cost of one
	// (partitionPath, fileName, recordKey) triplet in a join shard.
	BytesPerTriplet int64 `yaml:"bytes_per_triplet"`

	// Bloom filter sizing for sidecars written through this config.
	BloomFilterExpectedElements  uint    `yaml:"bloom_filter_expected_elements"`
	BloomFilterFalsePositiveRate float64 `yaml:"bloom_filter_false_positive_rate"`

	Logger *slog.Logger `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		TargetShardBytes: 1536 * 1024 * 1024, // 1.5 GiB
		BytesPerTriplet:  300,

		BloomFilterExpectedElements:  100_000,
		BloomFilterFalsePositiveRate: 0.001,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
}

func (c Config) validate() error {
	if c.TargetShardBytes <= 0 {
		return fmt.Errorf("%w: TargetShardBytes must be greater than 0", ErrInvalidConfig)
	}
	if c.BytesPerTriplet <= 0 {
		return fmt.Errorf("%w: BytesPerTriplet must be greater than 0", ErrInvalidConfig)
	}
	if c.BytesPerTriplet > c.TargetShardBytes {
		return fmt.Errorf("%w: BytesPerTriplet exceeds TargetShardBytes", ErrInvalidConfig)
	}
	if c.BloomIndexParallelism < 0 {
		return fmt.Errorf("%w: BloomIndexParallelism must not be negative", ErrInvalidConfig)
	}
	if c.BloomFilterExpectedElements == 0 {
		return fmt.Errorf("%w: BloomFilterExpectedElements must be greater than 0", ErrInvalidConfig)
	}
	if c.BloomFilterFalsePositiveRate <= 0 || c.BloomFilterFalsePositiveRate >= 1 {
		return fmt.Errorf("%w: BloomFilterFalsePositiveRate must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}

// maxItemsPerJoinShard is the triplet-count bound one join shard may carry,
// derived once from the byte budget.
func (c Config) maxItemsPerJoinShard() int64 {
	return c.TargetShardBytes / c.BytesPerTriplet
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
