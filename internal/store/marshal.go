package store

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loopexit/internal/searcher"
)

// marshalConfig renders the searcher tuning as YAML TEXT, the same format
// scenario files use for their config block.
func marshalConfig(cfg searcher.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// unmarshalConfig parses a stored config. Validation runs again so a row
// written by an older, looser version is reported rather than trusted.
func unmarshalConfig(s string) (searcher.Config, error) {
	cfg, err := searcher.ParseConfig([]byte(s))
	if err != nil {
		return searcher.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// SQLite integers are signed 64-bit.
func toInt64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds the SQLite integer range", field, v)
	}
	return int64(v), nil
}
