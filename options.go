// Index configuration. Options load from a YAML file on top of the
// defaults, so a partially specified file behaves sensibly. Before use, a
// zero path, prefix, growth setting or queue depth is filled in from the
// defaults; the analyzer settings and the index key are used as given.

package leif

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default queue depths for the ingest pipeline. Both queues are bounded;
// a full document queue blocks the producer, which is the index's
// backpressure.
const (
	DefaultDocumentQueueDepth = 256
	DefaultPostingQueueDepth  = 4096
)

// IndexOptions describes where an index lives and how it grows.
type IndexOptions struct {
	// Path is the directory holding the index files.
	Path string `yaml:"path"`
	// Prefix names the index within the directory.
	Prefix string `yaml:"prefix"`
	// IndexKey guards against opening the wrong index data; it must
	// match the key persisted in every metadata file.
	IndexKey string `yaml:"key"`

	// BufferSize is the head partition's instance limit (b).
	BufferSize int `yaml:"bufferSize"`
	// GrowthFactor is the geometric partitioning ratio (r), > 1.
	GrowthFactor int `yaml:"growthFactor"`

	DocumentQueueDepth int `yaml:"documentQueueDepth"`
	PostingQueueDepth  int `yaml:"postingQueueDepth"`

	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// DefaultIndexOptions returns options for an index named "leif" in the
// current directory.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		Path:               ".",
		Prefix:             "leif",
		BufferSize:         DefaultBufferSize,
		GrowthFactor:       DefaultGrowthFactor,
		DocumentQueueDepth: DefaultDocumentQueueDepth,
		PostingQueueDepth:  DefaultPostingQueueDepth,
		Analyzer:           DefaultAnalyzerConfig(),
	}
}

func (o IndexOptions) withDefaults() IndexOptions {
	defaults := DefaultIndexOptions()
	if o.Path == "" {
		o.Path = defaults.Path
	}
	if o.Prefix == "" {
		o.Prefix = defaults.Prefix
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	if o.GrowthFactor <= 1 {
		o.GrowthFactor = defaults.GrowthFactor
	}
	if o.DocumentQueueDepth <= 0 {
		o.DocumentQueueDepth = defaults.DocumentQueueDepth
	}
	if o.PostingQueueDepth <= 0 {
		o.PostingQueueDepth = defaults.PostingQueueDepth
	}
	return o
}

// LoadIndexOptions reads options from a YAML file.
func LoadIndexOptions(path string) (IndexOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IndexOptions{}, fmt.Errorf("leif: read options %s: %w", path, err)
	}
	options := DefaultIndexOptions()
	if err := yaml.Unmarshal(data, &options); err != nil {
		return IndexOptions{}, fmt.Errorf("leif: parse options %s: %w", path, err)
	}
	return options, nil
}
