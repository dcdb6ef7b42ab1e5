package leif

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIndexOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leif.yaml")
	const source = `
path: /var/index
prefix: news
key: k1
bufferSize: 2048
analyzer:
  minTokenLength: 3
`
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	options, err := LoadIndexOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if options.Path != "/var/index" || options.Prefix != "news" || options.IndexKey != "k1" {
		t.Fatalf("options = %+v", options)
	}
	if options.BufferSize != 2048 {
		t.Errorf("BufferSize = %d, want 2048", options.BufferSize)
	}
	// Unset fields keep their defaults.
	if options.GrowthFactor != DefaultGrowthFactor {
		t.Errorf("GrowthFactor = %d, want default %d", options.GrowthFactor, DefaultGrowthFactor)
	}
	if options.Analyzer.MinTokenLength != 3 {
		t.Errorf("MinTokenLength = %d, want 3", options.Analyzer.MinTokenLength)
	}
}

func TestIndexOptions_WithDefaults(t *testing.T) {
	options := IndexOptions{Prefix: "x"}.withDefaults()
	if options.BufferSize != DefaultBufferSize || options.GrowthFactor != DefaultGrowthFactor {
		t.Fatalf("defaults not applied: %+v", options)
	}
	if options.Prefix != "x" {
		t.Fatalf("explicit values must survive: %+v", options)
	}
}
