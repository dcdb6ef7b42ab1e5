package leif

import (
	"math"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// GEOMETRIC PARTITIONING TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestFixedBufferGrowthStrategy_PartitionLimit(t *testing.T) {
	tests := []struct {
		name         string
		bufferSize   int
		growthFactor int
		limits       []int
	}{
		{name: "defaults", bufferSize: 4096, growthFactor: 3, limits: []int{4096, 8192, 24576, 73728}},
		{name: "small", bufferSize: 2, growthFactor: 3, limits: []int{2, 4, 12, 36}},
		{name: "binary", bufferSize: 8, growthFactor: 2, limits: []int{8, 8, 16, 32, 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := NewFixedBufferGrowthStrategy(tt.bufferSize, tt.growthFactor)
			for k, want := range tt.limits {
				if got := strategy.PartitionLimit(k); got != want {
					t.Errorf("PartitionLimit(%d) = %d, want %d", k, got, want)
				}
			}
		})
	}
}

func TestFixedBufferGrowthStrategy_SelectPartition(t *testing.T) {
	strategy := NewFixedBufferGrowthStrategy(2, 3)

	tests := []struct {
		name   string
		counts []int
		want   int
	}{
		{name: "only head, create first partition", counts: []int{2}, want: 1},
		{name: "fits in first partition", counts: []int{2, 2}, want: 1},
		{name: "overflows first, create second", counts: []int{2, 4}, want: 2},
		{name: "skips emptied partition", counts: []int{2, 0, 6}, want: 2},
		{name: "everything full, create third", counts: []int{2, 4, 12}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strategy.SelectPartition(tt.counts); got != tt.want {
				t.Errorf("SelectPartition(%v) = %d, want %d", tt.counts, got, tt.want)
			}
		})
	}
}

// TestFixedBufferGrowthStrategy_SimulatedFlushes replays N head flushes
// against the policy alone and checks the geometric shape: no partition
// ever exceeds its capacity, and the number of external partitions stays
// within one of ⌈log_r(N)⌉ + 1.
func TestFixedBufferGrowthStrategy_SimulatedFlushes(t *testing.T) {
	const b, r, flushes = 4096, 3, 40

	strategy := NewFixedBufferGrowthStrategy(b, r)
	counts := []int{0}

	for n := 1; n <= flushes; n++ {
		counts[0] = b
		k := strategy.SelectPartition(counts)
		if k == len(counts) {
			counts = append(counts, 0)
		}
		moved := 0
		for i := 0; i < k; i++ {
			moved += counts[i]
			counts[i] = 0
		}
		counts[k] += moved

		for i := 1; i < len(counts); i++ {
			if counts[i] > strategy.PartitionLimit(i) {
				t.Fatalf("after %d flushes partition %d holds %d > limit %d",
					n, i, counts[i], strategy.PartitionLimit(i))
			}
		}

		total := 0
		for _, count := range counts {
			total += count
		}
		if total != n*b {
			t.Fatalf("after %d flushes total = %d, want %d", n, total, n*b)
		}

		expected := int(math.Ceil(math.Log(float64(n))/math.Log(r))) + 1
		externals := len(counts) - 1
		if externals < expected-1 || externals > expected+1 {
			t.Fatalf("after %d flushes have %d external partitions, expected about %d",
				n, externals, expected)
		}
	}
}
