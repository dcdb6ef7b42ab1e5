// ═══════════════════════════════════════════════════════════════════════════════
// GEOMETRIC PARTITIONING
// ═══════════════════════════════════════════════════════════════════════════════
// The flush policy follows Lester, Moffat and Zobel's geometric
// partitioning. Partition capacities form a geometric sequence:
//
//	B_0 = b                      the in-memory head
//	B_k = (r−1) · r^(k−1) · b    on-disk partition k, k ≥ 1
//
// With the defaults (b = 4096, r = 3): 4096, 8192, 24576, 73728, ...
//
// When the head fills, the policy picks the smallest k ≥ 1 whose capacity
// holds everything in partitions 0..k; partitions 0..k−1 then merge into
// partition k and are zeroed. If no existing partition qualifies, a new
// one is created at the end of the hierarchy. The result is that a
// posting is rewritten only O(log N) times over the life of the index.
// ═══════════════════════════════════════════════════════════════════════════════

package leif

// Default geometric partitioning parameters.
const (
	DefaultBufferSize   = 4096
	DefaultGrowthFactor = 3
)

// GrowthStrategy decides which partition absorbs a head flush.
type GrowthStrategy interface {
	// PartitionLimit returns the capacity of partition k.
	PartitionLimit(k int) int

	// SelectPartition returns the index of the merge destination for the
	// given per-partition instance counts. The returned index may equal
	// len(counts), directing the caller to create a new partition.
	SelectPartition(counts []int) int
}

// FixedBufferGrowthStrategy is geometric partitioning with a fixed head
// buffer size b and growth factor r.
type FixedBufferGrowthStrategy struct {
	bufferSize   int
	growthFactor int
}

// NewFixedBufferGrowthStrategy builds the policy. growthFactor must be
// greater than 1 for the capacities to grow.
func NewFixedBufferGrowthStrategy(bufferSize, growthFactor int) *FixedBufferGrowthStrategy {
	return &FixedBufferGrowthStrategy{bufferSize: bufferSize, growthFactor: growthFactor}
}

func (s *FixedBufferGrowthStrategy) PartitionLimit(k int) int {
	if k == 0 {
		return s.bufferSize
	}
	limit := (s.growthFactor - 1) * s.bufferSize
	for i := 1; i < k; i++ {
		limit *= s.growthFactor
	}
	return limit
}

// SelectPartition finds the smallest k ≥ 1 whose capacity holds the
// instances of partitions 0..k together. A partition that has been merged
// upward sits empty in the middle of the hierarchy; it stays a merge
// source but is skipped as a destination, so the data it once held is
// never pulled back down.
func (s *FixedBufferGrowthStrategy) SelectPartition(counts []int) int {
	total := counts[0]
	for k := 1; k < len(counts); k++ {
		total += counts[k]
		if counts[k] == 0 {
			continue
		}
		if total <= s.PartitionLimit(k) {
			return k
		}
	}
	return len(counts)
}
