package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartCountFor(t *testing.T) {
	tests := []struct {
		name string
		size int64
		tier Tier
		want int
	}{
		{"basic tier is always one part", 10 * standardPartSize, TierBasic, 1},
		{"empty file", 0, TierStandard, 1},
		{"smaller than one part", standardPartSize - 1, TierStandard, 1},
		{"exact multiple", 3 * standardPartSize, TierStandard, 3},
		{"one byte over", 3*standardPartSize + 1, TierStandard, 4},
		{"privileged uses larger parts", 2 * privilegedPartSize, TierPrivileged, 2},
		{"privileged remainder", 2*privilegedPartSize + 5, TierPrivileged, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartCountFor(tt.size, tt.tier))
		})
	}
}

func TestPartCountFor_MatchesCeil(t *testing.T) {
	partSize := PartSizeForTier(TierStandard)
	for _, size := range []int64{1, partSize - 1, partSize, partSize + 1, 7*partSize - 3, 7 * partSize} {
		want := int((size + partSize - 1) / partSize)
		assert.Equal(t, want, PartCountFor(size, TierStandard), "size %d", size)
	}
}

func TestPartRange(t *testing.T) {
	// 30MB file, 10MB parts: three full parts
	fileSize := int64(30_000_000)
	partSize := int64(10_000_000)
	count := 3

	for i := 0; i < count; i++ {
		offset, length := PartRange(fileSize, partSize, i, count)
		assert.Equal(t, int64(i)*partSize, offset)
		assert.Equal(t, partSize, length)
	}
}

func TestPartRange_LastPartRemainder(t *testing.T) {
	fileSize := int64(25_000_000)
	partSize := int64(10_000_000)

	offset, length := PartRange(fileSize, partSize, 2, 3)
	assert.Equal(t, int64(20_000_000), offset)
	assert.Equal(t, int64(5_000_000), length)
}

func TestPartRange_ExactMultipleIsNeverZero(t *testing.T) {
	// 20MB file with 10MB parts: the last part is a full part, not zero
	fileSize := int64(20_000_000)
	partSize := int64(10_000_000)

	offset, length := PartRange(fileSize, partSize, 1, 2)
	assert.Equal(t, int64(10_000_000), offset)
	assert.Equal(t, partSize, length)
}

func TestPartSizeForTier(t *testing.T) {
	assert.Equal(t, int64(0), PartSizeForTier(TierBasic))
	assert.Equal(t, standardPartSize, PartSizeForTier(TierStandard))
	assert.Equal(t, privilegedPartSize, PartSizeForTier(TierPrivileged))
	assert.Greater(t, privilegedPartSize, standardPartSize)
}
