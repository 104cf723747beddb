package upload

// Tier is the caller's upload capability, resolved upstream from feature
// flags. It selects the multipart part size, or disables multipart entirely.
type Tier int

const (
	// TierBasic may not use multipart uploads; files go up in one shot.
	TierBasic Tier = iota
	// TierStandard is the default multipart tier.
	TierStandard
	// TierPrivileged gets larger parts to keep part counts low on big files.
	TierPrivileged
)

const (
	standardPartSize   = int64(16 * 1024 * 1024)
	privilegedPartSize = int64(64 * 1024 * 1024)
)

// PartSizeForTier returns the fixed part size for a multipart-capable tier.
// TierBasic has no part size; it returns 0.
func PartSizeForTier(tier Tier) int64 {
	switch tier {
	case TierPrivileged:
		return privilegedPartSize
	case TierStandard:
		return standardPartSize
	default:
		return 0
	}
}

// PartCountFor returns the number of parts for a file of the given size.
// Tiers without multipart capability always get a single part. A file whose
// size is an exact multiple of the part size gets size/partSize full parts,
// never a trailing zero-length part.
func PartCountFor(size int64, tier Tier) int {
	partSize := PartSizeForTier(tier)
	if partSize <= 0 {
		return 1
	}
	count := int(divideAndCeil(size, partSize))
	if count < 1 {
		count = 1
	}
	return count
}

// PartRange returns the byte offset and length of part index (0-based) out
// of count parts. All parts span exactly partSize bytes except the last,
// which spans the remainder; when fileSize is an exact multiple of partSize
// the last part is a full partSize, not zero.
func PartRange(fileSize, partSize int64, index, count int) (offset, length int64) {
	offset = int64(index) * partSize
	if index < count-1 {
		return offset, partSize
	}
	length = fileSize - offset
	if length > partSize {
		length = partSize
	}
	return offset, length
}

func divideAndCeil(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	quotient := numerator / denominator
	if numerator%denominator != 0 {
		quotient++
	}
	return quotient
}
