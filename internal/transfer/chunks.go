package transfer

// ChunkCount returns ceil(fileSize / chunkSize), or 0 when chunkSize is zero.
func ChunkCount(fileSize, chunkSize uint64) uint64 {
	if chunkSize == 0 {
		return 0
	}
	n := fileSize / chunkSize
	if fileSize%chunkSize != 0 {
		n++
	}
	return n
}

// ChunkLen returns the length of chunk index: chunkSize for every chunk but
// the last, the remainder for the last, and 0 for indices past the end.
func ChunkLen(index, fileSize, chunkSize uint64) uint64 {
	if index >= ChunkCount(fileSize, chunkSize) {
		return 0
	}
	offset := index * chunkSize
	if remaining := fileSize - offset; remaining < chunkSize {
		return remaining
	}
	return chunkSize
}

// ChunkRange is the half-open index range [Start, End).
type ChunkRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of indices in the range.
func (r ChunkRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Partition splits [0, chunkCount) into workers contiguous, disjoint ranges.
// Each range holds chunkCount/workers indices and the first
// chunkCount%workers ranges hold one more, so sizes differ by at most one.
// Ranges may be empty when there are more workers than chunks.
func Partition(chunkCount uint64, workers int) []ChunkRange {
	if workers < 1 {
		workers = 1
	}
	n := uint64(workers)
	per := chunkCount / n
	extra := chunkCount % n

	parts := make([]ChunkRange, workers)
	var start uint64
	for i := uint64(0); i < n; i++ {
		size := per
		if i < extra {
			size++
		}
		parts[i] = ChunkRange{Start: start, End: start + size}
		start += size
	}
	return parts
}
