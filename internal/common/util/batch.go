package util

// Batch splits elements into consecutive chunks of at most batchSize elements, preserving order.
// A batchSize < 1 puts everything in a single batch.
func Batch[T any](elements []T, batchSize int) [][]T {
	if batchSize < 1 {
		batchSize = len(elements)
	}
	batches := make([][]T, 0)
	for start := 0; start < len(elements); start += batchSize {
		end := start + batchSize
		if end > len(elements) {
			end = len(elements)
		}
		batches = append(batches, elements[start:end])
	}
	return batches
}
