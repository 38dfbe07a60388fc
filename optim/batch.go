package optim

// Batch is a contiguous row range [Start, End) of the working dataset.
type Batch struct {
	Index int
	Start int
	End   int
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int { return b.End - b.Start }

// Batches partitions rows into contiguous batches of batchSize rows; the
// last batch holds the remainder. It returns nil for non-positive inputs.
//
//	Batches(10, 3) // sizes 3, 3, 3, 1
func Batches(rows, batchSize int) []Batch {
	if rows <= 0 || batchSize <= 0 {
		return nil
	}
	out := make([]Batch, 0, (rows+batchSize-1)/batchSize)
	for start := 0; start < rows; start += batchSize {
		end := min(start+batchSize, rows)
		out = append(out, Batch{Index: len(out), Start: start, End: end})
	}
	return out
}
