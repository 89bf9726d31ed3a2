package publish

import "fmt"

// HeaderRow is the spreadsheet row holding the header.
const HeaderRow = 1

// Batch is a contiguous range of data rows written in a single call.
type Batch struct {
	Index    int // 0-based batch number
	Start    int // first data row (0-based, inclusive)
	End      int // last data row (0-based, exclusive)
	FirstRow int // spreadsheet row (1-based) receiving the first data row
}

// Batches partitions n data rows into ceil(n/size) batches of at most
// size rows.  Batch i covers rows [i*size, min((i+1)*size, n)) and starts
// at spreadsheet row HeaderRow+1+i*size.
func Batches(n, size int) []Batch {
	if n <= 0 || size <= 0 {
		return nil
	}
	batches := make([]Batch, 0, (n+size-1)/size)
	for i, start := 0, 0; start < n; i, start = i+1, start+size {
		end := start + size
		if end > n {
			end = n
		}
		batches = append(batches, Batch{
			Index:    i,
			Start:    start,
			End:      end,
			FirstRow: HeaderRow + 1 + start,
		})
	}
	return batches
}

// Cell returns the address of the batch's top-left cell.
func (b Batch) Cell() string {
	return fmt.Sprintf("A%d", b.FirstRow)
}

// Description returns a string describing the batch for log messages.
func (b Batch) Description() string {
	return fmt.Sprintf("batch <%d rows %d-%d at %v>", b.Index, b.Start, b.End-1, b.Cell())
}
