package transfer

import (
	"fmt"
	"slices"
)

const (
	// MaxUploadParts is the largest part_number the server accepts.
	MaxUploadParts = 10000

	// maxPlanParts bounds plan allocation for tiny part sizes.
	maxPlanParts = 1 << 20

	partAlign = 1 << 20
)

// Range is the half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in r.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// PartDescriptor is one part of a plan. UploadURL is empty until the
// server hands one out.
type PartDescriptor struct {
	PartNumber int
	Range      Range
	UploadURL  string
}

// Plan tiles [0, TotalSize) with consecutive parts numbered from 1. Every
// part but the last is PartSize bytes long. A zero-length plan has a single
// empty part. Plans are immutable.
type Plan struct {
	totalSize int64
	partSize  int64
	parts     []PartDescriptor
}

// NewPlan splits size bytes into parts of partSize bytes.
func NewPlan(size, partSize int64) (*Plan, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidPlan, size)
	}

	if partSize <= 0 {
		return nil, fmt.Errorf("%w: part size must be positive, got %d", ErrInvalidPlan, partSize)
	}

	count := size / partSize
	if size%partSize != 0 || size == 0 {
		count++
	}

	if count > maxPlanParts {
		return nil, fmt.Errorf("%w: %d bytes in %d-byte parts needs %d parts", ErrInvalidPlan, size, partSize, count)
	}

	parts := make([]PartDescriptor, count)
	for i := range parts {
		start := int64(i) * partSize
		parts[i] = PartDescriptor{
			PartNumber: i + 1,
			Range:      Range{Start: start, End: min(start+partSize, size)},
		}
	}

	return &Plan{totalSize: size, partSize: partSize, parts: parts}, nil
}

// UploadPartSize returns preferred, grown to a whole number of MiB when the
// file would otherwise need more than MaxUploadParts parts.
func UploadPartSize(size, preferred int64) int64 {
	if preferred <= 0 || size <= preferred*MaxUploadParts {
		return preferred
	}

	need := (size + MaxUploadParts - 1) / MaxUploadParts

	return (need + partAlign - 1) / partAlign * partAlign
}

// TotalSize returns the planned byte count.
func (p *Plan) TotalSize() int64 { return p.totalSize }

// PartSize returns the nominal part size.
func (p *Plan) PartSize() int64 { return p.partSize }

// Len returns the number of parts.
func (p *Plan) Len() int { return len(p.parts) }

// Parts returns a copy of the parts in ascending order.
func (p *Plan) Parts() []PartDescriptor {
	return slices.Clone(p.parts)
}

// Part returns part n (1-based).
func (p *Plan) Part(n int) (PartDescriptor, bool) {
	if n < 1 || n > len(p.parts) {
		return PartDescriptor{}, false
	}

	return p.parts[n-1], true
}

// Ranges returns the byte range of every part.
func (p *Plan) Ranges() []Range {
	out := make([]Range, len(p.parts))
	for i, part := range p.parts {
		out[i] = part.Range
	}

	return out
}

// partNumbers returns 1..Len().
func (p *Plan) partNumbers() []int {
	out := make([]int, len(p.parts))
	for i := range p.parts {
		out[i] = i + 1
	}

	return out
}
