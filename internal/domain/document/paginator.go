// Package document lays out ordered content blocks onto fixed-size pages.
package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidBudget is returned when the page content budget is not positive
var ErrInvalidBudget = errors.New("document: page content budget must be positive")

// Measurer reports the rendered height of a set of blocks placed together in a
// page's content area. Implementations must lay blocks out with the same rules
// as the final render, otherwise page breaks land in the wrong place.
type Measurer[B any] interface {
	ContentHeight(ctx context.Context, blocks []B) (float64, error)
}

// MeasurerFunc adapts a function to Measurer
type MeasurerFunc[B any] func(ctx context.Context, blocks []B) (float64, error)

// ContentHeight implements Measurer
func (f MeasurerFunc[B]) ContentHeight(ctx context.Context, blocks []B) (float64, error) {
	return f(ctx, blocks)
}

// SumMeasurer measures blocks independently and stacks them with a fixed gap
// between consecutive blocks.
type SumMeasurer[B any] struct {
	Height func(B) float64
	Gap    float64
}

// ContentHeight implements Measurer
func (m SumMeasurer[B]) ContentHeight(_ context.Context, blocks []B) (float64, error) {
	var h float64
	for i, b := range blocks {
		if i > 0 {
			h += m.Gap
		}
		h += m.Height(b)
	}
	return h, nil
}

// Chunk is the set of blocks assigned to one physical page
type Chunk[B any] struct {
	Blocks []B
	Height float64
	// Overflow is set when a single block is taller than the page on its own.
	Overflow bool
	// Final marks the last page; trailing content is attached only there.
	Final bool
}

// Paginate splits blocks into page chunks using greedy forward fill with a
// one-block backtrack. A block that overflows a page is moved to a fresh page;
// a block that overflows a fresh page is placed alone and flagged. Blocks are
// never dropped or reordered and every iteration consumes one block.
func Paginate[B any](ctx context.Context, blocks []B, m Measurer[B], budget float64) ([]Chunk[B], error) {
	if budget <= 0 {
		return nil, ErrInvalidBudget
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	var (
		chunks  []Chunk[B]
		current []B
		height  float64
	)
	closeChunk := func(overflow bool) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk[B]{Blocks: current, Height: height, Overflow: overflow})
		current, height = nil, 0
	}

	for i := 0; i < len(blocks); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := append(append(make([]B, 0, len(current)+1), current...), blocks[i])
		h, err := m.ContentHeight(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("measure block %d: %w", i, err)
		}
		if h <= budget {
			current, height = candidate, h
			continue
		}
		if len(current) > 0 {
			// backtrack: close the full page and retry this block on a fresh one
			closeChunk(false)
			i--
			continue
		}
		current, height = candidate, h
		closeChunk(true)
	}
	closeChunk(false)

	chunks[len(chunks)-1].Final = true
	return chunks, nil
}

// Flatten concatenates the blocks of all chunks in order
func Flatten[B any](chunks []Chunk[B]) []B {
	var out []B
	for _, c := range chunks {
		out = append(out, c.Blocks...)
	}
	return out
}
