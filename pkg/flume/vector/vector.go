// Package vector implements implicit vectorization: a statement whose
// scalar arguments are supplied columns runs once per row, with all column
// arguments advanced in lockstep and scalars broadcast to every row.
package vector

import (
	"context"
	"fmt"
	"sync"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Arg is a resolved argument: either a scalar or a column of values.
type Arg struct {
	scalar table.Value
	column *table.Column
}

// Scalar wraps a single value.
func Scalar(v table.Value) Arg { return Arg{scalar: v} }

// Column wraps a column of values.
func Column(c *table.Column) Arg { return Arg{column: c} }

// IsColumn reports whether the argument is vectorized.
func (a Arg) IsColumn() bool { return a.column != nil }

// Value returns the scalar value. It is nil for columns.
func (a Arg) Value() table.Value { return a.scalar }

// Col returns the column, or nil for scalars.
func (a Arg) Col() *table.Column { return a.column }

// At returns the value the argument contributes to row i.
func (a Arg) At(i int) table.Value {
	if a.column != nil {
		return a.column.At(i)
	}
	return a.scalar
}

func (a Arg) String() string {
	if a.column != nil {
		return fmt.Sprintf("column %s[%d]", a.column.Name(), a.column.Len())
	}
	return table.Format(a.scalar)
}

// Plan is the result of broadcasting a set of arguments.
type Plan struct {
	args       []Arg
	n          int
	vectorized bool
}

// Broadcast computes the broadcast length of args. With no column arguments
// the length is 1. Otherwise every column must have the same length, which
// becomes the broadcast length; a length-1 column does not stretch.
func Broadcast(args ...Arg) (*Plan, error) {
	p := &Plan{args: args, n: 1}
	var lengths []int
	for _, a := range args {
		if !a.IsColumn() {
			continue
		}
		n := a.column.Len()
		if !p.vectorized {
			p.vectorized = true
			p.n = n
		} else if n != p.n {
			lengths = append(lengths, n)
		}
	}
	if len(lengths) > 0 {
		all := []int{p.n}
		all = append(all, lengths...)
		return nil, ferrors.New("SHAPE-0001", map[string]any{"Lengths": fmt.Sprint(all)})
	}
	return p, nil
}

// Len is the number of tuples the plan produces.
func (p *Plan) Len() int { return p.n }

// Vectorized reports whether any argument was a column.
func (p *Plan) Vectorized() bool { return p.vectorized }

// Width is the number of argument positions.
func (p *Plan) Width() int { return len(p.args) }

// Tuple returns the concrete scalar for every argument position at index i.
func (p *Plan) Tuple(i int) []table.Value {
	tuple := make([]table.Value, len(p.args))
	for j, a := range p.args {
		tuple[j] = a.At(i)
	}
	return tuple
}

// Collect assembles per-index results into a column when the plan is
// vectorized, or returns the single result as a scalar.
func (p *Plan) Collect(name string, results []table.Value) Arg {
	if !p.vectorized {
		if len(results) == 0 {
			return Scalar(nil)
		}
		return Scalar(results[0])
	}
	return Column(table.NewColumn(name, results))
}

// Map invokes fn once per tuple of the plan and returns the results in index
// order. With workers > 1 invocations run concurrently; each result slot has
// exactly one writer. When several invocations fail, the error of the lowest
// index is returned.
func Map[T any](ctx context.Context, p *Plan, workers int, fn func(ctx context.Context, i int, tuple []table.Value) (T, error)) ([]T, error) {
	return MapN(ctx, p.n, workers, func(ctx context.Context, i int) (T, error) {
		return fn(ctx, i, p.Tuple(i))
	})
}

// MapN invokes fn for every index in [0, n) and returns the results in index
// order. The context is checked before every invocation.
func MapN[T any](ctx context.Context, n, workers int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)
	if n == 0 {
		return results, nil
	}

	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err)
			}
			r, err := fn(ctx, i)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, n)
	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				if err := ctx.Err(); err != nil {
					errs[i] = cancelled(err)
					continue
				}
				r, err := fn(ctx, i)
				if err != nil {
					errs[i] = err
					cancel()
					continue
				}
				results[i] = r
			}
		}()
	}

	fed := 0
feed:
	for i := 0; i < n; i++ {
		select {
		case next <- i:
			fed++
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	// A real failure at a low index outranks the cancellations it caused
	// at higher ones.
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !ferrors.Is(err, ferrors.KindCancelled) {
			return nil, err
		}
	}
	if first != nil {
		return nil, first
	}
	if fed < n {
		// parent cancellation stopped the feed early
		return nil, cancelled(ctx.Err())
	}
	return results, nil
}

func cancelled(err error) error {
	return ferrors.Wrap("CANCEL-0001", err, nil)
}
