package vector

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

func col(name string, values ...table.Value) *table.Column {
	return table.NewColumn(name, values)
}

func TestBroadcastLength(t *testing.T) {
	tests := []struct {
		name       string
		args       []Arg
		want       int
		vectorized bool
	}{
		{"no arguments", nil, 1, false},
		{"scalars only", []Arg{Scalar(1), Scalar("x")}, 1, false},
		{"one column", []Arg{Column(col("a", 1, 2, 3)), Scalar("x")}, 3, true},
		{"equal columns", []Arg{Column(col("a", 1, 2)), Column(col("b", 3, 4))}, 2, true},
		{"empty column", []Arg{Column(col("a")), Scalar(1)}, 0, true},
		{"single row column", []Arg{Column(col("a", 1))}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Broadcast(tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Len())
			assert.Equal(t, tt.vectorized, p.Vectorized())
		})
	}
}

func TestBroadcastShapeMismatch(t *testing.T) {
	_, err := Broadcast(Column(col("a", 1, 2)), Column(col("b", 1, 2, 3)))
	require.Error(t, err)
	assert.Equal(t, ferrors.KindShape, ferrors.KindOf(err))

	// a length-1 column is not a scalar
	_, err = Broadcast(Column(col("a", 1)), Column(col("b", 1, 2)))
	assert.True(t, ferrors.Is(err, ferrors.KindShape))
}

func TestTuplesBroadcastScalars(t *testing.T) {
	p, err := Broadcast(Column(col("id", 1, 2, 3)), Scalar("csv"))
	require.NoError(t, err)

	for i := 0; i < p.Len(); i++ {
		tuple := p.Tuple(i)
		assert.Equal(t, int64(i+1), tuple[0])
		assert.Equal(t, "csv", tuple[1])
	}
}

func TestMapPreservesOrder(t *testing.T) {
	values := make([]table.Value, 100)
	for i := range values {
		values[i] = int64(i)
	}
	p, err := Broadcast(Column(col("n", values...)))
	require.NoError(t, err)

	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			out, err := Map(context.Background(), p, workers, func(_ context.Context, i int, tuple []table.Value) (int64, error) {
				return tuple[0].(int64) * 2, nil
			})
			require.NoError(t, err)
			require.Len(t, out, 100)
			for i, v := range out {
				assert.Equal(t, int64(i*2), v)
			}
		})
	}
}

func TestMapReportsLowestIndexError(t *testing.T) {
	p, err := Broadcast(Column(col("n", 0, 1, 2, 3, 4, 5, 6, 7)))
	require.NoError(t, err)

	_, err = Map(context.Background(), p, 1, func(_ context.Context, i int, _ []table.Value) (int, error) {
		if i >= 3 {
			return 0, fmt.Errorf("failed at %d", i)
		}
		return i, nil
	})
	assert.EqualError(t, err, "failed at 3")
}

func TestMapParallelFailure(t *testing.T) {
	p, err := Broadcast(Column(col("n", 0, 1, 2, 3, 4, 5, 6, 7)))
	require.NoError(t, err)

	_, err = Map(context.Background(), p, 4, func(_ context.Context, i int, _ []table.Value) (int, error) {
		if i == 5 {
			return 0, fmt.Errorf("failed at %d", i)
		}
		return i, nil
	})
	assert.EqualError(t, err, "failed at 5")
}

func TestMapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	p, err := Broadcast(Column(col("n", 1, 2, 3)))
	require.NoError(t, err)

	_, err = Map(ctx, p, 1, func(_ context.Context, i int, _ []table.Value) (int, error) {
		calls.Add(1)
		return i, nil
	})
	assert.True(t, ferrors.Is(err, ferrors.KindCancelled))
	assert.Equal(t, int32(0), calls.Load())
}

func TestMapZeroLength(t *testing.T) {
	p, err := Broadcast(Column(col("n")))
	require.NoError(t, err)
	out, err := Map(context.Background(), p, 4, func(_ context.Context, i int, _ []table.Value) (int, error) {
		t.Fatal("fn called for empty plan")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCollect(t *testing.T) {
	p, _ := Broadcast(Scalar(1))
	a := p.Collect("x", []table.Value{int64(7)})
	assert.False(t, a.IsColumn())
	assert.Equal(t, int64(7), a.Value())

	p, _ = Broadcast(Column(col("n", 1, 2)))
	a = p.Collect("x", []table.Value{int64(7), int64(8)})
	require.True(t, a.IsColumn())
	assert.Equal(t, 2, a.Col().Len())
}
