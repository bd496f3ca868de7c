package window

import (
	"fmt"
	"math"
)

// Layout describes how buffer columns become examples.
type Layout struct {
	// TimeWindow is the number of consecutive rows in one example's input.
	TimeWindow int
	// Offset is the number of rows after a window used to compute its label.
	Offset int
	// Features are the buffer column indices copied into each window, in order.
	Features []int
	// Prediction is the buffer column index the label is computed from.
	Prediction int
}

// FirstRow returns the buffer row where the first window of a batch of n
// examples ending at top begins.
func (l Layout) FirstRow(top, n int) int {
	return top - n + 1 - l.Offset - l.TimeWindow + 1
}

// Build materializes n examples whose last look-ahead row is top.
//
// Example i reads feature rows [FirstRow+i, FirstRow+i+TimeWindow-1]. With t
// the last of those rows, its label is
//
//	max(prediction[t+1 .. t+Offset]) - prediction[t]
//
// Features are laid out (batch, time, feature).
func Build(buf *Buffer, top, n int, l Layout) (*Batch, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: batch of %d examples", ErrOutOfRange, n)
	}
	tw, nf := l.TimeWindow, len(l.Features)
	start := l.FirstRow(top, n)
	span := tw + n - 1

	b := &Batch{
		Features:    make([]float32, n*tw*nf),
		Labels:      make([]float32, n),
		Size:        n,
		TimeWindow:  tw,
		NumFeatures: nf,
	}

	for f, col := range l.Features {
		rows, err := buf.Slice(col, start, span)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			base := i * tw * nf
			for t := 0; t < tw; t++ {
				b.Features[base+t*nf+f] = float32(rows[i+t])
			}
		}
	}

	// pred[0] is the last feature row of example 0; pred[n+Offset-1] is top.
	pred, err := buf.Slice(l.Prediction, start+tw-1, n+l.Offset)
	if err != nil {
		return nil, err
	}
	ahead := rollingMax(pred[1:], l.Offset)
	for i := range b.Labels {
		b.Labels[i] = float32(ahead[i] - pred[i])
	}
	return b, nil
}

// rollingMax returns the maximum of every length-w window of xs, in order.
// A window holding a NaN has a NaN maximum wherever the NaN sits.
func rollingMax(xs []float64, w int) []float64 {
	if w < 1 || len(xs) < w {
		return nil
	}
	out := make([]float64, 0, len(xs)-w+1)
	// dq holds indices of non-NaN xs with strictly decreasing values.
	dq := make([]int, 0, w)
	lastNaN := -w
	for i, x := range xs {
		if math.IsNaN(x) {
			lastNaN = i
		} else {
			for len(dq) > 0 && xs[dq[len(dq)-1]] <= x {
				dq = dq[:len(dq)-1]
			}
			dq = append(dq, i)
		}
		if len(dq) > 0 && dq[0] <= i-w {
			dq = dq[1:]
		}
		if i < w-1 {
			continue
		}
		if lastNaN > i-w {
			out = append(out, math.NaN())
		} else {
			out = append(out, xs[dq[0]])
		}
	}
	return out
}
