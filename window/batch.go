package window

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch stores one batch of examples in flat contiguous buffers.
type Batch struct {
	// Features has Size*TimeWindow*NumFeatures values in (batch, time,
	// feature) order.
	Features []float32
	// Labels has one value per example.
	Labels []float32

	Size        int
	TimeWindow  int
	NumFeatures int

	// FirstRow is the dataset row where the first example's window begins.
	FirstRow int64
	// Epoch counts how many times the stream wrapped before this batch.
	Epoch int
	// EndOfEpoch is set on the last batch of an epoch.
	EndOfEpoch bool
}

// Feature returns the value of feature f at time step t of example i.
func (b *Batch) Feature(i, t, f int) float32 {
	return b.Features[(i*b.TimeWindow+t)*b.NumFeatures+f]
}

// Window returns example i's input as a flat TimeWindow*NumFeatures view.
func (b *Batch) Window(i int) []float32 {
	step := b.TimeWindow * b.NumFeatures
	return b.Features[i*step : (i+1)*step : (i+1)*step]
}

// ToGomlxTensors converts the batch to gomlx tensors shaped
// [Size, TimeWindow, NumFeatures] and [Size].
func (b *Batch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.Size == 0 || b.TimeWindow == 0 || b.NumFeatures == 0 {
		empty := make([][][]float32, 0)
		return tensors.FromAnyValue(empty), tensors.FromAnyValue([]float32{}), nil
	}
	// Reshape flat buffer into 3D slice
	data := make([][][]float32, b.Size)
	idx := 0
	for i := 0; i < b.Size; i++ {
		data[i] = make([][]float32, b.TimeWindow)
		for j := 0; j < b.TimeWindow; j++ {
			data[i][j] = b.Features[idx : idx+b.NumFeatures]
			idx += b.NumFeatures
		}
	}
	labels := make([]float32, len(b.Labels))
	copy(labels, b.Labels)
	return tensors.FromAnyValue(data), tensors.FromAnyValue(labels), nil
}
