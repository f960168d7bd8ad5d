package onnx

import (
	"fmt"
	"math"
)

// pool reduces model output to one unit vector. A [1, dims] output is
// already pooled; a [1, seq, dims] output is mean-pooled over the attended
// positions.
func pool(data []float32, shape []int64, attention []int64, dims int) ([]float32, error) {
	out := make([]float32, dims)

	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output has %d values, want %d", len(data), dims)
		}
		copy(out, data[:dims])
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if shape[2] != int64(dims) {
			return nil, fmt.Errorf("hidden size %d, want %d", shape[2], dims)
		}
		seq := int(shape[1])
		if len(data) < seq*dims || len(attention) < seq {
			return nil, fmt.Errorf("output shape %v does not match %d values", shape, len(data))
		}
		var attended float32
		for i := 0; i < seq; i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			row := data[i*dims : (i+1)*dims]
			for j, v := range row {
				out[j] += v
			}
		}
		if attended > 0 {
			for j := range out {
				out[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	return normalize(out), nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
