package x11

import (
	"math"

	"slate/internal/xi"
)

// transform is the affine mapping from a raw valuator value to engineering
// units: (value + bias) * scale.
type transform struct {
	bias  float64
	scale float64
}

func (t transform) apply(v float64) float64 {
	return (v + t.bias) * t.scale
}

func (t transform) applyFixed(v xi.Fp3232) float64 {
	return t.apply(v.Float64())
}

// axisInfo binds a valuator slot to its transform.
type axisInfo struct {
	// index is the valuator's slot in motion-event value arrays.
	index     uint16
	transform transform
}

// pressureTransform normalizes [min, max] to [0, 1].
func pressureTransform(min, max float64) transform {
	return transform{bias: -min, scale: 1 / (max - min)}
}

// tiltTransform converts degrees to radians; tilt axes report degrees on
// every server observed.
func tiltTransform() transform {
	return transform{bias: 0, scale: math.Pi / 180}
}

// ringTransform normalizes [min, max] to [0, 2π), clockwise from logical
// north.
func ringTransform(min, max float64) transform {
	return transform{bias: -min, scale: 2 * math.Pi / (max - min)}
}
