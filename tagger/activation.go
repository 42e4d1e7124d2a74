package tagger

import "math"

// Sigmoid squashes a logit into [0, 1], clamping extreme inputs to keep the
// exponential finite.
func Sigmoid(x float32) float32 {
	if x > 50 {
		x = 50
	} else if x < -50 {
		x = -50
	}
	return 1 / (1 + float32(math.Exp(float64(-x))))
}

func sigmoidAll(scores []float32) {
	for i, v := range scores {
		scores[i] = Sigmoid(v)
	}
}
