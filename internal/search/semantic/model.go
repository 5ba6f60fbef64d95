package semantic

import "math"

// Dim is the fixed embedding dimension every Embedder produces (§4.7:
// "L2-normalised float32 embedding of fixed dimension D=384").
const Dim = 384

// staticTable stands in for a sentence-transformer's forward pass: a
// per-token embedding lookup followed by attention-mask mean pooling,
// the same pooling strategy real sentence-transformer models apply over
// their final hidden states. No ONNX/wazero inference runtime is wired
// into this repo; see DESIGN.md for why.
type staticTable struct {
	rows [][Dim]float32
}

// pool mean-pools the embedding rows for ids at the positions mask marks
// as real tokens (excluding [PAD]), then L2-normalises the result.
func (m *staticTable) pool(ids, mask []int32) []float32 {
	var sum [Dim]float32
	var count float32
	for i, id := range ids {
		if mask[i] == 0 {
			continue
		}
		if int(id) < 0 || int(id) >= len(m.rows) {
			continue
		}
		row := m.rows[id]
		for d := 0; d < Dim; d++ {
			sum[d] += row[d]
		}
		count++
	}
	if count == 0 {
		count = 1
	}
	out := make([]float32, Dim)
	for d := 0; d < Dim; d++ {
		out[d] = sum[d] / count
	}
	return l2Normalize(out)
}

func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
