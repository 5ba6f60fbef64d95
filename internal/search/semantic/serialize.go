package semantic

import (
	"encoding/binary"
	"math"
)

// serializeVector packs a Dim-length float32 vector into the
// little-endian byte layout sqlite-vec's vec0 float[Dim] columns expect.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
