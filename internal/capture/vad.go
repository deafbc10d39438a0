package capture

import (
	"encoding/binary"
	"math"
)

// rmsLevel computes the normalized (0..1) RMS energy of a PCM16LE buffer.
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}
