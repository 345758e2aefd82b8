// Package audio implements the outbound microphone capture pipeline and the
// strictly sequential inbound playback pipeline, plus the PCM16 conversions
// shared by both.
package audio

// Sample rates negotiated with the session endpoint.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
)

// FloatToPCM16 converts normalized samples to little-endian signed 16-bit PCM.
// Samples are clipped to [-1, 1]; negative values scale by 32768 and
// non-negative by 32767 so the full signed range is covered exactly.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// PCM16ToFloat converts little-endian signed 16-bit PCM back to normalized
// samples by dividing by 32768. A trailing odd byte is ignored.
func PCM16ToFloat(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}
