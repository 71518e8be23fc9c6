package audio

// Level returns the peak amplitude of a PCM frame in the range [0, 1], used to
// drive VU meters. An empty or silent frame yields 0. A trailing odd byte is
// ignored.
func Level(pcm []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return 0
	}
	return min(float64(peak)/32767, 1)
}
