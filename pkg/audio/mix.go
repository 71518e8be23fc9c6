package audio

// Mix combines a mic frame and a system frame into a single mono frame by
// sample-wise addition with int16 clamping.
//
// The output length is the smaller of the two input lengths, truncated to an
// even byte count. A nil or empty input yields an empty result; it is never an error.
// Mix allocates exactly once, for the returned slice.
func Mix(mic, sys []byte) []byte {
	return MixInto(nil, mic, sys)
}

// MixInto is like [Mix] but writes into dst, reusing its capacity when large
// enough. The returned slice aliases dst in that case.
func MixInto(dst, mic, sys []byte) []byte {
	n := min(len(mic), len(sys)) &^ 1
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	for i := 0; i < n; i += 2 {
		a := int32(int16(uint16(mic[i]) | uint16(mic[i+1])<<8))
		b := int32(int16(uint16(sys[i]) | uint16(sys[i+1])<<8))
		s := clamp16(a + b)
		dst[i] = byte(s)
		dst[i+1] = byte(s >> 8)
	}
	return dst
}

// clamp16 saturates v to the int16 range.
func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
