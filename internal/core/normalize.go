package core

// Normalize maps the brightness range of a Mono32F image linearly onto
// [min, max] in place. A flat image is set to min.
func Normalize(img *Image, min, max float32) {
	lo, hi := img.MinMax()
	samples := img.Float32s()
	if hi == lo {
		for i := range samples {
			samples[i] = min
		}
		return
	}
	scale := (max - min) / (hi - lo)
	for i, v := range samples {
		samples[i] = min + (v-lo)*scale
	}
}
