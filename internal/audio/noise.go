package audio

import "math"

// fractalNoise sums four octaves of value noise into [-1,1].
func fractalNoise(x, y float64) float64 {
	amp := 0.5
	freq := 1.0
	total := 0.0
	sumAmp := 0.0

	for i := 0; i < 4; i++ {
		total += valueNoise(x*freq, y*freq) * amp
		sumAmp += amp
		amp *= 0.5
		freq *= 2.0
	}
	return (total/sumAmp)*2.0 - 1.0
}

func valueNoise(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)

	sx := smoothstep(x - x0)
	sy := smoothstep(y - y0)

	top := mix(hash2(x0, y0), hash2(x0+1, y0), sx)
	bottom := mix(hash2(x0, y0+1), hash2(x0+1, y0+1), sx)
	return mix(top, bottom, sy)
}

func hash2(x, y float64) float64 {
	v := math.Sin(x*127.1+y*311.7) * 43758.5453123
	return v - math.Floor(v)
}

func smoothstep(v float64) float64 {
	return v * v * (3 - 2*v)
}

func mix(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
