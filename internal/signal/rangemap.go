// Package signal holds the sample window types and the pure transforms applied
// to them before inference.
package signal

// MapRange linearly maps value from [inMin, inMax] to [outMin, outMax].
// Results are not clamped. inMin must differ from inMax.
func MapRange(value, inMin, inMax, outMin, outMax float64) float64 {
	return outMin + (value-inMin)*(outMax-outMin)/(inMax-inMin)
}
