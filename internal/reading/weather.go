package reading

// Weather is a coarse interpretation of a pressure value.
type Weather int

const (
	// WeatherStable is the 1000-1020 hPa band.
	WeatherStable Weather = iota
	// WeatherClear is high pressure (> 1020 hPa).
	WeatherClear
	// WeatherRain is low pressure (< 1000 hPa).
	WeatherRain
)

// Thresholds in hPa.
const (
	HighPressure = 1020.0
	LowPressure  = 1000.0
)

// Interpret maps a pressure value in hPa to a weather band.
func Interpret(hPa float64) Weather {
	switch {
	case hPa > HighPressure:
		return WeatherClear
	case hPa < LowPressure:
		return WeatherRain
	default:
		return WeatherStable
	}
}

// String returns a human-readable representation of the weather band.
func (w Weather) String() string {
	switch w {
	case WeatherClear:
		return "clear (high pressure)"
	case WeatherRain:
		return "rain/storm (low pressure)"
	default:
		return "cloudy/stable"
	}
}
