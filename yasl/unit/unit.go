// Package unit implements the physical-quantity system: parsing unit-bearing
// literals such as "10 m" or "5 km/h" into a magnitude plus dimension vector,
// converting them to base units, and comparing them across units.
package unit

// Dimension is a vector of exponents over the base dimensions, in order:
// length, mass, time, electric current, temperature, amount of substance,
// luminous intensity, and information.
type Dimension [8]int8

func dim(length, mass, time, current, temp, amount, lum, info int8) Dimension {
	return Dimension{length, mass, time, current, temp, amount, lum, info}
}

// Named dimensions usable as property types in a schema.
var dimensions = map[string]Dimension{
	"length":       dim(1, 0, 0, 0, 0, 0, 0, 0),
	"mass":         dim(0, 1, 0, 0, 0, 0, 0, 0),
	"duration":     dim(0, 0, 1, 0, 0, 0, 0, 0),
	"current":      dim(0, 0, 0, 1, 0, 0, 0, 0),
	"temperature":  dim(0, 0, 0, 0, 1, 0, 0, 0),
	"area":         dim(2, 0, 0, 0, 0, 0, 0, 0),
	"volume":       dim(3, 0, 0, 0, 0, 0, 0, 0),
	"speed":        dim(1, 0, -1, 0, 0, 0, 0, 0),
	"acceleration": dim(1, 0, -2, 0, 0, 0, 0, 0),
	"frequency":    dim(0, 0, -1, 0, 0, 0, 0, 0),
	"force":        dim(1, 1, -2, 0, 0, 0, 0, 0),
	"energy":       dim(2, 1, -2, 0, 0, 0, 0, 0),
	"power":        dim(2, 1, -3, 0, 0, 0, 0, 0),
	"pressure":     dim(-1, 1, -2, 0, 0, 0, 0, 0),
	"datasize":     dim(0, 0, 0, 0, 0, 0, 0, 1),
}

// dimensionNames maps a vector back to its canonical name for messages.
var dimensionNames = func() map[Dimension]string {
	m := make(map[Dimension]string, len(dimensions))
	for name, v := range dimensions {
		m[v] = name
	}
	return m
}()

// KnownDimension reports whether name is a recognized physical dimension.
func KnownDimension(name string) bool {
	_, ok := dimensions[name]
	return ok
}

// DimensionByName returns the dimension vector for a named dimension.
func DimensionByName(name string) (Dimension, bool) {
	v, ok := dimensions[name]
	return v, ok
}

// Name returns the canonical dimension name for d, or "" if d has no name.
func (d Dimension) Name() string { return dimensionNames[d] }

type unitDef struct {
	dim    string
	factor float64 // multiplier to the dimension's base unit
	offset float64 // additive shift after scaling (temperatures)
}

// units maps a unit token to its dimension and conversion to base units.
// Base units: m, kg, s, A, K, m2, m3, m/s, m/s2, Hz, N, J, W, Pa, B.
var units = map[string]unitDef{
	// length, base m
	"mm": {"length", 0.001, 0},
	"cm": {"length", 0.01, 0},
	"m":  {"length", 1, 0},
	"km": {"length", 1000, 0},
	"in": {"length", 0.0254, 0},
	"ft": {"length", 0.3048, 0},
	"yd": {"length", 0.9144, 0},
	"mi": {"length", 1609.344, 0},

	// mass, base kg
	"mg": {"mass", 1e-6, 0},
	"g":  {"mass", 1e-3, 0},
	"kg": {"mass", 1, 0},
	"t":  {"mass", 1000, 0},
	"oz": {"mass", 0.028349523125, 0},
	"lb": {"mass", 0.45359237, 0},

	// duration, base s
	"ms":  {"duration", 0.001, 0},
	"s":   {"duration", 1, 0},
	"min": {"duration", 60, 0},
	"h":   {"duration", 3600, 0},
	"d":   {"duration", 86400, 0},

	// current, base A
	"mA": {"current", 0.001, 0},
	"A":  {"current", 1, 0},

	// temperature, base K
	"K": {"temperature", 1, 0},
	"C": {"temperature", 1, 273.15},
	"F": {"temperature", 5.0 / 9.0, 255.3722222222222},

	// area, base m2
	"mm2":  {"area", 1e-6, 0},
	"cm2":  {"area", 1e-4, 0},
	"m2":   {"area", 1, 0},
	"km2":  {"area", 1e6, 0},
	"ha":   {"area", 1e4, 0},
	"acre": {"area", 4046.8564224, 0},

	// volume, base m3
	"ml":  {"volume", 1e-6, 0},
	"l":   {"volume", 1e-3, 0},
	"m3":  {"volume", 1, 0},
	"gal": {"volume", 0.003785411784, 0},

	// speed, base m/s
	"m/s":  {"speed", 1, 0},
	"km/h": {"speed", 1000.0 / 3600.0, 0},
	"mph":  {"speed", 0.44704, 0},
	"ft/s": {"speed", 0.3048, 0},
	"kn":   {"speed", 0.5144444444444445, 0},

	// acceleration, base m/s2
	"m/s2":  {"acceleration", 1, 0},
	"ft/s2": {"acceleration", 0.3048, 0},

	// frequency, base Hz
	"Hz":  {"frequency", 1, 0},
	"kHz": {"frequency", 1e3, 0},
	"MHz": {"frequency", 1e6, 0},
	"GHz": {"frequency", 1e9, 0},

	// force, base N
	"N":   {"force", 1, 0},
	"kN":  {"force", 1e3, 0},
	"lbf": {"force", 4.4482216152605, 0},

	// energy, base J
	"J":   {"energy", 1, 0},
	"kJ":  {"energy", 1e3, 0},
	"MJ":  {"energy", 1e6, 0},
	"Wh":  {"energy", 3600, 0},
	"kWh": {"energy", 3.6e6, 0},
	"cal": {"energy", 4.184, 0},

	// power, base W
	"W":  {"power", 1, 0},
	"kW": {"power", 1e3, 0},
	"MW": {"power", 1e6, 0},
	"hp": {"power", 745.699872, 0},

	// pressure, base Pa
	"Pa":  {"pressure", 1, 0},
	"kPa": {"pressure", 1e3, 0},
	"MPa": {"pressure", 1e6, 0},
	"bar": {"pressure", 1e5, 0},
	"atm": {"pressure", 101325, 0},
	"psi": {"pressure", 6894.757293168, 0},

	// datasize, base B
	"bit": {"datasize", 0.125, 0},
	"B":   {"datasize", 1, 0},
	"KB":  {"datasize", 1e3, 0},
	"MB":  {"datasize", 1e6, 0},
	"GB":  {"datasize", 1e9, 0},
	"TB":  {"datasize", 1e12, 0},
	"KiB": {"datasize", 1024, 0},
	"MiB": {"datasize", 1 << 20, 0},
	"GiB": {"datasize", 1 << 30, 0},
	"TiB": {"datasize", 1 << 40, 0},
}

// KnownUnit reports whether token is a recognized unit.
func KnownUnit(token string) bool {
	_, ok := units[token]
	return ok
}
