// Package geo resolves raw scan location strings into coordinates and
// canonical city names, without any external geocoding service.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Riyadh is the fail-open default for anything that cannot be resolved.
const (
	DefaultLatitude  = 24.7136
	DefaultLongitude = 46.6753
	DefaultCity      = "Riyadh"
)

// UnknownDistanceKm is the sentinel returned when two locations differ
// but at least one has no parseable coordinates.
const UnknownDistanceKm = 999999.0

// cityKeyword maps a lowercase substring to its canonical city name.
// Iteration order matters: the first match wins.
type cityKeyword struct {
	keyword string
	city    string
}

var cityKeywords = []cityKeyword{
	{"riyadh", "Riyadh"},
	{"jeddah", "Jeddah"},
	{"dammam", "Dammam"},
	{"makkah", "Makkah"},
	{"madinah", "Madinah"},
	{"taif", "Taif"},
	{"abha", "Abha"},
	{"jazan", "Jazan"},
	{"hail", "Hail"},
	{"tabuk", "Tabuk"},
	{"al baha", "Al Baha"},
	{"baha", "Al Baha"},
}

// Resolve parses a raw location string into coordinates and a canonical
// city name. Empty input and parse failures both resolve to the Riyadh
// defaults; coordinate parsing and city-name resolution are independent.
func Resolve(raw string) (lat, lon float64, city string) {
	lat, lon, ok := ParseCoordinates(raw)
	if !ok {
		lat, lon = DefaultLatitude, DefaultLongitude
	}
	return lat, lon, CityName(raw)
}

// ParseCoordinates parses a "lat,lon" string. Returns ok=false for
// anything that is not exactly two comma-separated numeric tokens.
func ParseCoordinates(raw string) (lat, lon float64, ok bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// CityName resolves a canonical city via case-insensitive substring
// match against the keyword table, first match wins. No match (and
// empty input) resolves to Riyadh.
func CityName(raw string) string {
	lower := strings.ToLower(raw)
	for _, ck := range cityKeywords {
		if strings.Contains(lower, ck.keyword) {
			return ck.city
		}
	}
	return DefaultCity
}

// Distance returns the distance in km between two raw location strings.
// Identical strings are 0. When both parse as coordinates the haversine
// distance is returned; otherwise UnknownDistanceKm.
func Distance(loc1, loc2 string) float64 {
	if loc1 == loc2 {
		return 0
	}

	lat1, lon1, ok1 := ParseCoordinates(loc1)
	lat2, lon2, ok2 := ParseCoordinates(loc2)
	if ok1 && ok2 {
		return Haversine(lat1, lon1, lat2, lon2)
	}

	return UnknownDistanceKm
}

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in km between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
