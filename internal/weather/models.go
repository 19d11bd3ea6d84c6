package weather

import "strings"

// Coordinates is a bare latitude/longitude pair, as reported by the browser.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ResolvedLocation is the outcome of resolving a query or a device position.
// Values are never mutated; a newer resolution replaces the old one.
type ResolvedLocation struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	DisplayName string  `json:"displayName"`
	CountryCode string  `json:"countryCode"`
}

// NewSearchLocation builds the location of a geocoding match. The display
// name is the place name followed by its country flag.
func NewSearchLocation(name string, lat, lng float64, timezone, countryCode string) ResolvedLocation {
	code := strings.ToUpper(countryCode)
	return ResolvedLocation{
		Latitude:    lat,
		Longitude:   lng,
		Timezone:    timezone,
		DisplayName: displayName(name, code),
		CountryCode: code,
	}
}

// ForecastSeries holds parallel daily sequences. Index i refers to the same
// day in every slice and index 0 is today.
type ForecastSeries struct {
	Dates    []string  `json:"dates"`
	MinTemps []float64 `json:"minTemps"`
	MaxTemps []float64 `json:"maxTemps"`
	Codes    []int     `json:"weatherCodes"`
}

// Len returns the number of days in the series.
func (f ForecastSeries) Len() int {
	return len(f.Dates)
}

// Valid reports whether the series is non-empty and all sequences line up.
func (f ForecastSeries) Valid() bool {
	n := len(f.Dates)
	return n > 0 && len(f.MinTemps) == n && len(f.MaxTemps) == n && len(f.Codes) == n
}

// DayView is a single rendered forecast entry.
type DayView struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}
