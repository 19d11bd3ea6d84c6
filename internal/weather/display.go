package weather

import (
	"strings"
	"time"
)

// WMO weather codes grouped by icon.
var icons = []struct {
	codes []int
	icon  string
}{
	{[]int{0}, "☀️"},
	{[]int{1}, "🌤"},
	{[]int{2}, "⛅️"},
	{[]int{3}, "☁️"},
	{[]int{45, 48}, "🌫"},
	{[]int{51, 56, 61, 66, 80}, "🌦"},
	{[]int{53, 55, 63, 65, 57, 67, 81, 82}, "🌧"},
	{[]int{71, 73, 75, 77, 85, 86}, "🌨"},
	{[]int{95}, "🌩"},
	{[]int{96, 99}, "⛈"},
}

// Icon maps a WMO weather code to its display icon. Unknown codes get "NOT FOUND".
func Icon(code int) string {
	for _, group := range icons {
		for _, c := range group.codes {
			if c == code {
				return group.icon
			}
		}
	}
	return "NOT FOUND"
}

// Flag turns a two-letter country code into its regional-indicator emoji.
func Flag(countryCode string) string {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + r - 'A')
	}
	return b.String()
}

// DayLabel returns "Today" for the first entry and the short weekday otherwise.
func DayLabel(date string, isToday bool) string {
	if isToday {
		return "Today"
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.Weekday().String()[:3]
}

// displayName joins a place name with its country flag.
func displayName(name, countryCode string) string {
	flag := Flag(countryCode)
	if flag == "" {
		return name
	}
	return name + " " + flag
}
