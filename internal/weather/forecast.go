package weather

import "github.com/a-kowalenko/classy-weather/internal/common"

// Days projects a series into rendered day entries. Entries beyond the
// shortest sequence are dropped.
func Days(f ForecastSeries) []DayView {
	n := len(f.Dates)
	for _, l := range []int{len(f.MinTemps), len(f.MaxTemps), len(f.Codes)} {
		if l < n {
			n = l
		}
	}

	days := make([]DayView, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, DayView{
			Date:  f.Dates[i],
			Label: DayLabel(f.Dates[i], i == 0),
			Icon:  Icon(f.Codes[i]),
			Min:   common.Round(f.MinTemps[i]),
			Max:   common.Round(f.MaxTemps[i]),
		})
	}
	return days
}
