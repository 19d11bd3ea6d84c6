package weather

// Status tags the variant held by a State.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusLoaded  Status = "loaded"
)

// State is the reconciled view state of one widget. Only the Orchestrator
// produces new values; consumers receive copies.
type State struct {
	Status   Status
	Error    string
	Location *ResolvedLocation
	Forecast *ForecastSeries

	// Locating is true while the device position step is pending. It is
	// independent of Status, which tracks the forecast.
	Locating bool

	Query      string
	Generation uint64
}

func idleState(query string, gen uint64) State {
	return State{Status: StatusIdle, Query: query, Generation: gen}
}

func loadingState(query string, gen uint64) State {
	return State{Status: StatusLoading, Query: query, Generation: gen}
}

func errorState(query string, gen uint64, err error) State {
	return State{Status: StatusError, Error: err.Error(), Query: query, Generation: gen}
}

func loadedState(query string, gen uint64, loc ResolvedLocation, forecast ForecastSeries) State {
	return State{
		Status:     StatusLoaded,
		Location:   &loc,
		Forecast:   &forecast,
		Query:      query,
		Generation: gen,
	}
}

// View is the JSON projection of a State handed to the browser.
type View struct {
	Status     Status        `json:"status"`
	Query      string        `json:"query"`
	Error      string        `json:"error,omitempty"`
	Location   *LocationView `json:"location,omitempty"`
	Days       []DayView     `json:"days,omitempty"`
	Locating   bool          `json:"locating"`
	Generation uint64        `json:"generation"`
}

// LocationView adds the rendered flag to a ResolvedLocation.
type LocationView struct {
	ResolvedLocation
	Flag string `json:"flag"`
}

// View renders the state for display.
func (s State) View() View {
	v := View{
		Status:     s.Status,
		Query:      s.Query,
		Error:      s.Error,
		Locating:   s.Locating,
		Generation: s.Generation,
	}
	if s.Status == StatusLoaded && s.Location != nil && s.Forecast != nil {
		v.Location = &LocationView{ResolvedLocation: *s.Location, Flag: Flag(s.Location.CountryCode)}
		v.Days = Days(*s.Forecast)
	}
	return v
}
