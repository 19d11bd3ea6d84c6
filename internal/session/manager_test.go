package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/store"
	"github.com/a-kowalenko/classy-weather/internal/weather"
)

type stubGeo struct{ calls atomic.Int32 }

func (g *stubGeo) Resolve(context.Context, string) (weather.ResolvedLocation, error) {
	g.calls.Add(1)
	return weather.NewSearchLocation("Berlin", 52.52, 13.405, "Europe/Berlin", "DE"), nil
}

type stubForecast struct{}

func (stubForecast) Fetch(context.Context, float64, float64, string) (weather.ForecastSeries, error) {
	return weather.ForecastSeries{
		Dates:    []string{"2024-01-01"},
		Codes:    []int{0},
		MaxTemps: []float64{3},
		MinTemps: []float64{-2},
	}, nil
}

func newTestManager(kv weather.QueryStore, geo weather.GeoResolver) *Manager {
	return NewManager(func() *weather.Orchestrator {
		return weather.NewOrchestrator(weather.Dependencies{
			Geo:      geo,
			Forecast: stubForecast{},
			Store:    kv,
		})
	})
}

func waitStatus(t *testing.T, s *Session, want weather.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State().Status != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, have %s", want, s.State().Status)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCreateRestoresPersistedQuery(t *testing.T) {
	kv := store.NewMemoryStore()
	_ = kv.Set(context.Background(), weather.DefaultStoreKey, "Berlin")
	geo := &stubGeo{}
	m := newTestManager(kv, geo)
	defer m.CloseAll()

	s := m.Create(context.Background())
	if s.ID == "" {
		t.Fatal("session id missing")
	}
	waitStatus(t, s, weather.StatusLoaded)

	if got := s.State().Query; got != "Berlin" {
		t.Fatalf("expected restored query, got %q", got)
	}
	if geo.calls.Load() != 1 {
		t.Fatalf("expected exactly one chain, got %d", geo.calls.Load())
	}
}

func TestGetAndRemove(t *testing.T) {
	m := newTestManager(nil, &stubGeo{})

	a := m.Create(context.Background())
	b := m.Create(context.Background())
	if a.ID == b.ID {
		t.Fatal("session ids must be unique")
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Count())
	}

	if got, err := m.Get(a.ID); err != nil || got != a {
		t.Fatalf("unexpected lookup result %v, %v", got, err)
	}
	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("removed session should be done")
	}
	if _, err := m.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Remove(a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double remove, got %v", err)
	}
	m.CloseAll()
	if m.Count() != 0 {
		t.Fatal("CloseAll left sessions behind")
	}
}

func TestEventsStreamTransitions(t *testing.T) {
	m := newTestManager(nil, &stubGeo{})
	defer m.CloseAll()

	s := m.Create(context.Background())
	initial, events, stop := s.Events(8)
	defer stop()

	if initial.Status != weather.StatusIdle {
		t.Fatalf("expected idle snapshot, got %s", initial.Status)
	}

	s.SetQuery("Berlin")

	for _, want := range []weather.Status{weather.StatusLoading, weather.StatusLoaded} {
		select {
		case st := <-events:
			if st.Status != want {
				t.Fatalf("expected %s, got %s", want, st.Status)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	stop()
	if _, ok := <-events; ok {
		t.Fatal("channel should be closed after stop")
	}
}

func TestRefreshAllAndExpireIdle(t *testing.T) {
	geo := &stubGeo{}
	m := newTestManager(nil, geo)
	defer m.CloseAll()

	loaded := m.Create(context.Background())
	idle := m.Create(context.Background())
	loaded.SetQuery("Berlin")
	waitStatus(t, loaded, weather.StatusLoaded)

	if n := m.RefreshAll(); n != 1 {
		t.Fatalf("expected one refreshed session, got %d", n)
	}
	waitStatus(t, loaded, weather.StatusLoaded)

	if n := m.ExpireIdle(time.Hour); n != 0 {
		t.Fatalf("nothing should expire yet, got %d", n)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := m.Get(loaded.ID); err != nil {
		t.Fatal(err)
	}
	if n := m.ExpireIdle(50 * time.Millisecond); n != 1 {
		t.Fatalf("expected the untouched session to expire, got %d", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("idle session should be gone")
	}
}
