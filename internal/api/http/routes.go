package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/a-kowalenko/classy-weather/internal/session"
	"github.com/a-kowalenko/classy-weather/internal/weather"
)

var validate = validator.New()

const (
	eventBuffer       = 32
	keepAliveInterval = 15 * time.Second
)

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, sessions *session.Manager) {
	v1 := app.Group("/api/v1")

	v1.Post("/sessions", func(c *fiber.Ctx) error {
		s := sessions.Create(c.UserContext())
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    s.ID,
			"state": s.State().View(),
		})
	})

	v1.Get("/sessions/:id", func(c *fiber.Ctx) error {
		s, err := lookup(sessions, c)
		if err != nil {
			return err
		}
		return c.JSON(s.State().View())
	})

	v1.Put("/sessions/:id/query", func(c *fiber.Ctx) error {
		s, err := lookup(sessions, c)
		if err != nil {
			return err
		}

		var req queryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		s.SetQuery(req.Query)
		return c.Status(fiber.StatusAccepted).JSON(s.State().View())
	})

	v1.Post("/sessions/:id/position", func(c *fiber.Ctx) error {
		s, err := lookup(sessions, c)
		if err != nil {
			return err
		}

		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !req.complete() {
			return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude are required unless denied")
		}

		s.UseCurrentPosition(req.source())
		return c.Status(fiber.StatusAccepted).JSON(s.State().View())
	})

	v1.Get("/sessions/:id/events", func(c *fiber.Ctx) error {
		s, err := lookup(sessions, c)
		if err != nil {
			return err
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		initial, events, stop := s.Events(eventBuffer)
		done := s.Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer stop()

			if err := writeEvent(w, initial); err != nil {
				return
			}

			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()

			for {
				select {
				case st, ok := <-events:
					if !ok {
						return
					}
					if err := writeEvent(w, st); err != nil {
						log.Printf("SSE client %s gone: %v", s.ID, err)
						return
					}
				case <-ticker.C:
					if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		})
		return nil
	})

	v1.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		if err := sessions.Remove(c.Params("id")); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func lookup(sessions *session.Manager, c *fiber.Ctx) (*session.Session, error) {
	s, err := sessions.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return nil, err
	}
	return s, nil
}

// queryRequest is the body of a search box change. Any string is accepted;
// short ones reset the widget.
type queryRequest struct {
	Query string `json:"query" validate:"max=200"`
}

// positionRequest carries the outcome of the browser geolocation prompt.
type positionRequest struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Denied    bool     `json:"denied"`
}

func (p positionRequest) complete() bool {
	return p.Denied || (p.Latitude != nil && p.Longitude != nil)
}

func (p positionRequest) source() weather.PositionSource {
	if p.Denied {
		return weather.DeniedPosition{}
	}
	return weather.StaticPosition{Latitude: *p.Latitude, Longitude: *p.Longitude}
}

// writeEvent formats a state transition according to the SSE protocol.
func writeEvent(w *bufio.Writer, st weather.State) error {
	data, err := json.Marshal(st.View())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", st.Generation, data); err != nil {
		return err
	}
	return w.Flush()
}
