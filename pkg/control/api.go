package control

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-rover/pkg/position"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Snapshot
	Pose      position.Pose `json:"pose"`
	Navigator string        `json:"navigator"`
	Clients   int           `json:"clients"`
}

// RegisterAPIRoutes registers the REST API.
func (s *Server) RegisterAPIRoutes(router fiber.Router) {
	router.Get("/status", s.handleStatus)
	router.Get("/stats", s.handleStats)
	router.Get("/runs", s.handleRuns)
}

// handleStatus returns the rover state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Snapshot:  s.state.Snapshot(),
		Pose:      s.deps.Pose.Pose(),
		Navigator: s.nav.State().String(),
		Clients:   s.hub.ClientCount(),
	})
}

// handleStats returns broadcast counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.hub.GetStats())
}

// handleRuns returns the most recent runs, newest first
func (s *Server) handleRuns(c *fiber.Ctx) error {
	if s.deps.Journal == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "run journal disabled",
		})
	}
	runs, err := s.deps.Journal.Recent(c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(runs)
}
