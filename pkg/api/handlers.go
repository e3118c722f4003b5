package api

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/pyroscout/controller/pkg/log"
	"github.com/pyroscout/controller/pkg/nav"
	"github.com/pyroscout/controller/pkg/spatial"
)

// NavHandler holds dependencies for the navigation API endpoints.
type NavHandler struct {
	controller *nav.Controller
	logger     customlog.Logger
}

// RegisterNavRoutes registers the navigation API endpoints with the Fiber app.
func RegisterNavRoutes(app *fiber.App, controller *nav.Controller, logger customlog.Logger) {
	h := &NavHandler{controller: controller, logger: logger}

	group := app.Group("/api/v1/nav")
	group.Get("/state", h.handleGetState)
	group.Post("/move", h.handleMove)
	group.Post("/mode", h.handleSetMode)
	group.Post("/speed", h.handleSetSpeed)
	group.Post("/target", h.handleSetTarget)

	logger.Infof("Registered navigation API endpoints under /api/v1/nav")
}

func (h *NavHandler) handleGetState(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"state":  h.controller.Snapshot(),
	})
}

func (h *NavHandler) handleMove(c *fiber.Ctx) error {
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	direction, err := nav.ParseDirection(req.Direction)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !h.controller.Move(direction) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": "movement rejected",
		})
	}
	return c.JSON(fiber.Map{"status": "success", "state": h.controller.Snapshot()})
}

func (h *NavHandler) handleSetMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	mode, err := nav.ParseMode(req.Mode)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !h.controller.SetMode(mode) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": "mode change rejected",
		})
	}
	return c.JSON(fiber.Map{"status": "success", "state": h.controller.Snapshot()})
}

func (h *NavHandler) handleSetSpeed(c *fiber.Ctx) error {
	var req SpeedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !h.controller.SetSpeed(req.Speed) {
		return badRequest(c, "speed must be between 0 and 255")
	}
	return c.JSON(fiber.Map{"status": "success", "state": h.controller.Snapshot()})
}

func (h *NavHandler) handleSetTarget(c *fiber.Ctx) error {
	var req TargetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	h.controller.SetAutoTarget(req.Heading)
	return c.JSON(fiber.Map{"status": "success", "state": h.controller.Snapshot()})
}

// LidarHandler holds dependencies for the lidar API endpoints.
type LidarHandler struct {
	service *spatial.Service
	logger  customlog.Logger
}

// RegisterLidarRoutes registers the lidar API endpoints with the Fiber app.
func RegisterLidarRoutes(app *fiber.App, service *spatial.Service, logger customlog.Logger) {
	h := &LidarHandler{service: service, logger: logger}

	group := app.Group("/api/v1/lidar")
	group.Get("/scan", h.handleGetScan)
	group.Get("/sectors", h.handleGetSectors)
	group.Get("/obstacle", h.handleGetObstacle)
	group.Post("/control", h.handleControl)

	logger.Infof("Registered lidar API endpoints under /api/v1/lidar")
}

func (h *LidarHandler) handleGetScan(c *fiber.Ctx) error {
	frame := h.service.Model().Current()
	if frame == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "no scan available",
		})
	}
	return c.JSON(fiber.Map{
		"status":      "success",
		"scan_id":     frame.ScanID,
		"timestamp":   frame.Timestamp,
		"point_count": len(frame.Points),
		"points":      frame.Points,
	})
}

func (h *LidarHandler) handleGetSectors(c *fiber.Ctx) error {
	count := 8
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, "count must be a positive integer")
		}
		count = n
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"sectors": h.service.Model().SectorProfile(count),
	})
}

func (h *LidarHandler) handleGetObstacle(c *fiber.Ctx) error {
	obstacle, ok := h.service.Model().NearestObstacle()
	if !ok {
		return c.JSON(fiber.Map{"status": "success", "obstacle": nil})
	}
	return c.JSON(fiber.Map{"status": "success", "obstacle": obstacle})
}

func (h *LidarHandler) handleControl(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var ok bool
	switch req.Action {
	case "start":
		ok = h.service.StartScan()
	case "stop":
		ok = h.service.StopScan()
	default:
		return badRequest(c, "action must be start or stop")
	}
	if !ok {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"message": "failed to send lidar command",
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}
