package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/pyroscout/controller/pkg/log"
	"github.com/pyroscout/controller/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.RobotConfigService
	logger        customlog.Logger
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.RobotConfigService, logger customlog.Logger) {
	h := &ConfigHandler{configService: configService, logger: logger}

	group := app.Group("/api/v1/config")
	group.Get("/robot", h.handleGetRobotConfig)
	group.Put("/robot", h.handleUpdateRobotConfig)

	logger.Infof("Registered robot configuration API endpoints under /api/v1/config")
}

// handleGetRobotConfig serves the current robot config as raw YAML.
func (h *ConfigHandler) handleGetRobotConfig(c *fiber.Ctx) error {
	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current robot config YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}
	if len(yamlData) == 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Robot configuration not found or not yet set.",
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleUpdateRobotConfig replaces the robot config with the YAML body.
func (h *ConfigHandler) handleUpdateRobotConfig(c *fiber.Ctx) error {
	newConfigYAML := c.Body()
	if len(newConfigYAML) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	if err := h.configService.UpdateConfig(newConfigYAML); err != nil {
		h.logger.Errorf("Failed to update robot configuration: %v", err)
		if strings.Contains(err.Error(), "validation failed") || strings.Contains(err.Error(), "invalid YAML") {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Configuration update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during configuration update: %v", err),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Robot configuration updated successfully. Running components apply it on restart.",
	})
}
