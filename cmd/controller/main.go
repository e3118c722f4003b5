package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pyroscout/controller/domain/camera"
	"github.com/pyroscout/controller/domain/sensors"
	"github.com/pyroscout/controller/domain/status"
	"github.com/pyroscout/controller/pkg/api"
	"github.com/pyroscout/controller/pkg/bridge"
	"github.com/pyroscout/controller/pkg/config"
	customlog "github.com/pyroscout/controller/pkg/log"
	"github.com/pyroscout/controller/pkg/nav"
	"github.com/pyroscout/controller/pkg/spatial"
	"github.com/pyroscout/controller/pkg/store"
	"github.com/pyroscout/controller/pkg/telemetry"
	"github.com/pyroscout/controller/services"
)

func main() {
	configDir := flag.String("config-dir", "config", "directory containing controller_config.yaml")
	flag.Parse()

	bootstrapCfg, err := config.LoadBootstrapConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load bootstrap configuration: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	robotConfigPath := filepath.Join(bootstrapCfg.Data.Directory, bootstrapCfg.Data.RobotConfigFilename)
	configService, err := services.NewRobotConfigService(robotConfigPath, logger)
	if err != nil {
		logger.Fatalf("Failed to create robot configuration service: %v", err)
	}
	robotCfg := configService.GetCurrentConfig()
	if robotCfg == nil {
		logger.Fatalf("No valid robot configuration at %s", robotConfigPath)
	}

	// Transport and perception.
	dispatcher := bridge.NewDispatcher(logger)
	channel := bridge.NewChannel(robotCfg.Connection, dispatcher, logger)

	lidarService := spatial.NewService(robotCfg.Lidar, robotCfg.Navigation.ObstacleThreshold, channel, logger)
	dispatcher.RegisterHandler(bridge.MsgTypeLidarData, lidarService)

	cameraService := camera.NewCameraService(robotCfg.Camera, channel, logger)
	dispatcher.RegisterHandler(bridge.MsgTypeCameraFrame, cameraService)

	sensorService := sensors.NewSensorService(robotCfg.Sensors, channel, logger)
	dispatcher.RegisterHandler(bridge.MsgTypeSensorData, sensorService)

	navController := nav.NewController(robotCfg.Navigation, channel, lidarService, logger)

	statusService := status.NewStatusService(robotCfg.RobotID, channel, navController, lidarService, cameraService)

	// Session recording.
	var sessionStore *store.Store
	var sessionID string
	if bootstrapCfg.Data.SessionDBFilename != "" {
		dbPath := filepath.Join(bootstrapCfg.Data.Directory, bootstrapCfg.Data.SessionDBFilename)
		sessionStore, err = store.Open(dbPath, logger)
		if err != nil {
			logger.Fatalf("Failed to open session database: %v", err)
		}
		sessionID, err = sessionStore.StartSession(robotCfg.RobotID, "")
		if err != nil {
			logger.Fatalf("Failed to start recording session: %v", err)
		}
		statusService.SetSessionID(sessionID)
	}

	// Telemetry fan-out.
	var publisher *telemetry.Publisher
	if bootstrapCfg.Telemetry.Enabled {
		publisher, err = telemetry.NewPublisher(bootstrapCfg.Telemetry.PublishBindAddress, logger)
		if err != nil {
			logger.Fatalf("Failed to create telemetry publisher: %v", err)
		}
	}

	telemetryHub := api.NewTelemetryHub(logger)

	wireEvents(channel, navController, lidarService, sensorService, publisher, telemetryHub, sessionStore, sessionID, logger)

	// HTTP API.
	app := fiber.New(fiber.Config{
		AppName:      "PyroScout Controller",
		ErrorHandler: apiErrorHandler,
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "pyroscout controller",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api.RegisterNavRoutes(app, navController, logger)
	api.RegisterLidarRoutes(app, lidarService, logger)
	api.RegisterConfigRoutes(app, configService, logger)

	app.Get("/api/v1/status", statusService.GetStatusHandler)
	app.Get("/api/v1/camera/frame", cameraService.GetFrameHandler)
	app.Post("/api/v1/camera/stream", cameraService.StreamControlHandler)
	app.Get("/api/v1/sensors", sensorService.GetReadingsHandler)
	app.Post("/api/v1/sensors/calibrate/:sensor", sensorService.CalibrateHandler)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/control", websocket.New(func(conn *websocket.Conn) {
		api.ControlWebSocketHandler(conn, navController, statusService, logger)
	}))
	app.Get("/ws/telemetry", websocket.New(telemetryHub.TelemetryWebSocketHandler))

	// Start everything.
	lidarService.Start()
	navController.Start()
	if err := channel.Connect(); err != nil {
		logger.Warnf("Initial bridge connection failed: %v", err)
	}

	port := bootstrapCfg.Server.HTTPPort
	if port == 0 {
		port = 8080
	}
	go func() {
		logger.Infof("HTTP server starting on port %d", port)
		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down controller...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	navController.Shutdown()
	lidarService.Stop()
	channel.Disconnect()
	if publisher != nil {
		publisher.Close()
	}
	if sessionStore != nil {
		if sessionID != "" {
			if err := sessionStore.EndSession(sessionID); err != nil {
				logger.Warnf("Failed to end recording session: %v", err)
			}
		}
		sessionStore.Close()
	}

	logger.Infof("Controller exited properly")
}

// apiErrorHandler renders unhandled route errors as JSON, preserving the
// status code of fiber errors and defaulting to 500 otherwise.
func apiErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// wireEvents connects subsystem events to the telemetry publisher, the
// websocket hub, and the session recorder. The publisher and store are
// optional.
func wireEvents(channel *bridge.Channel, navController *nav.Controller, lidarService *spatial.Service,
	sensorService *sensors.SensorService, publisher *telemetry.Publisher, hub *api.TelemetryHub,
	sessionStore *store.Store, sessionID string, logger customlog.Logger) {

	record := func(category string, detail interface{}) {
		if sessionStore == nil {
			return
		}
		if err := sessionStore.RecordEvent(sessionID, category, detail); err != nil {
			logger.Warnf("Failed to record %s event: %v", category, err)
		}
	}
	publish := func(topic, msgType string, payload interface{}) {
		if publisher == nil {
			return
		}
		if err := publisher.PublishJSON(topic, msgType, payload); err != nil {
			logger.Warnf("Failed to publish %s telemetry: %v", topic, err)
		}
	}

	channel.OnStatus(func(connected bool, reason string) {
		detail := map[string]interface{}{"connected": connected, "reason": reason}
		publish(telemetry.TopicLinkStatus, "LINK_STATUS", detail)
		hub.Broadcast("link_status", detail)
		record(store.CategoryLink, detail)
	})

	navController.OnStatus(func(ev nav.StatusEvent) {
		publish(telemetry.TopicNavStatus, "NAV_STATUS", ev)
		hub.Broadcast("nav_status", ev)
		record(store.CategoryNav, ev)
	})

	navController.OnObstacle(func(ev nav.ObstacleEvent) {
		publish(telemetry.TopicObstacle, "NAV_OBSTACLE", ev)
		hub.Broadcast("obstacle", ev)
		record(store.CategoryObstacle, ev)
	})

	lidarService.OnScan(func(frame *spatial.Frame) {
		summary := map[string]interface{}{
			"scan_id":     frame.ScanID,
			"timestamp":   frame.Timestamp,
			"point_count": len(frame.Points),
			"sectors":     frame.SectorProfile(8),
		}
		publish(telemetry.TopicLidarScan, "LIDAR_SCAN", summary)
		hub.Broadcast("lidar_scan", summary)
	})

	sensorService.OnAlert(func(alert sensors.Alert) {
		publish(telemetry.TopicAlert, "SENSOR_ALERT", alert)
		hub.Broadcast("sensor_alert", alert)
		record(store.CategorySensor, alert)
	})
}
