package api

import (
	"encoding/json"
	"errors"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/pyroscout/controller/domain/status"
	customlog "github.com/pyroscout/controller/pkg/log"
	"github.com/pyroscout/controller/pkg/nav"
)

const statusPushPeriod = 200 * time.Millisecond

// wsWriter serializes writes to a websocket connection. The ack writes in
// the read loop and the periodic status pushes share one connection, and
// concurrent writes on it are not safe.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// ControlWebSocketHandler serves the bidirectional control channel: it
// accepts control commands from the client and pushes periodic status
// snapshots back.
func ControlWebSocketHandler(conn *websocket.Conn, controller *nav.Controller, statusSvc *status.StatusService, logger customlog.Logger) {
	logger.Infof("Control WebSocket connected: %s", conn.RemoteAddr())

	writer := &wsWriter{conn: conn}
	done := make(chan struct{})
	go pushStatus(writer, statusSvc, done)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Control WS read error: %v", err)
			} else if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Control WS connection closed: %v", err)
			}
			break
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text control WS message type: %d", mt)
			continue
		}

		var ctrl ControlMsg
		if err := json.Unmarshal(msg, &ctrl); err != nil {
			logger.Warnf("Failed to unmarshal control command from WS: %v. Message: %s", err, string(msg))
			continue
		}

		ack := applyControl(controller, ctrl)
		if err := writer.WriteJSON(ack); err != nil {
			logger.Warnf("Control WS write error: %v", err)
			break
		}
	}

	close(done)
	logger.Infof("Control WebSocket disconnected: %s", conn.RemoteAddr())
}

// applyControl dispatches one control command to the motion controller.
func applyControl(controller *nav.Controller, ctrl ControlMsg) ControlAck {
	ack := ControlAck{Type: "ack", Command: ctrl.Type}

	switch ctrl.Type {
	case "move":
		direction, err := nav.ParseDirection(ctrl.Direction)
		if err != nil {
			ack.Message = err.Error()
			return ack
		}
		ack.OK = controller.Move(direction)
	case "mode":
		mode, err := nav.ParseMode(ctrl.Mode)
		if err != nil {
			ack.Message = err.Error()
			return ack
		}
		ack.OK = controller.SetMode(mode)
	case "speed":
		ack.OK = controller.SetSpeed(ctrl.Speed)
	case "target":
		controller.SetAutoTarget(ctrl.Heading)
		ack.OK = true
	default:
		ack.Message = "unknown command type"
	}
	return ack
}

// pushStatus periodically writes status snapshots until done is closed.
func pushStatus(writer *wsWriter, statusSvc *status.StatusService, done chan struct{}) {
	ticker := time.NewTicker(statusPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			frame := map[string]interface{}{
				"type":       "status",
				"controller": statusSvc.Snapshot(),
			}
			if err := writer.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
