package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/miniapp/internal/api/http"
	"github.com/GriffinCanCode/miniapp/internal/domain/bridge"
	"github.com/GriffinCanCode/miniapp/internal/domain/loader"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/shared/id"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// outbox buffers responses while the writer is busy
	outbox = 64
)

// Loader makes a bundle ready before its bridge opens
type Loader interface {
	Load(ctx context.Context, appID, versionID string) (*loader.Result, error)
}

// HostFactory builds the capability set of one session
type HostFactory func(session bridge.Session) bridge.Host

// Options configures a Handler
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// CheckOrigin defaults to accepting every origin
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades bridge connections
type Handler struct {
	loader   Loader
	perms    bridge.Permissions
	hosts    HostFactory
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a websocket bridge handler
func NewHandler(l Loader, perms bridge.Permissions, hosts HostFactory, opts Options) *Handler {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		loader: l,
		perms:  perms,
		hosts:  hosts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  logging.OrNop(opts.Logger).Named("ws"),
		metrics: opts.Metrics,
	}
}

// HandleConnection loads the bundle, upgrades and serves bridge frames
// until the peer goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	appID := c.Param("appId")
	res, err := h.loader.Load(c.Request.Context(), appID, c.Query("version"))
	if err != nil {
		h.logger.Info("bridge refused", logging.AppID(appID), zap.Error(err))
		apihttp.RespondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.AppID(appID), zap.Error(err))
		return
	}

	session := bridge.Session{Identity: res.Bundle.Identity, Manifest: res.Manifest}
	logger := h.logger.With(zap.String("session_id", id.NewSessionID().String()), logging.Identity(session.Identity))
	d := bridge.New(session, h.hosts(session), h.perms, bridge.Options{Logger: logger, Metrics: h.metrics})

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	logger.Info("bridge connected", zap.Bool("fallback", res.Fallback))
	h.serve(c.Request.Context(), conn, d, logger)
	logger.Info("bridge disconnected")
}

func (h *Handler) serve(parent context.Context, conn *websocket.Conn, d *bridge.Dispatcher, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	out := make(chan types.BridgeResponse, outbox)
	done := make(chan struct{})
	go h.writeLoop(conn, out, done, logger)

	conn.SetReadLimit(utils.MaxBridgeMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	respond := func(resp types.BridgeResponse) { out <- resp }
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("bridge read failed", zap.Error(err))
			}
			break
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		d.Dispatch(ctx, raw, respond)
	}

	// pending host calls see a cancelled context and still answer, so
	// every response is drained before the outbox closes
	cancel()
	d.Wait()
	close(out)
	<-done
	_ = conn.Close()
}

// writeLoop is the only writer of conn. After a write failure it keeps
// draining out so responders never block.
func (h *Handler) writeLoop(conn *websocket.Conn, out <-chan types.BridgeResponse, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	failed := false
	fail := func(err error) {
		if !failed && !errors.Is(err, websocket.ErrCloseSent) {
			logger.Debug("bridge write failed", zap.Error(err))
		}
		failed = true
		_ = conn.Close()
	}

	for {
		select {
		case resp, ok := <-out:
			if !ok {
				if !failed {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
				}
				return
			}
			if failed {
				continue
			}
			data, err := encodeResponse(resp)
			if err != nil {
				logger.Error("encode bridge response", logging.RequestID(resp.ID), zap.Error(err))
				if data == nil {
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				fail(err)
			}
		case <-ticker.C:
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				fail(err)
			}
		}
	}
}

// encodeResponse marshals resp. When the payload cannot be encoded it
// returns a hostError frame for the same id along with the encode error.
func encodeResponse(resp types.BridgeResponse) ([]byte, error) {
	data, err := sonic.Marshal(resp)
	if err == nil {
		return data, nil
	}
	fallback, ferr := sonic.Marshal(types.BridgeResponse{
		ID:      resp.ID,
		Status:  types.StatusError,
		Payload: types.BridgeError{Type: types.BridgeErrHost, Message: "response could not be encoded"},
	})
	if ferr != nil {
		return nil, err
	}
	return fallback, err
}
