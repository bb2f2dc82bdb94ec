package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/response"
	"github.com/yukbelajar/tryout-backend/internal/service"
	ws "github.com/yukbelajar/tryout-backend/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live attempt activity to the operator console.
type MonitorHandler struct {
	rdb            *redis.Client
	tryoutService  *service.TryoutService
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	tryoutService *service.TryoutService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
	allowedOrigins []string,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		tryoutService:  tryoutService,
		attemptService: attemptService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// MonitorStream godoc
// WS /ws/v1/operator/tryouts/:tryout_id/monitor
// Sends an initial snapshot, then forwards worker activity from Redis
// Pub/Sub as it happens.
func (h *MonitorHandler) MonitorStream(c *gin.Context) {
	tryoutID, err := uuid.Parse(c.Param("tryout_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	tryout, err := h.tryoutService.GetByID(c.Request.Context(), tryoutID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	monLog := h.log.With().Str("tryout_id", tryoutID.String()).Logger()
	monLog.Info().Msg("Operator attached to live monitor")

	if err := h.sendSnapshot(c, conn, tryout); err != nil {
		monLog.Warn().Err(err).Msg("Failed to send snapshot")
		return
	}

	reqCtx := c.Request.Context()
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.TryoutMonitorChannel(tryoutID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	// Reader goroutine: consume pings and surface disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					monLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			monLog.Info().Msg("Operator disconnected from live monitor")
			return

		case <-done:
			monLog.Info().Msg("Operator closed live monitor")
			return

		case msg := <-ch:
			// Workers publish ready-to-send JSON; forward without re-decoding.
			if err := ws.WriteRaw(conn, []byte(msg.Payload)); err != nil {
				monLog.Debug().Err(err).Msg("Write failed, closing monitor")
				return
			}

		case <-keepAlive.C:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		}
	}
}

// sendSnapshot writes the first frame: every attempt with status and score.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, conn *websocket.Conn, tryout *model.Tryout) error {
	results, _, err := h.attemptService.GetResults(c.Request.Context(), tryout.ID, 1, 100)
	if err != nil {
		return err
	}

	stats := ws.SnapshotStats{TotalJoined: len(results)}
	for _, res := range results {
		switch res.Status {
		case model.AttemptStatusInProgress:
			stats.TotalInProgress++
		case model.AttemptStatusCompleted:
			stats.TotalCompleted++
		}
	}

	return ws.WriteTyped(conn, ws.SnapshotResponse{
		Event:    ws.EventSnapshot,
		TryoutID: tryout.ID.String(),
		Stats:    stats,
		Attempts: results,
	})
}
