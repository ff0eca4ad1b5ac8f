package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"whiteboard-hub/contract"
	"whiteboard-hub/domain"
	"whiteboard-hub/observability"
	"whiteboard-hub/runtime"
)

// Server exposes the hub: a WebSocket attach point per room plus the
// room directory, clear, and debug endpoints.
type Server struct {
	log        *slog.Logger
	hub        *runtime.Hub
	registry   contract.Registry
	monitor    *observability.Monitor
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewServer(log *slog.Logger, hub *runtime.Hub, registry contract.Registry,
	monitor *observability.Monitor, bufferSize int) *Server {
	return &Server{
		log:      log,
		hub:      hub,
		registry: registry,
		monitor:  monitor,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			// Origin policy is delegated to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize: bufferSize,
	}
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/rooms", s.handleRooms)
	engine.GET("/rooms/:room/ws", s.handleAttach)
	engine.POST("/rooms/:room/clear", s.handleClear)
	engine.GET("/debug/stats", s.handleStats)
	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.hub.Rooms()})
}

func (s *Server) handleClear(c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	if err := s.hub.Clear(c.Request.Context(), room); err != nil {
		s.log.Error("clear failed", "room", room, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	snapshot := s.registry.Snapshot()
	subscribers := 0
	for _, count := range snapshot {
		subscribers += count
	}
	c.JSON(http.StatusOK, s.monitor.Collect(len(snapshot), subscribers))
}

// handleAttach joins the caller to the room for the lifetime of the
// WebSocket connection. The join replays history as the first frame;
// afterwards the connection receives every event published by other
// members. Inbound frames carry the member's own publishes and clear
// requests. Leaving is implicit on disconnect.
func (s *Server) handleAttach(c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "room", room, "error", err)
		return
	}
	defer conn.Close()

	// The request context dies with the HTTP handler machinery once the
	// connection is hijacked; the connection's own lifecycle governs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(s.bufferSize)
	if err := s.hub.Join(ctx, room, sub); err != nil {
		s.log.Error("join failed", "room", room, "subscriber_id", sub.ID(), "error", err)
		return
	}
	defer s.hub.Leave(room, sub.ID())

	go s.writeLoop(ctx, conn, sub)
	s.readLoop(ctx, conn, room, sub)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, room domain.RoomID, sub *Subscriber) {
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("subscriber connection lost",
					"room", room, "subscriber_id", sub.ID(), "error", err)
			}
			return
		}
		if err := s.validate.Struct(frame); err != nil {
			s.log.Warn("rejecting invalid frame",
				"room", room, "subscriber_id", sub.ID(), "error", err)
			continue
		}
		switch frame.Type {
		case frameTypePublish:
			if err := s.hub.Publish(ctx, room, fromPayload(*frame.Event), sub.ID()); err != nil {
				s.log.Error("publish failed",
					"room", room, "subscriber_id", sub.ID(), "error", err)
			}
		case frameTypeClear:
			if err := s.hub.Clear(ctx, room); err != nil {
				s.log.Error("clear failed",
					"room", room, "subscriber_id", sub.ID(), "error", err)
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sub.Outbound():
			if err := conn.WriteJSON(frame); err != nil {
				s.log.Warn("write failed, dropping connection",
					"subscriber_id", sub.ID(), "error", err)
				// Unblocks the read loop, which tears the membership down.
				_ = conn.Close()
				return
			}
		}
	}
}
