package hub

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Auth happens via bearer token, not origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server bundles the REST API and the websocket signaling endpoint.
type Server struct {
	hub       *Hub
	store     Store
	jwtSecret string
	router    *gin.Engine
}

// NewServer wires the router. Call Run to start serving.
func NewServer(store Store, jwtSecret string) *Server {
	s := &Server{
		hub:       NewHub(store),
		store:     store,
		jwtSecret: jwtSecret,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/token", mintToken(jwtSecret))

		meetings := api.Group("/meetings", jwtAuth(jwtSecret))
		{
			meetings.POST("/:meetingID/join", s.joinMeeting)
			meetings.POST("/:meetingID/leave", s.leaveMeeting)
			meetings.POST("/:meetingID/end", s.endMeeting)
			meetings.PATCH("/:meetingID/participants/:participantID", s.patchParticipant)
			meetings.DELETE("/:meetingID/participants/:participantID", s.removeParticipant)
		}
	}

	router.GET("/ws/:meetingID", s.serveWs)

	s.router = router
	return s
}

// Run starts the hub loop and serves HTTP on addr.
func (s *Server) Run(addr string) error {
	go s.hub.Run()
	slog.Info("meshmeet hub listening", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) joinMeeting(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = c.GetString("user_name")
	}

	p, err := s.store.Join(c.Request.Context(), c.Param("meetingID"), c.GetString("user_id"), req.DisplayName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participant": p,
		"meeting_id":  c.Param("meetingID"),
	})
}

func (s *Server) leaveMeeting(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id required"})
		return
	}

	if err := s.store.Remove(c.Request.Context(), c.Param("meetingID"), req.ParticipantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leave failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

func (s *Server) patchParticipant(c *gin.Context) {
	var u signaling.UpdatePayload
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	u.ParticipantID = c.Param("participantID")

	p, err := s.store.Update(c.Request.Context(), c.Param("meetingID"), u)
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) removeParticipant(c *gin.Context) {
	if !s.callerModerates(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "host role required"})
		return
	}

	if err := s.store.Remove(c.Request.Context(), c.Param("meetingID"), c.Param("participantID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

func (s *Server) endMeeting(c *gin.Context) {
	if !s.callerModerates(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "host role required"})
		return
	}

	if err := s.store.End(c.Request.Context(), c.Param("meetingID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "end failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ended"})
}

// callerModerates reports whether the authenticated user holds a
// host or co-host record in the meeting.
func (s *Server) callerModerates(c *gin.Context) bool {
	snapshot, err := s.store.Snapshot(c.Request.Context(), c.Param("meetingID"))
	if err != nil {
		return false
	}
	userID := c.GetString("user_id")
	for _, p := range snapshot {
		if p.UserID == userID {
			return p.Role == "host" || p.Role == "co-host"
		}
	}
	return false
}

// serveWs authenticates the request and upgrades it to the signaling
// websocket.
func (s *Server) serveWs(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
		return
	}
	claims, err := parseToken(authHeader[7:], s.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		Hub:         s.hub,
		Conn:        conn,
		MeetingID:   c.Param("meetingID"),
		UserID:      claims.UserID,
		DisplayName: claims.Name,
		Send:        make(chan signaling.Event, 256),
	}

	s.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
