// Package web exposes the credential broker over HTTP for browser and
// headless clients.
package web

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/broker"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/hub"
)

// Negotiator is the broker surface the server needs. Satisfied by
// *broker.Broker; stubbed in tests.
type Negotiator interface {
	Negotiate(ctx context.Context, offerSDP string) (string, error)
	Mint(ctx context.Context) (*broker.Credential, error)
	ListModels(ctx context.Context) ([]string, error)
}

// FeedEntry is one line of the live event feed.
type FeedEntry struct {
	ID      string `json:"id"`
	Time    string `json:"time"`
	Type    string `json:"type"` // session, models, error
	Message string `json:"message"`
}

// Server is the broker HTTP server.
type Server struct {
	app        *fiber.App
	port       string
	negotiator Negotiator

	// Recent feed entries for late joiners.
	entries   []FeedEntry
	entriesMu sync.RWMutex

	events *hub.Hub
}

// NewServer creates the broker server listening on the given port.
func NewServer(port string, n Negotiator) *Server {
	s := &Server{
		port:       port,
		negotiator: n,
		entries:    make([]FeedEntry, 0, 200),
		events:     hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Talking Avatar Broker",
		DisableStartupMessage: true,
	})

	// CORS so a separately served page can reach the broker during dev.
	app.Use(cors.New())

	app.Static("/", "./public")

	app.Post("/session", s.handleNegotiate)
	app.Get("/session", s.handleMint)
	app.Get("/models", s.handleModels)
	app.Get("/healthz", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start runs the server; blocks until shutdown.
func (s *Server) Start() error {
	go s.events.Run()
	log.Info("broker listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// publish records a feed entry and broadcasts it to subscribers.
func (s *Server) publish(entryType, message string) {
	entry := FeedEntry{
		ID:      uuid.NewString(),
		Time:    time.Now().Format("15:04:05"),
		Type:    entryType,
		Message: message,
	}

	s.entriesMu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > 200 {
		s.entries = s.entries[1:]
	}
	s.entriesMu.Unlock()

	s.events.BroadcastJSON(entry)
}

// handleEventsWS streams feed entries to a websocket subscriber.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)

	// Replay recent entries so late joiners have context.
	s.entriesMu.RLock()
	for _, entry := range s.entries {
		c.WriteJSON(entry)
	}
	s.entriesMu.RUnlock()

	client.Run()
}
