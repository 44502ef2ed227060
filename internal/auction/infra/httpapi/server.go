package httpapi

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
	sharedws "github.com/minekarta/auctionhouse/internal/shared/websocket"
)

var log = logger.GetLogger()

// Server exposes the command endpoints (feeding the coordinator), the
// read-only query facade and the event stream.
type Server struct {
	app *fiber.App
}

func NewServer(coordinator *application.Coordinator, queries *application.QueryService, hub *sharedws.Hub) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(func(c *fiber.Ctx) error {
		log.Info("HTTP request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("remote_addr", c.IP()),
		)
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	h := &handlers{coordinator: coordinator, queries: queries}
	api := app.Group("/api")
	api.Get("/listings", h.activeListings)
	api.Get("/listings/:id", h.listingByID)
	api.Post("/listings", h.createListing)
	api.Post("/listings/:id/bids", h.placeBid)
	api.Post("/listings/:id/buy", h.buyNow)
	api.Post("/listings/:id/cancel", h.cancel)
	api.Get("/players/:id/listings", h.listingsBySeller)
	api.Get("/players/:id/listings/count", h.listingCount)
	api.Get("/players/:id/mailbox", h.mailboxEntries)
	api.Post("/players/:id/mailbox/claim", h.claimMailbox)
	api.Get("/summary/top", h.topSummary)

	app.Get("/ws", fiberws.New(func(conn *fiberws.Conn) {
		hub.Serve(conn)
	}))

	return &Server{app: app}
}

func (s *Server) Start(addr string) error {
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		<-quit

		log.Info("Shutting down HTTP server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.app.ShutdownWithContext(ctx)
	}()

	log.Info("HTTP server started", zap.String("addr", addr))
	return s.app.Listen(addr)
}
