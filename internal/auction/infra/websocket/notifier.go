package websocket

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
	sharedws "github.com/minekarta/auctionhouse/internal/shared/websocket"
)

var log = logger.GetLogger()

// EventNotifier pushes listing lifecycle events onto the shared hub as JSON.
// Invoked from the authoritative loop, so it must not block: Hub.Broadcast
// drops on backlog instead of stalling.
type EventNotifier struct {
	hub *sharedws.Hub
}

func NewEventNotifier(hub *sharedws.Hub) *EventNotifier {
	return &EventNotifier{hub: hub}
}

func (n *EventNotifier) ListingEvent(evt application.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error("failed to encode listing event", zap.Error(err))
		return
	}
	n.hub.Broadcast(data)
}
