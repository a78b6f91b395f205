package server

import (
	"time"

	"github.com/google/uuid"
	"tally.dev/internal/identity"
	"tally.dev/internal/log"
	"tally.dev/internal/pubsub"
)

// Names of the events the host UI shell can listen for.
const (
	EventOpenDevtools = "open-devtools"
	EventTimerStarted = "timer-started"
	EventTimerStopped = "timer-stopped"
)

var EventsTopic = pubsub.TopicId{
	Category: identity.Category("events"),
	Key:      "shell",
}

type Event struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emittedAt"`
}

// emit is fire-and-forget: nothing waits for the UI to receive or acknowledge the event.
func (server *Server) emit(name string, payload any) {
	event := Event{
		Id:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		EmittedAt: server.clock.Now(),
	}

	if err := server.events.Publish(event); err != nil {
		logger.Err(err, "Failed to emit event", log.Ctx{
			"event": name,
		})
		return
	}

	logger.Debug("Emitted event", log.Ctx{
		"event": name,
		"id":    event.Id,
	})
}
