package notifications

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

type notifyFunc func(title, message string) error

// DesktopSender shows notifications through the OS notification service.
type DesktopSender struct {
	logger *slog.Logger
	notify notifyFunc
}

func NewDesktopSender(logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}

	return &DesktopSender{
		logger: logger,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (s *DesktopSender) Send(payload Payload) {
	if err := s.notify(payload.Title, payload.Content); err != nil {
		s.logger.Warn("desktop notification failed", "title", payload.Title, "error", err)
	}
}

// NopSender drops every notification.
type NopSender struct{}

func (NopSender) Send(Payload) {}
