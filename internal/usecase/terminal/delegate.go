package terminal

import (
	"context"
	"log/slog"

	"termrun/internal/domain"
	"termrun/internal/usecase/eventbus"
)

// BusDelegate forwards plugin start and end notifications to an event bus.
type BusDelegate struct {
	bus       domain.EventBus
	sessionID string
	logger    *slog.Logger
}

// NewBusDelegate creates a BusDelegate. Events carry sessionID, typically
// the history log's ID.
func NewBusDelegate(bus domain.EventBus, sessionID string, logger *slog.Logger) *BusDelegate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BusDelegate{bus: bus, sessionID: sessionID, logger: logger}
}

func (d *BusDelegate) OnInvocationStart(pluginID string) {
	d.emit(domain.EventPluginStarted, pluginID)
}

func (d *BusDelegate) OnInvocationEnd(pluginID string) {
	d.emit(domain.EventPluginEnded, pluginID)
}

func (d *BusDelegate) emit(t domain.EventType, pluginID string) {
	d.logger.Debug("plugin event", "type", string(t), "plugin", pluginID)
	ctx := domain.ContextWithSessionID(context.Background(), d.sessionID)
	eventbus.Emit(ctx, d.bus, t, domain.PluginEventPayload{PluginID: pluginID, Name: pluginName})
}
