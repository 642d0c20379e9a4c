package usecase

import (
	"log/slog"
	"slices"

	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/application/metric"
	"github.com/qrave1/meetsignal/internal/domain/events"
	"github.com/qrave1/meetsignal/internal/domain/models"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
)

// outbox пишет в очереди соединений и запоминает тех, чья очередь переполнена.
// Slow connections are torn down by the lifecycle once the current message is done.
type outbox struct {
	connRepo memory.ConnectionRepository
	slow     []models.ConnectionID
}

func newOutbox(connRepo memory.ConnectionRepository) *outbox {
	return &outbox{connRepo: connRepo}
}

func (o *outbox) send(id models.ConnectionID, msg events.Message) bool {
	conn, ok := o.connRepo.Get(id)
	if !ok {
		return false
	}

	if conn.Sink.Send(msg) {
		return true
	}

	slog.Warn(
		"send queue is full",
		slog.String(constant.ConnectionID, id.String()),
		slog.String(constant.Type, msg.Type),
	)
	metric.RecordDrop(metric.DropSlowConsumer)

	if !slices.Contains(o.slow, id) {
		o.slow = append(o.slow, id)
	}

	return false
}

// fanOut sends msg to every participant of the snapshot and returns the number of deliveries.
func (o *outbox) fanOut(targets []models.Participant, msg events.Message) int {
	delivered := 0

	for _, p := range targets {
		if o.send(p.ConnectionID, msg) {
			delivered++
		}
	}

	return delivered
}

func (o *outbox) takeSlow() []models.ConnectionID {
	slow := o.slow
	o.slow = nil
	return slow
}
