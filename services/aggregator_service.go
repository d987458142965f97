package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/stream"
)

// AggregatorService derives live counts from the authoritative attendance
// set. Every change notification triggers a full recompute — never an
// incremental counter update, so reordered or duplicated notifications can
// not make the displayed counts drift.
type AggregatorService struct {
	store  store.DocumentStore
	logger *slog.Logger
}

func NewAggregatorService(documentStore store.DocumentStore, logger *slog.Logger) *AggregatorService {
	return &AggregatorService{store: documentStore, logger: logger}
}

// CountsSubscription is a live, caller-cancelled stream of aggregate counts.
type CountsSubscription struct {
	updates chan models.AggregateCounts
	cancel  func()
}

func (s *CountsSubscription) Updates() <-chan models.AggregateCounts { return s.updates }
func (s *CountsSubscription) Cancel()                                { s.cancel() }

// Subscribe starts a counts stream for one event. The first value arrives
// immediately; the stream ends when the caller cancels or ctx is done.
func (a *AggregatorService) Subscribe(ctx context.Context, eventID string) (*CountsSubscription, error) {
	inner, err := a.store.SubscribeCollection(ctx, AttendeesCollection(eventID))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe to attendance: %v", ErrPersistenceFailed, err)
	}

	sub := &CountsSubscription{
		updates: make(chan models.AggregateCounts, 1),
		cancel:  inner.Cancel,
	}

	go func() {
		defer close(sub.updates)
		for {
			select {
			case <-ctx.Done():
				inner.Cancel()
				return
			case docs, ok := <-inner.Updates():
				if !ok {
					return
				}
				counts := Reduce(docs)
				// Важен только последний снимок: вытесняем непрочитанный.
				select {
				case sub.updates <- counts:
				default:
					select {
					case <-sub.updates:
					default:
					}
					select {
					case sub.updates <- counts:
					default:
					}
				}
			}
		}
	}()

	return sub, nil
}

// Snapshot recomputes the counts once from the current record set.
func (a *AggregatorService) Snapshot(ctx context.Context, eventID string) (models.AggregateCounts, error) {
	docs, err := a.store.List(ctx, AttendeesCollection(eventID))
	if err != nil {
		return models.AggregateCounts{}, fmt.Errorf("%w: failed to read attendance: %v", ErrPersistenceFailed, err)
	}
	return Reduce(docs), nil
}

// Reduce scans the full record set and tallies by side. Total is the set
// cardinality regardless of side validity.
func Reduce(docs []store.Document) models.AggregateCounts {
	var counts models.AggregateCounts
	for _, doc := range docs {
		counts.Total++
		switch models.Side(doc.String("side")) {
		case models.SideA:
			counts.ACount++
		case models.SideB:
			counts.BCount++
		}
	}
	return counts
}

// RunEventFeeds keeps one subscription per catalog event and forwards every
// emission into the websocket hub room of that event. Blocks until ctx ends.
func (a *AggregatorService) RunEventFeeds(ctx context.Context, catalog *EventCatalog, hub *stream.Hub) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ev := range catalog.List() {
		eventID := ev.ID
		g.Go(func() error {
			sub, err := a.Subscribe(ctx, eventID)
			if err != nil {
				return err
			}
			defer sub.Cancel()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case counts, ok := <-sub.Updates():
					if !ok {
						return nil
					}
					hub.BroadcastToRoom(EventRoom(eventID), stream.Message{
						Type: "COUNTS_UPDATED",
						Room: EventRoom(eventID),
						Payload: map[string]interface{}{
							"event_id": eventID,
							"counts":   counts,
						},
					})
				}
			}
		})
	}
	return g.Wait()
}

// EventRoom names the hub room carrying one event's live counts.
func EventRoom(eventID string) string {
	return "event_" + eventID
}
