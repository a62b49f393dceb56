package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"bidding-core/internal/domain"
)

// EventArchive appends committed auction events for later analysis.
type EventArchive struct {
	db *sql.DB
}

var _ domain.EventArchive = (*EventArchive)(nil)

func NewEventArchive(db *sql.DB) *EventArchive {
	return &EventArchive{db: db}
}

func (r *EventArchive) SaveEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO auction_events (auction_id, event_type, version, payload, occurred_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err = r.db.ExecContext(ctx, query,
		event.AuctionID, string(event.Type), event.Version, payload, event.Timestamp, time.Now())
	return mapError(err)
}

func (r *EventArchive) GetEvents(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	query := `
        SELECT payload
        FROM auction_events
        WHERE auction_id = ?
        ORDER BY version ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	events := []*domain.AuctionEvent{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, mapError(err)
		}

		var event domain.AuctionEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}
