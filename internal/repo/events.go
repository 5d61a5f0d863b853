package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"buildpass/internal/domain"
)

func (r Repo) ListChainEvents(ctx context.Context, chainID string) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT id,ts,type,chain_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE chain_id=? ORDER BY id ASC`, chainID)
}

// EventsAfter returns up to limit events with id greater than afterID.
func (r Repo) EventsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT id,ts,type,chain_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
}

// RecentEvents returns the newest events in chronological order.
func (r Repo) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	items, err := r.queryEvents(ctx, `SELECT id,ts,type,chain_id,entity_kind,entity_id,actor_id,payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var chainID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &chainID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.ChainID = chainID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// Webhook is a registered event delivery target.
type Webhook struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Secret     string   `json:"secret,omitempty"`
	Active     bool     `json:"active"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

func (r Repo) InsertWebhook(ctx context.Context, w Webhook) error {
	types, err := json.Marshal(orEmpty(w.EventTypes))
	if err != nil {
		return err
	}
	active := 0
	if w.Active {
		active = 1
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO webhooks(id,url,event_types_json,secret,active,created_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.URL, string(types), w.Secret, active, w.CreatedAt)
	return err
}

func (r Repo) ListWebhooks(ctx context.Context, activeOnly bool) ([]Webhook, error) {
	query := `SELECT id,url,event_types_json,secret,active,created_at FROM webhooks ORDER BY created_at ASC`
	if activeOnly {
		query = `SELECT id,url,event_types_json,secret,active,created_at FROM webhooks WHERE active=1 ORDER BY created_at ASC`
	}
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Webhook
	for rows.Next() {
		var w Webhook
		var types string
		var active int
		if err := rows.Scan(&w.ID, &w.URL, &types, &w.Secret, &active, &w.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(types), &w.EventTypes); err != nil {
			return nil, fmt.Errorf("decode event types for webhook %s: %w", w.ID, err)
		}
		w.Active = active != 0
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) WebhookCursor(ctx context.Context, webhookID string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM webhook_cursor WHERE webhook_id=?`, webhookID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, webhookID string, lastEventID int64) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO webhook_cursor(webhook_id,last_event_id) VALUES (?,?)
		 ON CONFLICT(webhook_id) DO UPDATE SET last_event_id=excluded.last_event_id`,
		webhookID, lastEventID)
	return err
}
