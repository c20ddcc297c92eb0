package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/godilite/sentiment-sync/internal/domain"
	"github.com/godilite/sentiment-sync/internal/repository/models"
)

// Schema holds the idempotent statements the store needs; pass it to
// database.WithMigrations.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS unsolved_tickets (
		id             TEXT PRIMARY KEY,
		status         TEXT NOT NULL,
		subject        TEXT NOT NULL DEFAULT '',
		score          REAL,
		requester_id   TEXT NOT NULL DEFAULT '',
		requester_name TEXT NOT NULL DEFAULT '',
		assignee_id    TEXT NOT NULL DEFAULT '',
		assignee_name  TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		analyzed_at    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_unsolved_tickets_created_at ON unsolved_tickets (created_at)`,
}

// TicketStore is the SQLite shadow copy of unsolved tickets and their scores.
type TicketStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db, now: time.Now}
}

// Upsert inserts or replaces a ticket. A nil score never overwrites a stored one.
func (s *TicketStore) Upsert(ctx context.Context, t domain.Ticket) error {
	const query = `
		INSERT INTO unsolved_tickets (
			id, status, subject, score, requester_id, requester_name,
			assignee_id, assignee_name, created_at, updated_at, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status         = excluded.status,
			subject        = excluded.subject,
			score          = COALESCE(excluded.score, unsolved_tickets.score),
			requester_id   = excluded.requester_id,
			requester_name = excluded.requester_name,
			assignee_id    = excluded.assignee_id,
			assignee_name  = excluded.assignee_name,
			created_at     = excluded.created_at,
			updated_at     = excluded.updated_at,
			analyzed_at    = COALESCE(excluded.analyzed_at, unsolved_tickets.analyzed_at)
	`

	row := toRow(t)
	if t.Score != nil {
		row.AnalyzedAt = sql.NullString{String: formatTime(s.now()), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		row.ID, row.Status, row.Subject, row.Score, row.RequesterID, row.RequesterName,
		row.AssigneeID, row.AssigneeName, row.CreatedAt, row.UpdatedAt, row.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("upsert ticket %s: %w", t.ID, err)
	}
	return nil
}

// Delete removes a ticket; deleting an absent ticket is not an error.
func (s *TicketStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM unsolved_tickets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete ticket %s: %w", id, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the ticket is not cached.
func (s *TicketStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	const query = `
		SELECT id, status, subject, score, requester_id, requester_name,
		       assignee_id, assignee_name, created_at, updated_at, analyzed_at
		FROM unsolved_tickets WHERE id = ?
	`

	var r models.TicketRow
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Status, &r.Subject, &r.Score, &r.RequesterID, &r.RequesterName,
		&r.AssigneeID, &r.AssigneeName, &r.CreatedAt, &r.UpdatedAt, &r.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return fromRow(r)
}

// ListActive returns every cached ticket ordered by creation time.
func (s *TicketStore) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
		SELECT id, status, subject, score, requester_id, requester_name,
		       assignee_id, assignee_name, created_at, updated_at, analyzed_at
		FROM unsolved_tickets
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ListActive: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var r models.TicketRow
		if err := rows.Scan(
			&r.ID, &r.Status, &r.Subject, &r.Score, &r.RequesterID, &r.RequesterName,
			&r.AssigneeID, &r.AssigneeName, &r.CreatedAt, &r.UpdatedAt, &r.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan ListActive row: %w", err)
		}
		t, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListActive: %w", err)
	}
	return out, nil
}

// IDs returns the ids of every cached ticket.
func (s *TicketStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM unsolved_tickets`)
	if err != nil {
		return nil, fmt.Errorf("query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan IDs row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of cached tickets.
func (s *TicketStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unsolved_tickets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

func toRow(t domain.Ticket) models.TicketRow {
	r := models.TicketRow{
		ID:        t.ID,
		Status:    string(t.Status),
		Subject:   t.Subject,
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
	if t.Score != nil {
		r.Score = sql.NullFloat64{Float64: *t.Score, Valid: true}
	}
	if t.Requester != nil {
		r.RequesterID, r.RequesterName = t.Requester.ID, t.Requester.Name
	}
	if t.Assignee != nil {
		r.AssigneeID, r.AssigneeName = t.Assignee.ID, t.Assignee.Name
	}
	return r
}

func fromRow(r models.TicketRow) (domain.Ticket, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %s created_at: %w", r.ID, err)
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %s updated_at: %w", r.ID, err)
	}

	t := domain.Ticket{
		ID:        r.ID,
		Status:    domain.TicketStatus(r.Status),
		Subject:   r.Subject,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if r.Score.Valid {
		score := r.Score.Float64
		t.Score = &score
	}
	if r.RequesterID != "" {
		t.Requester = &domain.Person{ID: r.RequesterID, Name: r.RequesterName}
	}
	if r.AssigneeID != "" {
		t.Assignee = &domain.Person{ID: r.AssigneeID, Name: r.AssigneeName}
	}
	return t, nil
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
