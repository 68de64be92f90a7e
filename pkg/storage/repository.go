// Package storage mirrors live sessions and items to PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// DBTX is the part of *pgxpool.Pool the repository uses. A pgx.Tx also
// satisfies it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionRecord is a mirrored session.
type SessionRecord struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`
	ItemCount int        `json:"item_count" yaml:"item_count"`
}

// ItemQuery selects mirrored items. SessionID is required.
type ItemQuery struct {
	SessionID        string
	Category         phrases.Category
	Status           live.Status
	IncludeDismissed bool
	Limit            int
}

// Repository implements live.Store on PostgreSQL.
type Repository struct {
	db     DBTX
	logger logging.Logger
}

var _ live.Store = (*Repository)(nil)

// NewRepository creates a repository over db, usually a *pgxpool.Pool.
func NewRepository(db DBTX, logger logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{
		db:     db,
		logger: logger.With(logging.F("component", "live_repository")),
	}
}

// SaveSession records a session, updating the title if it already exists.
func (r *Repository) SaveSession(ctx context.Context, info live.Info) error {
	query := `
		INSERT INTO live_sessions (id, title, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`
	if _, err := r.db.Exec(ctx, query, info.ID, info.Title, info.CreatedAt); err != nil {
		return fmt.Errorf("failed to save session %s: %w", info.ID, err)
	}
	return nil
}

// CloseSession stamps a session's closing time.
func (r *Repository) CloseSession(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE live_sessions SET closed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", plerrors.ErrNotFound, id)
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT s.id, s.title, s.created_at, s.closed_at, COUNT(i.id)
		FROM live_sessions s
		LEFT JOIN live_items i ON i.session_id = s.id
		GROUP BY s.id, s.title, s.created_at, s.closed_at
		ORDER BY s.created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var s SessionRecord
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.ClosedAt, &s.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertItem implements live.Store.
func (r *Repository) InsertItem(ctx context.Context, sessionID string, it live.Item) error {
	phraseJSON, err := json.Marshal(it.Phrase)
	if err != nil {
		return fmt.Errorf("failed to marshal phrase: %w", err)
	}

	query := `
		INSERT INTO live_items (
			id, session_id, category, phrase, enhanced_content,
			owner, priority, due_date, confidence, is_enhanced,
			status, edited_fields, enhance_error, version, timestamp_ms,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)
	`
	_, err = r.db.Exec(ctx, query,
		it.ID,
		sessionID,
		string(it.Phrase.Category),
		phraseJSON,
		it.EnhancedContent,
		it.Owner,
		string(it.Priority),
		it.DueDate,
		it.Confidence,
		it.IsEnhanced,
		string(it.Status),
		editedFields(it),
		it.EnhanceError,
		it.Version,
		it.Phrase.TimestampMs,
		it.CreatedAt,
		it.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert item",
			logging.Err(err),
			logging.F("session_id", sessionID),
			logging.F("item_id", it.ID))
		return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
	}

	r.logger.Debug("Item inserted",
		logging.F("session_id", sessionID),
		logging.F("item_id", it.ID),
		logging.F("category", it.Phrase.Category))
	return nil
}

// UpdateItem implements live.Store. The phrase itself never changes and is
// not rewritten.
func (r *Repository) UpdateItem(ctx context.Context, sessionID string, it live.Item) error {
	query := `
		UPDATE live_items SET
			enhanced_content = $3,
			owner = $4,
			priority = $5,
			due_date = $6,
			confidence = $7,
			is_enhanced = $8,
			status = $9,
			edited_fields = $10,
			enhance_error = $11,
			version = $12,
			updated_at = $13
		WHERE id = $1 AND session_id = $2
	`
	tag, err := r.db.Exec(ctx, query,
		it.ID,
		sessionID,
		it.EnhancedContent,
		it.Owner,
		string(it.Priority),
		it.DueDate,
		it.Confidence,
		it.IsEnhanced,
		string(it.Status),
		editedFields(it),
		it.EnhanceError,
		it.Version,
		it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", plerrors.ErrNotFound, it.ID)
	}
	return nil
}

// DeleteItem implements live.Store. Deleting a missing item is not an error.
func (r *Repository) DeleteItem(ctx context.Context, sessionID, itemID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM live_items WHERE id = $1 AND session_id = $2`, itemID, sessionID); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}
	return nil
}

// DeleteSessionItems implements live.Store.
func (r *Repository) DeleteSessionItems(ctx context.Context, sessionID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM live_items WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete items for session %s: %w", sessionID, err)
	}
	r.logger.Debug("Session items deleted",
		logging.F("session_id", sessionID),
		logging.F("count", tag.RowsAffected()))
	return nil
}

// GetItem loads one mirrored item.
func (r *Repository) GetItem(ctx context.Context, sessionID, itemID string) (live.Item, error) {
	row := r.db.QueryRow(ctx, selectItems+` WHERE session_id = $1 AND id = $2`, sessionID, itemID)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return live.Item{}, fmt.Errorf("%w: item %s", plerrors.ErrNotFound, itemID)
	}
	return it, err
}

// ListItems returns a session's mirrored items in detection order.
func (r *Repository) ListItems(ctx context.Context, q ItemQuery) ([]live.Item, error) {
	if q.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", plerrors.ErrValidation)
	}

	where, args := buildItemFilter(q)
	query := selectItems + " WHERE " + where + " ORDER BY timestamp_ms, created_at"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var out []live.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const selectItems = `
	SELECT id, session_id, phrase, enhanced_content, owner, priority, due_date,
		confidence, is_enhanced, status, edited_fields, enhance_error, version,
		created_at, updated_at
	FROM live_items`

func buildItemFilter(q ItemQuery) (string, []any) {
	conds := []string{"session_id = $1"}
	args := []any{q.SessionID}

	if q.Category != "" {
		args = append(args, string(q.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	} else if !q.IncludeDismissed {
		args = append(args, string(live.StatusDismissed))
		conds = append(conds, fmt.Sprintf("status <> $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func scanItem(row pgx.Row) (live.Item, error) {
	var (
		it         live.Item
		phraseJSON []byte
		priority   string
		status     string
	)
	err := row.Scan(
		&it.ID,
		&it.SessionID,
		&phraseJSON,
		&it.EnhancedContent,
		&it.Owner,
		&priority,
		&it.DueDate,
		&it.Confidence,
		&it.IsEnhanced,
		&status,
		&it.EditedFields,
		&it.EnhanceError,
		&it.Version,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return live.Item{}, err
		}
		return live.Item{}, fmt.Errorf("failed to scan item: %w", err)
	}
	if err := json.Unmarshal(phraseJSON, &it.Phrase); err != nil {
		return live.Item{}, fmt.Errorf("failed to unmarshal phrase for item %s: %w", it.ID, err)
	}
	it.Priority = phrases.Priority(priority)
	it.Status = live.Status(status)
	if len(it.EditedFields) == 0 {
		it.EditedFields = nil
	}
	return it, nil
}

func editedFields(it live.Item) []string {
	if it.EditedFields == nil {
		return []string{}
	}
	return it.EditedFields
}
