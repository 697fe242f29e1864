package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wadispatch/internal/delivery"
	"wadispatch/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (delivery.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite delivery store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, e delivery.Entry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, campaign_name, recipient_name, recipient_phone, message_type,
		 template_name, rendered_message, status, message_id, error, ts)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.CampaignName, nullStr(e.RecipientName), e.RecipientPhone, e.MessageType,
		nullStr(e.TemplateName), nullStr(e.RenderedMessage), string(e.Status),
		nullStr(e.MessageID), nullStr(e.Error), e.Timestamp.UnixNano(),
	)
	return err
}

func (s *sqliteStore) QueryDeliveries(ctx context.Context, f delivery.Filter, limit, offset int) ([]delivery.Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var (
		where []string
		args  []any
	)
	if f.CampaignName != "" {
		where = append(where, "campaign_name = ?")
		args = append(args, f.CampaignName)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Phone != "" {
		where = append(where, "recipient_phone = ?")
		args = append(args, f.Phone)
	}
	q := `SELECT id, campaign_name, recipient_name, recipient_phone, message_type, template_name,
		rendered_message, status, message_id, error, ts FROM deliveries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, seq DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []delivery.Entry{}
	for rows.Next() {
		var (
			e                                   delivery.Entry
			name, tpl, rendered, msgID, errText sql.NullString
			status                              string
			ts                                  int64
		)
		if err := rows.Scan(&e.ID, &e.CampaignName, &name, &e.RecipientPhone, &e.MessageType, &tpl,
			&rendered, &status, &msgID, &errText, &ts); err != nil {
			return nil, err
		}
		e.RecipientName = name.String
		e.TemplateName = tpl.String
		e.RenderedMessage = rendered.String
		e.Status = delivery.Status(status)
		e.MessageID = msgID.String
		e.Error = errText.String
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
