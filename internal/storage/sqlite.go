package storage

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAggregate(ctx context.Context, date string) (*model.DailyAggregate, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM aggregates WHERE date = ?`, date).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var agg model.DailyAggregate
	if err := json.Unmarshal([]byte(doc), &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *sqliteStore) SaveAggregate(ctx context.Context, agg *model.DailyAggregate) error {
	if agg == nil || agg.Date == "" {
		return errors.New("aggregate without date")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(agg); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aggregates(date, doc, updated_at) VALUES(?,?,?)
		 ON CONFLICT(date) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`,
		agg.Date, buf.String(), agg.LastUpdate.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetPushRecord(ctx context.Context, mode model.Mode, date string) (*model.PushRecord, error) {
	var pushed int
	var lastPush sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT pushed, last_push FROM push_records WHERE mode = ? AND date = ?`,
		string(mode), date,
	).Scan(&pushed, &lastPush)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &model.PushRecord{Mode: string(mode), Date: date, Pushed: pushed != 0}
	if lastPush.Valid && lastPush.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastPush.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt push record timestamp %q: %w", lastPush.String, err)
		}
		rec.LastPush = t
	}
	return rec, nil
}

func (s *sqliteStore) PutPushRecord(ctx context.Context, rec model.PushRecord) error {
	if rec.Mode == "" || rec.Date == "" {
		return errors.New("push record without mode or date")
	}
	pushed := 0
	if rec.Pushed {
		pushed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_records(mode, date, pushed, last_push) VALUES(?,?,?,?)
		 ON CONFLICT(mode, date) DO UPDATE SET pushed=excluded.pushed, last_push=excluded.last_push`,
		rec.Mode, rec.Date, pushed, rec.LastPush.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SweepPushRecords(ctx context.Context, cutoff string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_records WHERE date < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
