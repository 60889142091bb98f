package storage

// sqlite.go — registro de auditoría de sesión.
//
// Estrategia:
//   - `trades`: una fila por trade resuelto. Es el histórico que permite
//     reconstruir el PnL de la sesión tras un reinicio.
//   - `halts`: una fila por trip/reset del circuit breaker. Nunca se
//     sobreescriben — el orden de los trips es parte de la auditoría.
//   - `heartbeats`: snapshot periódico ligero (~60 bytes por fila).
//   - Prune automático al arrancar: heartbeats > 7d, trades y halts > 90d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un trade resuelto por fila
CREATE TABLE IF NOT EXISTS trades (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    ts         DATETIME NOT NULL,
    won        INTEGER  NOT NULL,
    pnl        REAL     NOT NULL,
    coin       TEXT     NOT NULL,
    market_id  TEXT     NOT NULL DEFAULT '',
    note       TEXT     NOT NULL DEFAULT ''
);

-- Eventos de trip/reset del circuit breaker
CREATE TABLE IF NOT EXISTS halts (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    ts                 DATETIME NOT NULL,
    kind               TEXT     NOT NULL,
    reason             TEXT     NOT NULL DEFAULT '',
    message            TEXT     NOT NULL DEFAULT '',
    consecutive_losses INTEGER  NOT NULL DEFAULT 0,
    session_pnl        REAL     NOT NULL DEFAULT 0,
    elapsed_minutes    REAL     NOT NULL DEFAULT 0
);

-- Snapshot periódico de la sesión
CREATE TABLE IF NOT EXISTS heartbeats (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    ts              DATETIME NOT NULL,
    balance         REAL     NOT NULL,
    session_pnl     REAL     NOT NULL,
    session_pnl_pct REAL     NOT NULL,
    open_positions  INTEGER  NOT NULL,
    exposure_usd    REAL     NOT NULL,
    trades_seen     INTEGER  NOT NULL,
    trading_open    INTEGER  NOT NULL,
    trip_reason     TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_ts     ON trades(ts DESC);
CREATE INDEX IF NOT EXISTS idx_halts_ts      ON halts(ts DESC);
CREATE INDEX IF NOT EXISTS idx_heartbeats_ts ON heartbeats(ts DESC);
`

const (
	retentionAudit      = 90 * 24 * time.Hour // trades y halts: 90 días
	retentionHeartbeats = 7 * 24 * time.Hour  // heartbeats: 7 días
)

// SQLiteSessionStore implementa ports.SessionStore usando SQLite
// (pure Go, sin CGo).
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteSessionStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteSessionStore: apply schema: %w", err)
	}

	s := &SQLiteSessionStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade persiste un trade resuelto.
func (s *SQLiteSessionStore) SaveTrade(ctx context.Context, t domain.TradeResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (ts, won, pnl, coin, market_id, note)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Timestamp.UTC(), boolToInt(t.Won), t.PnL, t.Coin, t.MarketID, t.Note,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// SaveHalt persiste un evento de trip/reset.
func (s *SQLiteSessionStore) SaveHalt(ctx context.Context, h domain.HaltRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO halts (ts, kind, reason, message, consecutive_losses, session_pnl, elapsed_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.Timestamp.UTC(), h.Kind, h.Reason, h.Message, h.ConsecutiveLosses, h.SessionPnL, h.ElapsedMinutes,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveHalt: %w", err)
	}
	return nil
}

// SaveHeartbeat persiste el snapshot periódico.
func (s *SQLiteSessionStore) SaveHeartbeat(ctx context.Context, hb domain.HeartbeatRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeats (ts, balance, session_pnl, session_pnl_pct, open_positions, exposure_usd, trades_seen, trading_open, trip_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.Timestamp.UTC(), hb.Balance, hb.SessionPnL, hb.SessionPnLPct,
		hb.OpenPositions, hb.ExposureUSD, hb.TradesSeen, boolToInt(hb.TradingOpen), hb.TripReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveHeartbeat: %w", err)
	}
	return nil
}

// RecentTrades devuelve los últimos trades, el más reciente primero.
func (s *SQLiteSessionStore) RecentTrades(ctx context.Context, limit int) ([]domain.TradeResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, won, pnl, coin, market_id, note
		FROM trades ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTrades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeResult
	for rows.Next() {
		var t domain.TradeResult
		var won int
		if err := rows.Scan(&t.Timestamp, &won, &t.PnL, &t.Coin, &t.MarketID, &t.Note); err != nil {
			return nil, fmt.Errorf("storage.RecentTrades: scan: %w", err)
		}
		t.Won = won != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

// pruneOld borra filas fuera de la ventana de retención. Best effort:
// un fallo aquí no impide arrancar.
func (s *SQLiteSessionStore) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE ts < ?`, now.Add(-retentionAudit))
	s.db.ExecContext(ctx, `DELETE FROM halts WHERE ts < ?`, now.Add(-retentionAudit))
	s.db.ExecContext(ctx, `DELETE FROM heartbeats WHERE ts < ?`, now.Add(-retentionHeartbeats))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
