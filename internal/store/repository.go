package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/domain"
)

var ErrGameNotFound = errors.New("finished game not found")

//go:embed schema.sql
var schemaSQL string

// Repository persists finished games. Save is an upsert keyed by session id,
// so retrying a save after a partial failure is harmless.
type Repository interface {
	Save(ctx context.Context, g *domain.FinishedGame) (int64, error)
	Get(ctx context.Context, sessionID string) (*domain.FinishedGame, error)
	Recent(ctx context.Context, limit int) ([]*domain.FinishedGame, error)
	Close() error
}

type pgRepository struct {
	db *sql.DB
}

// OpenPostgres opens and pings a postgres database for finished games.
func OpenPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewRepository(db), nil
}

func NewRepository(db *sql.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *pgRepository) Save(ctx context.Context, g *domain.FinishedGame) (int64, error) {
	if g == nil {
		return 0, fmt.Errorf("nil finished game")
	}
	movesUCI, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO arena_games (
			session_id, white, black, white_kind, black_kind,
			time_control, start_fen, result, winner, score, result_method,
			moves_uci, moves_san, pgn,
			white_remaining_ms, black_remaining_ms,
			started_at, ended_at, duration_ms
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::jsonb,$13::jsonb,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (session_id) DO UPDATE SET
			white=EXCLUDED.white,
			black=EXCLUDED.black,
			white_kind=EXCLUDED.white_kind,
			black_kind=EXCLUDED.black_kind,
			time_control=EXCLUDED.time_control,
			start_fen=EXCLUDED.start_fen,
			result=EXCLUDED.result,
			winner=EXCLUDED.winner,
			score=EXCLUDED.score,
			result_method=EXCLUDED.result_method,
			moves_uci=EXCLUDED.moves_uci,
			moves_san=EXCLUDED.moves_san,
			pgn=EXCLUDED.pgn,
			white_remaining_ms=EXCLUDED.white_remaining_ms,
			black_remaining_ms=EXCLUDED.black_remaining_ms,
			started_at=EXCLUDED.started_at,
			ended_at=EXCLUDED.ended_at,
			duration_ms=EXCLUDED.duration_ms
		RETURNING id`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		g.SessionID, g.White, g.Black, g.WhiteKind, g.BlackKind,
		g.TimeControl, g.StartFEN, g.Result, g.Winner, g.Score, g.Method,
		string(movesUCI), string(movesSAN), g.PGN,
		g.WhiteRemaining.Milliseconds(), g.BlackRemaining.Milliseconds(),
		g.StartedAt, g.EndedAt, g.Duration.Milliseconds(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert arena game %s: %w", g.SessionID, err)
	}
	return id, nil
}

const selectColumns = `
	id, session_id, white, black, white_kind, black_kind,
	time_control, start_fen, result, winner, score, result_method,
	moves_uci, moves_san, pgn,
	white_remaining_ms, black_remaining_ms,
	started_at, ended_at, duration_ms`

func (r *pgRepository) Get(ctx context.Context, sessionID string) (*domain.FinishedGame, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM arena_games WHERE session_id = $1`, sessionID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select arena game: %w", err)
	}
	return g, nil
}

func (r *pgRepository) Recent(ctx context.Context, limit int) ([]*domain.FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT`+selectColumns+` FROM arena_games ORDER BY ended_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent arena games: %w", err)
	}
	defer rows.Close()

	var out []*domain.FinishedGame
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan arena game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*domain.FinishedGame, error) {
	var (
		g                  domain.FinishedGame
		movesUCI, movesSAN []byte
		whiteMs, blackMs   int64
		durationMs         int64
	)
	err := s.Scan(
		&g.ID, &g.SessionID, &g.White, &g.Black, &g.WhiteKind, &g.BlackKind,
		&g.TimeControl, &g.StartFEN, &g.Result, &g.Winner, &g.Score, &g.Method,
		&movesUCI, &movesSAN, &g.PGN,
		&whiteMs, &blackMs,
		&g.StartedAt, &g.EndedAt, &durationMs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesUCI, &g.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSAN, &g.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves_san: %w", err)
	}
	g.WhiteRemaining = time.Duration(whiteMs) * time.Millisecond
	g.BlackRemaining = time.Duration(blackMs) * time.Millisecond
	g.Duration = time.Duration(durationMs) * time.Millisecond
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
