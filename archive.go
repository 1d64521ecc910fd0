package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// GameArchiver stores finished games. Rooms call it off their lock.
type GameArchiver interface {
	ArchiveGame(ctx context.Context, game ArchivedGame) error
}

// ArchivedGame is a finished game as handed over by its room.
type ArchivedGame struct {
	ID           string
	RoomCode     string
	Winner       Faction
	Rounds       int
	StartedAt    time.Time
	EndedAt      time.Time
	Participants []Participant
	History      []RoundRecord
}

// GameSummary is one row of the archive listing.
type GameSummary struct {
	ID           string                `db:"id" json:"id"`
	RoomCode     string                `db:"room_code" json:"roomCode"`
	Winner       Faction               `db:"winner" json:"winner"`
	Rounds       int                   `db:"rounds" json:"rounds"`
	StartedAt    int64                 `db:"started_at" json:"startedAt"`
	EndedAt      int64                 `db:"ended_at" json:"endedAt"`
	Participants []ArchivedParticipant `db:"-" json:"participants"`
}

type ArchivedParticipant struct {
	GameID string `db:"game_id" json:"-"`
	ID     string `db:"participant_id" json:"id"`
	Name   string `db:"name" json:"name"`
	Role   Role   `db:"role" json:"role"`
	Alive  bool   `db:"alive" json:"alive"`
	Agent  bool   `db:"agent" json:"agent"`
}

// SQLArchive keeps finished games in SQLite. With the default in-memory DSN
// nothing outlives the process.
type SQLArchive struct {
	db  *sqlx.DB
	log *AppLogger
}

func OpenArchive(dsn string, log *AppLogger) (*SQLArchive, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps a shared
	// in-memory database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	a := &SQLArchive{db: db, log: log}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLArchive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		room_code TEXT NOT NULL,
		winner TEXT NOT NULL,
		rounds INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		history TEXT NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS game_participant (
		game_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		alive INTEGER NOT NULL DEFAULT 0,
		agent INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (game_id) REFERENCES game(id) ON DELETE CASCADE,
		UNIQUE(game_id, participant_id)
	);
	CREATE INDEX IF NOT EXISTS game_ended_at ON game(ended_at);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}

func (a *SQLArchive) ArchiveGame(ctx context.Context, game ArchivedGame) error {
	history, err := json.Marshal(game.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO game (id, room_code, winner, rounds, started_at, ended_at, history) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.RoomCode, game.Winner, game.Rounds, game.StartedAt.Unix(), game.EndedAt.Unix(), string(history))
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, p := range game.Participants {
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO game_participant (game_id, participant_id, name, role, alive, agent)
			 VALUES (:game_id, :participant_id, :name, :role, :alive, :agent)`,
			ArchivedParticipant{GameID: game.ID, ID: p.ID, Name: p.Name, Role: p.Role, Alive: p.Alive, Agent: p.Agent})
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.log.Debug("game archived", zap.String("game", game.ID), zap.String("winner", string(game.Winner)))
	return nil
}

// RecentGames lists the latest finished games, newest first.
func (a *SQLArchive) RecentGames(ctx context.Context, limit int) ([]GameSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	games := []GameSummary{}
	err := a.db.SelectContext(ctx, &games, `
		SELECT id, room_code, winner, rounds, started_at, ended_at
		FROM game
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	for i := range games {
		var players []ArchivedParticipant
		err := a.db.SelectContext(ctx, &players, `
			SELECT game_id, participant_id, name, role, alive, agent
			FROM game_participant
			WHERE game_id = ?
			ORDER BY rowid`, games[i].ID)
		if err != nil {
			return nil, fmt.Errorf("select participants: %w", err)
		}
		games[i].Participants = players
	}
	return games, nil
}

// Prune deletes games that ended before cutoff and returns how many went.
func (a *SQLArchive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM game_participant WHERE game_id IN (SELECT id FROM game WHERE ended_at < ?)`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM game WHERE ended_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// startArchivePruning removes games older than retention once an hour.
func startArchivePruning(a *SQLArchive, retention time.Duration, log *AppLogger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := a.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Error("prune archive", zap.Error(err))
			return
		}
		log.Info("archive pruned", zap.Int64("games_deleted", n))
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
