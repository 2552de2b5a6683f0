package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barrage-gg/barrage/internal/models"
)

// RecordMatchResult persists a finished round: one row in matches plus one
// row per player in match_results, in a single transaction. Upserts so a
// redelivered queue record is harmless.
func RecordMatchResult(ctx context.Context, pool *pgxpool.Pool, res models.MatchResult) error {
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertMatch := `
			INSERT INTO matches (id, lobby_code, game_mode, map_type, winner_id, ended_at)
			VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
			ON CONFLICT (id) DO NOTHING
		`
		if _, e := tx.Exec(ctx, upsertMatch, res.MatchID, res.LobbyCode, res.GameMode, res.MapType, res.WinnerID, res.EndedAt); e != nil {
			return e
		}

		for _, pr := range res.Players {
			q := `
				INSERT INTO match_results (match_id, player_id, username, kills, deaths, score, won)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (match_id, player_id)
				DO UPDATE SET kills=$4, deaths=$5, score=$6, won=$7
			`
			if _, e := tx.Exec(ctx, q, res.MatchID, pr.PlayerID, pr.Username, pr.Kills, pr.Deaths, pr.Score, pr.Won); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match results: %w", err)
	}
	return nil
}
