package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yukbelajar/tryout-backend/internal/config"
	ws "github.com/yukbelajar/tryout-backend/internal/websocket"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoringWorker consumes persist_scores_queue, bulk-finalizes attempts in
// PostgreSQL and clears their Redis fast-lane state.
type ScoringWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewScoringWorker creates a new ScoringWorker.
func NewScoringWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "scoring_worker").Logger(),
	}
}

type scorePayload struct {
	AttemptID string  `json:"attempt_id"`
	TryoutID  string  `json:"tryout_id"`
	UserID    int     `json:"user_id"`
	Score     float64 `json:"score"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]*scorePayload, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p scorePayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []*scorePayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkFinalizeAttempts(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk finalize failed, using fallback")

		for _, p := range batch {
			if err := w.finalizeSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("finalizeSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
			}
		}
		return
	}

	// After durable finalize → the Redis working state can go
	w.bulkClearAttemptState(ctx, batch)
	w.publishCompletions(ctx, batch)
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *ScoringWorker) bulkFinalizeAttempts(ctx context.Context, batch []*scorePayload) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	finishedAts := make([]time.Time, n)

	now := time.Now()
	for i, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		scores = append(scores, p.Score)
		finishedAts[i] = now
	}

	query := `
		UPDATE attempts AS a
		SET status = 'COMPLETED',
		    final_score = t.score,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.attempt_id,
				u.score,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::timestamptz[]
			) AS u (attempt_id, score, finished_at)
		) AS t
		WHERE a.id = t.attempt_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, scores, finishedAts)
	return err
}

// ----------------------------------------------------------------
// BULK Redis DEL for clearing attempt working state
// ----------------------------------------------------------------

func (w *ScoringWorker) bulkClearAttemptState(ctx context.Context, batch []*scorePayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		pipe.Del(ctx,
			config.CacheKey.AttemptAnswersKey(p.AttemptID),
			config.CacheKey.AttemptFlagsKey(p.AttemptID),
			config.CacheKey.AttemptRevisionsKey(p.AttemptID),
			config.CacheKey.AttemptSubtestStartKey(p.AttemptID),
		)
		pipe.Del(ctx, config.CacheKey.UserActiveAttemptKey(p.UserID))
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// Monitor notifications
// ----------------------------------------------------------------

func (w *ScoringWorker) publishCompletions(ctx context.Context, batch []*scorePayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		payload, _ := json.Marshal(ws.ActivityResponse{
			Event: ws.EventActivity,
			Payload: map[string]interface{}{
				"type":       "attempt_completed",
				"attempt_id": p.AttemptID,
				"user_id":    p.UserID,
				"score":      p.Score,
			},
		})
		pipe.Publish(ctx, config.CacheKey.TryoutMonitorChannel(p.TryoutID), payload)
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *ScoringWorker) finalizeSingle(ctx context.Context, p *scorePayload) error {
	aID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = 'COMPLETED',
		     final_score = $1,
		     finished_at = NOW()
		 WHERE id = $2 AND status = 'IN_PROGRESS'`,
		p.Score, aID,
	)

	return err
}
