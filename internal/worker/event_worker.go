package worker

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yukbelajar/tryout-backend/internal/config"
	ws "github.com/yukbelajar/tryout-backend/internal/websocket"
)

const (
	EventBatchSize    = 200
	EventBatchTimeout = 2 * time.Second
	EventPollTimeout  = 1 * time.Second
)

// EventWorker consumes persist_events_queue and bulk-UPSERTs answer/flag
// events to PostgreSQL. Events may arrive out of order across batches; the
// (client_ts, revision) guard in the UPSERT keeps the newest write per
// question regardless of arrival order.
type EventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "event_worker").Logger(),
	}
}

type eventPayload struct {
	AttemptID  string `json:"attempt_id"`
	TryoutID   string `json:"tryout_id"`
	UserID     int    `json:"user_id"`
	Kind       string `json:"kind"`
	SubtestID  string `json:"subtest_id"`
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id,omitempty"`
	Flagged    bool   `json:"flagged,omitempty"`
	Revision   int64  `json:"revision"`
	ClientTs   int64  `json:"client_ts"`
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	batch := make([]*eventPayload, 0, EventBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= EventBatchSize || time.Since(lastFlush) >= EventBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, EventPollTimeout, config.WorkerKey.PersistEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p eventPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *EventWorker) flushSafe(ctx context.Context, batch []*eventPayload) {
	if len(batch) == 0 {
		return
	}

	answers, flags := splitNewest(batch)

	if err := w.bulkUpsertAnswers(ctx, answers); err != nil {
		w.log.Warn().Err(err).Msg("bulk answer upsert failed, requeueing")
		w.requeue(ctx, answers)
	}
	if err := w.bulkUpsertFlags(ctx, flags); err != nil {
		w.log.Warn().Err(err).Msg("bulk flag upsert failed, requeueing")
		w.requeue(ctx, flags)
	}

	w.publishActivity(ctx, batch)
}

// splitNewest partitions a batch by kind and deduplicates per question,
// keeping only the newest (client_ts, revision) per key. A single INSERT
// cannot touch the same conflict target twice, so in-batch duplicates must
// collapse before the UPSERT.
func splitNewest(batch []*eventPayload) (answers, flags []*eventPayload) {
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].ClientTs != batch[j].ClientTs {
			return batch[i].ClientTs < batch[j].ClientTs
		}
		return batch[i].Revision < batch[j].Revision
	})

	type key struct {
		attemptID, subtestID, questionID, kind string
	}
	newest := make(map[key]*eventPayload, len(batch))
	order := make([]key, 0, len(batch))
	for _, p := range batch {
		k := key{p.AttemptID, p.SubtestID, p.QuestionID, p.Kind}
		if _, seen := newest[k]; !seen {
			order = append(order, k)
		}
		newest[k] = p // sorted ascending, later entries are newer
	}

	for _, k := range order {
		p := newest[k]
		if p.Kind == "flag" {
			flags = append(flags, p)
		} else {
			answers = append(answers, p)
		}
	}
	return answers, flags
}

func (w *EventWorker) bulkUpsertAnswers(ctx context.Context, batch []*eventPayload) error {
	if len(batch) == 0 {
		return nil
	}

	n := len(batch)
	attemptIDs := make([]uuid.UUID, 0, n)
	subtestIDs := make([]uuid.UUID, 0, n)
	questionIDs := make([]uuid.UUID, 0, n)
	answerIDs := make([]string, 0, n)
	revisions := make([]int64, 0, n)
	clientTss := make([]int64, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		sID, err := uuid.Parse(p.SubtestID)
		if err != nil {
			return err
		}
		qID, err := uuid.Parse(p.QuestionID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		subtestIDs = append(subtestIDs, sID)
		questionIDs = append(questionIDs, qID)
		answerIDs = append(answerIDs, p.AnswerID)
		revisions = append(revisions, p.Revision)
		clientTss = append(clientTss, p.ClientTs)
	}

	query := `
		INSERT INTO attempt_answers AS a
			(attempt_id, subtest_id, question_id, answer_id, revision, client_ts)
		SELECT u.attempt_id, u.subtest_id, u.question_id, u.answer_id, u.revision, u.client_ts
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::text[],
			$5::bigint[],
			$6::bigint[]
		) AS u (attempt_id, subtest_id, question_id, answer_id, revision, client_ts)
		ON CONFLICT (attempt_id, subtest_id, question_id) DO UPDATE
		SET answer_id = EXCLUDED.answer_id,
		    revision = EXCLUDED.revision,
		    client_ts = EXCLUDED.client_ts,
		    updated_at = NOW()
		WHERE (a.client_ts, a.revision) < (EXCLUDED.client_ts, EXCLUDED.revision)
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, subtestIDs, questionIDs, answerIDs, revisions, clientTss)
	return err
}

func (w *EventWorker) bulkUpsertFlags(ctx context.Context, batch []*eventPayload) error {
	if len(batch) == 0 {
		return nil
	}

	n := len(batch)
	attemptIDs := make([]uuid.UUID, 0, n)
	subtestIDs := make([]uuid.UUID, 0, n)
	questionIDs := make([]uuid.UUID, 0, n)
	flaggeds := make([]bool, 0, n)
	revisions := make([]int64, 0, n)
	clientTss := make([]int64, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		sID, err := uuid.Parse(p.SubtestID)
		if err != nil {
			return err
		}
		qID, err := uuid.Parse(p.QuestionID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		subtestIDs = append(subtestIDs, sID)
		questionIDs = append(questionIDs, qID)
		flaggeds = append(flaggeds, p.Flagged)
		revisions = append(revisions, p.Revision)
		clientTss = append(clientTss, p.ClientTs)
	}

	query := `
		INSERT INTO attempt_flags AS f
			(attempt_id, subtest_id, question_id, flagged, revision, client_ts)
		SELECT u.attempt_id, u.subtest_id, u.question_id, u.flagged, u.revision, u.client_ts
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::bool[],
			$5::bigint[],
			$6::bigint[]
		) AS u (attempt_id, subtest_id, question_id, flagged, revision, client_ts)
		ON CONFLICT (attempt_id, subtest_id, question_id) DO UPDATE
		SET flagged = EXCLUDED.flagged,
		    revision = EXCLUDED.revision,
		    client_ts = EXCLUDED.client_ts,
		    updated_at = NOW()
		WHERE (f.client_ts, f.revision) < (EXCLUDED.client_ts, EXCLUDED.revision)
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, subtestIDs, questionIDs, flaggeds, revisions, clientTss)
	return err
}

func (w *EventWorker) requeue(ctx context.Context, batch []*eventPayload) {
	for _, p := range batch {
		raw, _ := json.Marshal(p)
		w.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, raw)
	}
}

// publishActivity notifies attached operator monitors how many events each
// attempt just persisted.
func (w *EventWorker) publishActivity(ctx context.Context, batch []*eventPayload) {
	type activity struct {
		tryoutID string
		userID   int
		count    int
	}
	perAttempt := make(map[string]*activity)
	for _, p := range batch {
		act, ok := perAttempt[p.AttemptID]
		if !ok {
			act = &activity{tryoutID: p.TryoutID, userID: p.UserID}
			perAttempt[p.AttemptID] = act
		}
		act.count++
	}

	pipe := w.rdb.Pipeline()
	for attemptID, act := range perAttempt {
		payload, _ := json.Marshal(ws.ActivityResponse{
			Event: ws.EventActivity,
			Payload: map[string]interface{}{
				"type":        "events_persisted",
				"attempt_id":  attemptID,
				"user_id":     act.userID,
				"event_count": act.count,
			},
		})
		pipe.Publish(ctx, config.CacheKey.TryoutMonitorChannel(act.tryoutID), payload)
	}
	_, _ = pipe.Exec(ctx)
}
