package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/yukbelajar/tryout-backend/internal/logger"
	"github.com/yukbelajar/tryout-backend/pkg/tryoutsync"
)

// Simulates one participant working through a published tryout: join, answer
// every question with local persistence, flag a few, then submit. Useful for
// smoke-testing the event pipeline end to end.
func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "API base URL")
		token    = flag.String("token", "", "Participant JWT")
		tryoutID = flag.String("tryout-id", "", "Published tryout id")
		dbPath   = flag.String("db", "simulate-attempt.db", "Local SQLite backup path")
	)
	flag.Parse()

	log := logger.Setup("debug", "console")

	if *token == "" || *tryoutID == "" {
		fmt.Println("Usage: simulate-attempt -token <jwt> -tryout-id <uuid> [-base-url ...]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	attemptID, err := join(ctx, *baseURL, *token, *tryoutID)
	if err != nil {
		log.Fatal().Err(err).Msg("Join failed")
	}
	log.Info().Str("attempt_id", attemptID).Msg("Joined tryout")

	paper, err := fetchPaper(ctx, *baseURL, *token, *tryoutID)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetch paper failed")
	}

	kv, err := tryoutsync.OpenSQLiteKV(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Open local store failed")
	}
	defer kv.Close()

	subtestIDs := make([]string, len(paper.Subtests))
	durations := make(map[string]int, len(paper.Subtests))
	for i, sub := range paper.Subtests {
		subtestIDs[i] = sub.ID
		durations[sub.ID] = sub.DurationSeconds
	}

	session := tryoutsync.NewSession(
		tryoutsync.NewStore(kv, nil),
		tryoutsync.NewHTTPTransport(*baseURL, *token),
		nil, nil,
		tryoutsync.SessionConfig{
			AttemptID:        attemptID,
			SubtestIDs:       subtestIDs,
			SubtestDurations: durations,
			Flusher: tryoutsync.FlusherConfig{
				Interval: 2 * time.Second,
				Logger:   log,
			},
			Logger: log,
		},
	)
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Session start failed")
	}

	answerPool := []string{"a", "b", "c", "d"}
	for i, sub := range paper.Subtests {
		for _, q := range sub.Questions {
			choice := answerPool[rand.Intn(len(answerPool))]
			if err := session.Answer(ctx, sub.ID, q.ID, choice); err != nil {
				log.Fatal().Err(err).Msg("Answer failed")
			}
			if rand.Intn(5) == 0 {
				if err := session.ToggleFlag(ctx, sub.ID, q.ID, true); err != nil {
					log.Fatal().Err(err).Msg("Flag failed")
				}
			}
			time.Sleep(50 * time.Millisecond)
		}

		if i < len(paper.Subtests)-1 {
			if err := session.NextSubtest(ctx); err != nil {
				log.Fatal().Err(err).Msg("Advance failed")
			}
			log.Info().Int("subtest", i+1).Msg("Advanced to next subtest")
		}
	}

	result, err := session.Submit(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Submit failed")
	}
	log.Info().
		Float64("score", result.Score).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Msg("Attempt completed")
}

// paper mirrors the participant-facing tryout payload.
type paper struct {
	Subtests []struct {
		ID              string `json:"id"`
		DurationSeconds int    `json:"duration_seconds"`
		Questions       []struct {
			ID string `json:"id"`
		} `json:"questions"`
	} `json:"subtests"`
}

func join(ctx context.Context, baseURL, token, tryoutID string) (string, error) {
	var data struct {
		Attempt struct {
			ID string `json:"id"`
		} `json:"attempt"`
	}
	err := call(ctx, http.MethodPost, baseURL+"/api/v1/tryouts/"+tryoutID+"/join", token, &data)
	return data.Attempt.ID, err
}

func fetchPaper(ctx context.Context, baseURL, token, tryoutID string) (*paper, error) {
	var p paper
	if err := call(ctx, http.MethodGet, baseURL+"/api/v1/tryouts/"+tryoutID+"/paper", token, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func call(ctx context.Context, method, url, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("http %d: undecodable response", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Error != nil {
			return fmt.Errorf("http %d: %s (%s)", resp.StatusCode, env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.Unmarshal(env.Data, out)
}
