package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/database"
	"github.com/yukbelajar/tryout-backend/internal/logger"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/repository"
	"github.com/yukbelajar/tryout-backend/internal/service"
)

// Seeds one published tryout with two subtests and a handful of questions.
// Meant for local development and the attempt simulator.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	tryoutRepo := repository.NewTryoutRepository(pool)
	tryoutService := service.NewTryoutService(tryoutRepo, rdb, log)

	fmt.Println("=== Seeding Tryout UTBK Saintek ===")

	opensAt := time.Now().Add(-time.Hour)
	closesAt := time.Now().Add(7 * 24 * time.Hour)
	tryout := &model.Tryout{
		Title:       "Tryout UTBK Saintek Batch 1",
		Description: "Simulasi UTBK untuk persiapan SNBT.",
		OpensAt:     &opensAt,
		ClosesAt:    &closesAt,
	}
	if err := tryoutService.Create(ctx, tryout); err != nil {
		log.Fatal().Err(err).Msg("Failed to create tryout")
	}
	fmt.Printf("Created tryout %s\n", tryout.ID)

	subtestNames := []string{"Penalaran Umum", "Pengetahuan Kuantitatif"}
	options := json.RawMessage(`[{"id":"a","text":"Pilihan A"},{"id":"b","text":"Pilihan B"},{"id":"c","text":"Pilihan C"},{"id":"d","text":"Pilihan D"}]`)

	for i, name := range subtestNames {
		sub := &model.Subtest{
			TryoutID:        tryout.ID,
			Name:            name,
			OrderNum:        i + 1,
			DurationSeconds: 1800,
		}
		if err := tryoutService.AddSubtest(ctx, sub); err != nil {
			log.Fatal().Err(err).Msg("Failed to create subtest")
		}

		for q := 1; q <= 10; q++ {
			question := &model.Question{
				SubtestID:     sub.ID,
				QuestionText:  fmt.Sprintf("Soal %d untuk %s", q, name),
				Options:       options,
				CorrectOption: "a",
				OrderNum:      q,
			}
			if err := tryoutService.AddQuestion(ctx, question); err != nil {
				log.Fatal().Err(err).Msg("Failed to create question")
			}
		}
		fmt.Printf("Created subtest %q with 10 questions\n", name)
	}

	if err := tryoutService.Publish(ctx, tryout.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish tryout")
	}

	fmt.Printf("\nSeed completed! Tryout %s is published.\n", tryout.ID)
}
