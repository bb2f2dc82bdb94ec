package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TryoutPaperKey returns the cache key for a tryout's participant-facing paper.
func (r *CacheKeyStruct) TryoutPaperKey(tryoutID string) string {
	return fmt.Sprintf("tryout:%s:paper", tryoutID)
}

// SubtestAnswerKeyKey returns the cache key for a subtest's answer key hash.
func (r *CacheKeyStruct) SubtestAnswerKeyKey(subtestID string) string {
	return fmt.Sprintf("subtest:%s:key", subtestID)
}

// AttemptAnswersKey returns the cache key for an attempt's applied answers.
// Hash field is "<subtest_id>:<question_id>", value is the chosen answer id.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptFlagsKey returns the cache key for an attempt's review flags.
func (r *CacheKeyStruct) AttemptFlagsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:flags", attemptID)
}

// AttemptRevisionsKey returns the cache key for an attempt's per-question
// freshness markers ("<client_ts_ms>:<revision>").
func (r *CacheKeyStruct) AttemptRevisionsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:revisions", attemptID)
}

// AttemptSubtestStartKey returns the cache key for the start time of an
// attempt's current subtest.
func (r *CacheKeyStruct) AttemptSubtestStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:subtest_start", attemptID)
}

// AttemptSubmittedKey returns the once-only submission guard key for an attempt.
func (r *CacheKeyStruct) AttemptSubmittedKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:submitted", attemptID)
}

// UserActiveAttemptKey returns the cache key for a user's currently active attempt.
func (r *CacheKeyStruct) UserActiveAttemptKey(userID int) string {
	return fmt.Sprintf("user:%d:active_attempt", userID)
}

// TryoutMonitorChannel returns the Redis PubSub channel name for a tryout monitor.
func (r *CacheKeyStruct) TryoutMonitorChannel(tryoutID string) string {
	return fmt.Sprintf("tryout:%s:monitor", tryoutID)
}

var CacheKey = NewCacheKeyStruct()
