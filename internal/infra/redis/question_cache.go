package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-competition-service/internal/domain"
)

// QuestionLoader fetches a competition's question set from the backing
// store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, competitionID string) ([]domain.Question, error)
}

// QuestionCache keeps generated question sets in Redis so graders on every
// instance avoid re-reading the competition row. Key:
// competition:{id}:questions holding the JSON-encoded set.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	key := c.key(competitionID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil && len(raw) > 0 {
		return decodeQuestions(raw)
	}

	result, err, _ := c.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache meanwhile.
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil && len(raw) > 0 {
			return decodeQuestions(raw)
		}

		questions, err := c.loader.LoadQuestions(ctx, competitionID)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode questions: %w", err)
		}
		_ = c.client.Set(ctx, key, encoded, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set, e.g. after a competition is cancelled.
func (c *QuestionCache) Invalidate(ctx context.Context, competitionID string) {
	_ = c.client.Del(ctx, c.key(competitionID)).Err()
}

func (c *QuestionCache) key(competitionID string) string {
	return "competition:" + competitionID + ":questions"
}

func decodeQuestions(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode cached questions: %w", err)
	}
	return questions, nil
}

// ttlWithJitter adds up to 10% jitter to spread expirations.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
