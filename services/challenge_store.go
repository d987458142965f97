package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerificationChallenge is the short-lived server side of a phone
// verification attempt. Only the bcrypt hash of the OTP is stored.
type VerificationChallenge struct {
	Phone    string `json:"phone"`
	CodeHash string `json:"code_hash"`
}

// ChallengeStore keeps pending verification challenges keyed by handle.
type ChallengeStore interface {
	Save(ctx context.Context, handle string, challenge VerificationChallenge, ttl time.Duration) error
	Get(ctx context.Context, handle string) (*VerificationChallenge, error)
	Delete(ctx context.Context, handle string) error
}

const challengeKeyPrefix = "verification:challenge:"

// RedisChallengeStore backs challenges with Redis so the TTL handles expiry.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Save(ctx context.Context, handle string, challenge VerificationChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode verification challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKeyPrefix+handle, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save verification challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, handle string) (*VerificationChallenge, error) {
	raw, err := s.client.Get(ctx, challengeKeyPrefix+handle).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeInvalid
		}
		return nil, fmt.Errorf("failed to load verification challenge: %w", err)
	}
	var challenge VerificationChallenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode verification challenge: %w", err)
	}
	return &challenge, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, handle string) error {
	if err := s.client.Del(ctx, challengeKeyPrefix+handle).Err(); err != nil {
		return fmt.Errorf("failed to delete verification challenge: %w", err)
	}
	return nil
}
