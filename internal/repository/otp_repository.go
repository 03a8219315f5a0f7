package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
)

// ErrOTPNotFound is returned when no live code exists for an email.
var ErrOTPNotFound = errors.New("otp not found")

const (
	otpKeyPrefix     = "otp:code:"
	otpAttemptPrefix = "otp:attempts:"
	otpLimitPrefix   = "otp:limit:"
)

// OTPRepository keeps one-time login codes and send counters in Redis.
type OTPRepository struct {
	client *redis.Client
}

// NewOTPRepository constructs the repository.
func NewOTPRepository(client *redis.Client) *OTPRepository {
	return &OTPRepository{client: client}
}

func otpKey(email string) string {
	return otpKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

func otpAttemptKey(email string) string {
	return otpAttemptPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Save stores the record, replacing any previous code for the email and resetting its attempt counter.
func (r *OTPRepository) Save(ctx context.Context, email string, record models.OTPRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(email), payload, ttl)
		pipe.Del(ctx, otpAttemptKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

// Get loads the live code for the email.
func (r *OTPRepository) Get(ctx context.Context, email string) (*models.OTPRecord, error) {
	raw, err := r.client.Get(ctx, otpKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("load otp: %w", err)
	}
	var record models.OTPRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode otp: %w", err)
	}
	return &record, nil
}

// RecordAttempt counts one verification attempt for the email and returns the running total.
// The counter is a separate INCR key so concurrent attempts never overwrite each other.
func (r *OTPRepository) RecordAttempt(ctx context.Context, email string, ttl time.Duration) (int64, error) {
	key := otpAttemptKey(email)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count otp attempt: %w", err)
	}
	return incr.Val(), nil
}

// Consume deletes the code and reports whether this call was the one that removed it.
func (r *OTPRepository) Consume(ctx context.Context, email string) (bool, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, otpKey(email))
		pipe.Del(ctx, otpAttemptKey(email))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return del.Val() == 1, nil
}

// Delete removes the code. The attempt counter is left to expire so a locked-out email stays locked.
func (r *OTPRepository) Delete(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// Hit counts one send within a fixed window and returns the running total.
func (r *OTPRepository) Hit(ctx context.Context, email string, window time.Duration) (int64, error) {
	key := otpLimitPrefix + strings.ToLower(strings.TrimSpace(email))
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count otp sends: %w", err)
	}
	return incr.Val(), nil
}
