package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedirectSessionKeyPrefix namespaces open checkout sessions
const RedirectSessionKeyPrefix = "payment:session:"

// RedirectSession remembers what a checkout session was opened for, so the
// return trip can be matched against it.
type RedirectSession struct {
	SessionID     string
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
}

// SessionStore keeps redirect sessions until the patient returns or the TTL lapses
type SessionStore interface {
	Save(ctx context.Context, session RedirectSession, ttl time.Duration) error
	// Get returns the session without removing it; (nil, nil) when unknown or expired
	Get(ctx context.Context, sessionID string) (*RedirectSession, error)
	// Consume returns and removes the session; (nil, nil) when unknown or expired
	Consume(ctx context.Context, sessionID string) (*RedirectSession, error)
}

// consumeSessionScript reads and deletes the hash in one step so a session is
// matched at most once, even if the browser replays the return URL.
var consumeSessionScript = redis.NewScript(`
	local fields = redis.call('HGETALL', KEYS[1])
	if #fields > 0 then
		redis.call('DEL', KEYS[1])
	end
	return fields
`)

type redisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Save(ctx context.Context, session RedirectSession, ttl time.Duration) error {
	key := RedirectSessionKeyPrefix + session.SessionID

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"appointment_id", session.AppointmentID.String(),
		"amount", session.Amount.String(),
	)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save redirect session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (*RedirectSession, error) {
	fields, err := s.client.HGetAll(ctx, RedirectSessionKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, fmt.Errorf("read redirect session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseRedirectSession(sessionID, fields)
}

func (s *redisSessionStore) Consume(ctx context.Context, sessionID string) (*RedirectSession, error) {
	raw, err := consumeSessionScript.Run(ctx, s.client, []string{RedirectSessionKeyPrefix + sessionID}).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume redirect session %s: %w", sessionID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}

	return parseRedirectSession(sessionID, fields)
}

func parseRedirectSession(sessionID string, fields map[string]string) (*RedirectSession, error) {
	appointmentID, err := uuid.Parse(fields["appointment_id"])
	if err != nil {
		return nil, fmt.Errorf("redirect session %s: bad appointment_id: %w", sessionID, err)
	}
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return nil, fmt.Errorf("redirect session %s: bad amount: %w", sessionID, err)
	}
	return &RedirectSession{
		SessionID:     sessionID,
		AppointmentID: appointmentID,
		Amount:        amount,
	}, nil
}
