package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testCatalogJSON = `[
  {
    "id": "mex-jpn-2025",
    "title": "México vs Japón",
    "league": "Amistoso Internacional",
    "start_time": "2025-09-06T19:00:00-07:00",
    "venue": {"name": "Oakland Coliseum", "city": "Oakland, CA"},
    "side_labels": {"a": "México", "b": "Japón"}
  },
  {
    "id": "canelo-crawford-2025",
    "title": "Canelo vs Crawford",
    "league": "Boxeo",
    "start_time": "2025-09-13T18:00:00-07:00",
    "venue": {"name": "Allegiant Stadium", "city": "Las Vegas, NV"},
    "side_labels": {"a": "Canelo", "b": "Crawford"}
  }
]`

func newTestCatalog(t *testing.T) *EventCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogJSON), 0o600))
	catalog, err := LoadEventCatalog(path)
	require.NoError(t, err)
	return catalog
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway captures outgoing messages and optionally fails every send.
type fakeGateway struct {
	mu    sync.Mutex
	sent  []fakeMessage
	fail  bool
	errTo error
}

type fakeMessage struct {
	To   string
	Body string
}

func (g *fakeGateway) Send(ctx context.Context, toE164, body string) (DeliveryOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		err := g.errTo
		if err == nil {
			err = errors.New("provider unreachable")
		}
		return DeliveryOutcome{}, err
	}
	g.sent = append(g.sent, fakeMessage{To: toE164, Body: body})
	return DeliveryOutcome{OK: true, ProviderRef: "SM-test"}, nil
}

func (g *fakeGateway) messages() []fakeMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]fakeMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

// memChallengeStore is the in-process ChallengeStore used by the tests.
type memChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]VerificationChallenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{challenges: make(map[string]VerificationChallenge)}
}

func (s *memChallengeStore) Save(ctx context.Context, handle string, challenge VerificationChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[handle] = challenge
	return nil
}

func (s *memChallengeStore) Get(ctx context.Context, handle string) (*VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[handle]
	if !ok {
		return nil, ErrChallengeInvalid
	}
	return &challenge, nil
}

func (s *memChallengeStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, handle)
	return nil
}

func (s *memChallengeStore) has(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.challenges[handle]
	return ok
}
