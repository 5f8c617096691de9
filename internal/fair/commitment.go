package fair

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"go-fairplay/internal/config"
	"go-fairplay/internal/lib/random"
)

var (
	// ErrRevealTooEarly means the owning round has not left RUNNING yet.
	ErrRevealTooEarly = errors.New("seed reveal before round close")
	// ErrInvalidSeedReveal means the revealed secret does not hash to the
	// published commitment. Integrity fault, the round must be frozen.
	ErrInvalidSeedReveal = errors.New("revealed seed does not match commitment")
	// ErrCommitmentNotFound means no secret is held for that id.
	ErrCommitmentNotFound = errors.New("commitment not found")
)

const secretSeedBytes = 32

type Commitment struct {
	ID       string `json:"id"`
	SeedHash string `json:"seed_hash"`
}

// CommitmentManager holds the secret side of outstanding commitments. Only
// the hash ever leaves before reveal; Reveal hands the secret out exactly
// once.
type CommitmentManager struct {
	mu      sync.Mutex
	secrets map[string]string
}

func NewCommitmentManager() *CommitmentManager {
	return &CommitmentManager{
		secrets: make(map[string]string),
	}
}

// Commit generates a fresh 256-bit secret, retains it and returns the
// publishable hash.
func (m *CommitmentManager) Commit() (Commitment, error) {
	const op = "fair.CommitmentManager.Commit"

	secret, err := random.NewSecretSeed(secretSeedBytes)
	if err != nil {
		return Commitment{}, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.New().String()

	m.mu.Lock()
	m.secrets[id] = secret
	m.mu.Unlock()

	return Commitment{
		ID:       id,
		SeedHash: HashSeed(secret),
	}, nil
}

// Reveal releases the secret once the owning round has left RUNNING. The
// caller passes the round's current status; anything earlier is an ordering
// bug, not a race.
func (m *CommitmentManager) Reveal(id string, status config.RoundStatus) (string, error) {
	const op = "fair.CommitmentManager.Reveal"

	if status == config.RoundOpen || status == config.RoundRunning {
		return "", fmt.Errorf("%s: %w", op, ErrRevealTooEarly)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrCommitmentNotFound)
	}

	delete(m.secrets, id)

	return secret, nil
}

func HashSeed(secret string) string {
	sum := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(sum[:])
}

// Verify recomputes the commitment for secret and compares it against the
// published hash in constant time.
func Verify(secret string, seedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSeed(secret)), []byte(seedHash)) == 1
}
