package fair

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
)

// The crash-point transform is pinned: changing any of these constants would
// retroactively invalidate outcomes of already-committed rounds.
//
//	digest     = HMAC-SHA512(key=serverSeed, msg=clientSeed + "-" + nonce)
//	h          = first 13 hex chars of digest as an unsigned 52-bit integer
//	instant    = h divisible by 101 -> 1.00x (the house edge)
//	otherwise  = floor((100*2^52 - h) / (2^52 - h)) cents
//
// Integer arithmetic only, so any third party recomputes the bit-identical
// result from the revealed seed.
const (
	hashPrefixLen  = 13
	outcomeSpace   = int64(1) << 52
	instantBustMod = 101
	// MinCrashCents is the floor of the outcome domain, 1.00x.
	MinCrashCents = int64(100)
)

// ComputeOutcome derives the crash point in cents (113 = 1.13x) for a round.
// Pure and total: identical inputs always produce the identical output.
func ComputeOutcome(serverSeed string, clientSeed string, nonce int64) int64 {
	h := hmac.New(sha512.New, []byte(serverSeed))
	h.Write([]byte(clientSeed + "-" + strconv.FormatInt(nonce, 10)))

	digest := hex.EncodeToString(h.Sum(nil))

	// 13 hex chars always parse; the error path is unreachable.
	n, _ := strconv.ParseInt(digest[:hashPrefixLen], 16, 64)

	if n%instantBustMod == 0 {
		return MinCrashCents
	}

	return (100*outcomeSpace - n) / (outcomeSpace - n)
}

// VerifyOutcome is the public verification entry point: it checks the
// commitment and recomputes the outcome in one call.
func VerifyOutcome(serverSeed, seedHash, clientSeed string, nonce int64) (int64, error) {
	const op = "fair.VerifyOutcome"

	if !Verify(serverSeed, seedHash) {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidSeedReveal)
	}

	return ComputeOutcome(serverSeed, clientSeed, nonce), nil
}
