package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	apperrors "github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/errors"
)

// Supported digest algorithms. A recorded digest may carry an "algo:" prefix;
// an unprefixed digest is SHA-256.
const (
	AlgoSHA256 = "sha256"
	AlgoBLAKE3 = "blake3"
)

// IntegrityError reports a recorded digest that does not match the bytes on
// disk. It always aborts corpus construction.
type IntegrityError struct {
	Unit     string
	Artifact string
	Expected string
	Computed string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s (%s): expected %s, computed %s",
		e.Unit, e.Artifact, e.Expected, e.Computed)
}

func (e *IntegrityError) Unwrap() error {
	return apperrors.ErrIntegrity
}

// Digest hashes data with algo and returns the lowercase hex digest.
func Digest(algo string, data []byte) (string, error) {
	switch algo {
	case AlgoSHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case AlgoBLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}

// splitRecorded separates an optional "algo:" prefix from a recorded digest.
func splitRecorded(recorded string) (algo, digest string) {
	recorded = strings.TrimSpace(recorded)
	if i := strings.IndexByte(recorded, ':'); i > 0 {
		return strings.ToLower(recorded[:i]), strings.ToLower(recorded[i+1:])
	}
	return AlgoSHA256, strings.ToLower(recorded)
}

// Verify hashes data and compares it with recorded. It returns the computed
// SHA-256 digest for the audit block even when nothing was recorded. For a
// blake3 record, the BLAKE3 digest is checked but the audit digest stays SHA-256.
func Verify(unit, artifact string, data []byte, recorded string) (string, error) {
	sha, _ := Digest(AlgoSHA256, data)
	if strings.TrimSpace(recorded) == "" {
		return sha, nil
	}
	algo, expected := splitRecorded(recorded)
	computed := sha
	if algo != AlgoSHA256 {
		var err error
		computed, err = Digest(algo, data)
		if err != nil {
			return "", fmt.Errorf("verifying %s (%s): %w", unit, artifact, err)
		}
	}
	if computed != expected {
		return "", &IntegrityError{
			Unit:     unit,
			Artifact: artifact,
			Expected: expected,
			Computed: computed,
		}
	}
	return sha, nil
}
