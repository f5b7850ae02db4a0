package user

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrCodeNotFound = errors.New("code not found")

// CodeStore keeps short-lived one-time codes by key.
type CodeStore interface {
	// SaveCode stores code under key for ttl, replacing any previous code.
	SaveCode(ctx context.Context, key, code string, ttl time.Duration) error
	// GetCode returns ErrCodeNotFound when no unexpired code is stored under key.
	GetCode(ctx context.Context, key string) (string, error)
	// ConsumeCode atomically deletes the code stored under key if it equals code.
	// It returns ErrCodeNotFound, leaving the store untouched, when no such code is stored.
	ConsumeCode(ctx context.Context, key, code string) error
}

func codeKey(purpose, email string) string {
	return "otp:" + purpose + ":" + email
}

// GenerateCode returns a random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var sb strings.Builder
	sb.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", errors.Wrap(err, "reading random digit")
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
