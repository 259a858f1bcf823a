package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

const (
	// slugTokenBytes is the entropy appended to each slug candidate.
	// 6 bytes encode to 8 base64url characters, large enough that a
	// collision on retry is effectively impossible.
	slugTokenBytes = 6

	// maxSlugAttempts caps the collision retry loop. Hitting it means the
	// existence check or the entropy source is broken.
	maxSlugAttempts = 10
)

var (
	slugSeparators = regexp.MustCompile(`[\s_]+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9-]+`)
	slugHyphenRuns = regexp.MustCompile(`-{2,}`)
)

// Slugify normalizes a string into slug form: lowercase, word characters and
// hyphens only, no leading or trailing hyphens.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugSeparators.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugHyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugExistsFunc reports whether an account with the slug already exists.
// It is read-only against storage.
type SlugExistsFunc func(ctx context.Context, slug string) (bool, error)

// GenerateUniqueSlug produces a unique URL-safe handle from the account's
// name plus a random token, retrying with fresh entropy on collision. The
// check-then-insert race that remains is closed by the storage layer's
// unique constraint, not here.
func GenerateUniqueSlug(ctx context.Context, firstName, lastName string, exists SlugExistsFunc) (string, error) {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		token, err := randomSlugToken()
		if err != nil {
			return "", fmt.Errorf("slug token: %w", err)
		}

		candidate := Slugify(firstName + " " + lastName + " " + token)
		if candidate == "" {
			// Pathological input plus an all-punctuation token; retry.
			continue
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("slug existence check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrSlugExhausted
}

// randomSlugToken returns a short URL-safe random string
func randomSlugToken() (string, error) {
	buf := make([]byte, slugTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
