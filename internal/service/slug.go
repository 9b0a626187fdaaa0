package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/xid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sakif/tapcard/internal/repository"
)

const (
	maxSlugLength  = 50
	fallbackSlug   = "card"
	slugCandidates = 50
)

// stripMarks folds "José Müller" into "Jose Muller".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a display name into a URL-safe slug: lower-case ASCII
// letters and digits separated by single dashes.
func Slugify(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// uniqueSlug finds a free slug for name: "jo-doe", then "jo-doe-2" and so on,
// finally a random suffix. Run it on the claim transaction's Queries so the
// check and the insert see the same data.
func uniqueSlug(ctx context.Context, q repository.ProfileQueries, name string) (string, error) {
	base := Slugify(name)

	for i := 1; i <= slugCandidates; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := q.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return base + "-" + xid.New().String(), nil
}
