package service

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
)

const (
	MaxNameLength        = 100
	MaxBioLength         = 1000
	MaxFieldLength       = 200
	MaxCustomLinks       = 20
	MaxServices          = 30
	MaxCodeValueLen      = 64
	MaxBatchSize         = 10000
	MaxImageBytes        = 5 << 20
	DefaultCodeListLimit = 50
	MaxCodeListLimit     = 500
)

// normalizeContent trims every text field and checks the rules shared by
// claim and update. requireFirstName is false for partial updates that don't
// touch the name.
func normalizeContent(c *model.ProfileContent, requireFirstName bool) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Bio = strings.TrimSpace(c.Bio)
	c.Company = strings.TrimSpace(c.Company)
	c.Position = strings.TrimSpace(c.Position)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	c.Location = strings.TrimSpace(c.Location)
	c.Website = strings.TrimSpace(c.Website)

	if requireFirstName && c.FirstName == "" {
		return apperror.ValidationFailed("firstName", "first name is required")
	}
	if len(c.FirstName) > MaxNameLength {
		return apperror.ValidationFailed("firstName",
			fmt.Sprintf("first name must be %d characters or less", MaxNameLength))
	}
	if len(c.LastName) > MaxNameLength {
		return apperror.ValidationFailed("lastName",
			fmt.Sprintf("last name must be %d characters or less", MaxNameLength))
	}
	if len(c.Bio) > MaxBioLength {
		return apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	for field, v := range map[string]string{
		"company":  c.Company,
		"position": c.Position,
		"phone":    c.Phone,
		"location": c.Location,
	} {
		if len(v) > MaxFieldLength {
			return apperror.ValidationFailed(field,
				fmt.Sprintf("%s must be %d characters or less", field, MaxFieldLength))
		}
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil || !strings.Contains(c.Email, "@") {
			return apperror.ValidationFailed("email", "email address is not valid")
		}
	}
	if c.Website != "" && !isHTTPURL(c.Website) {
		return apperror.ValidationFailed("website", "website must be an http(s) URL")
	}

	if len(c.CustomLinks) > MaxCustomLinks {
		return apperror.ValidationFailed("customLinks",
			fmt.Sprintf("at most %d custom links are allowed", MaxCustomLinks))
	}
	for i := range c.CustomLinks {
		l := &c.CustomLinks[i]
		l.Name = strings.TrimSpace(l.Name)
		l.URL = strings.TrimSpace(l.URL)
		if l.Name == "" {
			return apperror.ValidationFailed("customLinks", "every custom link needs a name")
		}
		if !isHTTPURL(l.URL) {
			return apperror.ValidationFailed("customLinks",
				fmt.Sprintf("link %q must be an http(s) URL", l.Name))
		}
	}

	if len(c.Services) > MaxServices {
		return apperror.ValidationFailed("services",
			fmt.Sprintf("at most %d services are allowed", MaxServices))
	}
	for i := range c.Services {
		s := &c.Services[i]
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return apperror.ValidationFailed("services", "every service needs a name")
		}
	}
	return nil
}

func normalizeTheme(theme string) (string, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme == "" {
		return model.DefaultTheme, nil
	}
	if !model.Themes[theme] {
		return "", apperror.ValidationFailed("theme", fmt.Sprintf("unknown theme %q", theme))
	}
	return theme, nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeCodeValues trims values and rejects empty, oversized and
// repeated entries. Repeats come back as a DuplicateCodes error.
func normalizeCodeValues(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, apperror.ValidationFailed("codes", "at least one code is required")
	}
	if len(values) > MaxBatchSize {
		return nil, apperror.ValidationFailed("codes",
			fmt.Sprintf("a batch can hold at most %d codes", MaxBatchSize))
	}

	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	var dups []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, apperror.ValidationFailed("codes", "codes must not be empty")
		}
		if len(v) > MaxCodeValueLen {
			return nil, apperror.ValidationFailed("codes",
				fmt.Sprintf("code %q is longer than %d characters", v, MaxCodeValueLen))
		}
		if seen[v] {
			dups = append(dups, v)
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(dups) > 0 {
		return nil, apperror.DuplicateCodes(dups)
	}
	return out, nil
}

// uniqueIDs drops non-positive and repeated ids, keeping order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
