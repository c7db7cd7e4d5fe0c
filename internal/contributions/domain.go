// Package contributions stores code-switching examples submitted by early
// access members and reports corpus statistics.
package contributions

import (
	"context"
	"errors"
	"time"
)

// MinLanguages is the number of languages a contribution must mix.
const MinLanguages = 2

var (
	// ErrTextRequired is returned when the example text is blank.
	ErrTextRequired = errors.New("contributions: text required")
	// ErrTooFewLanguages is returned when fewer than MinLanguages are selected.
	ErrTooFewLanguages = errors.New("contributions: at least two languages required")
)

// Contribution is one stored example.
type Contribution struct {
	ID          string
	Text        string
	Languages   []string
	Context     string
	Region      string
	Platform    string
	Age         string
	UserID      string
	UserEmail   string
	UserName    string
	SubmittedAt time.Time
}

// Input carries a submission as received from the client.
type Input struct {
	Text      string
	Languages []string
	Context   string
	Region    string
	Platform  string
	Age       string
	UserEmail string
	UserName  string
}

// Stats summarises the corpus.
type Stats struct {
	TotalContributions int `json:"totalContributions"`
	UniqueContributors int `json:"uniqueContributors"`
	LanguagePairs      int `json:"languagePairs"`
}

// Store persists contributions.
type Store interface {
	Create(ctx context.Context, c *Contribution) error
	Count(ctx context.Context) (int, error)
	CountContributors(ctx context.Context) (int, error)
	LanguageSets(ctx context.Context) ([][]string, error)
}
