package contributions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/codeboard/earlyaccess/internal/notify"
	"github.com/codeboard/earlyaccess/internal/users"
)

// Notifier sends the receipt for a stored contribution.
type Notifier interface {
	SendContributionReceipt(ctx context.Context, receipt notify.Receipt) error
}

// Service validates and stores contributions.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates in and stores it. A non-nil caller ties the record to that
// account and fills contact details the client left blank.
func (s *Service) Submit(ctx context.Context, in Input, caller *users.User) (*Contribution, error) {
	text := norm.NFC.String(strings.TrimSpace(in.Text))
	if text == "" {
		return nil, ErrTextRequired
	}
	languages := cleanLanguages(in.Languages)
	if len(languages) < MinLanguages {
		return nil, ErrTooFewLanguages
	}

	c := &Contribution{
		Text:        text,
		Languages:   languages,
		Context:     strings.TrimSpace(in.Context),
		Region:      strings.TrimSpace(in.Region),
		Platform:    strings.TrimSpace(in.Platform),
		Age:         strings.TrimSpace(in.Age),
		UserEmail:   strings.TrimSpace(in.UserEmail),
		UserName:    strings.TrimSpace(in.UserName),
		SubmittedAt: s.now(),
	}
	if caller != nil {
		c.UserID = caller.ID
		if c.UserEmail == "" {
			c.UserEmail = caller.Email
		}
		if c.UserName == "" {
			c.UserName = caller.Name
		}
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("contributions: submit: %w", err)
	}
	s.receipt(ctx, c)
	return c, nil
}

// Stats computes corpus totals, running the three store queries concurrently.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		sets  [][]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx)
		stats.TotalContributions = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountContributors(gctx)
		stats.UniqueContributors = n
		return err
	})
	g.Go(func() error {
		var err error
		sets, err = s.store.LanguageSets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("contributions: stats: %w", err)
	}
	stats.LanguagePairs = CountLanguagePairs(sets)
	return stats, nil
}

// CountLanguagePairs returns the number of distinct unordered language pairs
// that occur together in at least one set.
func CountLanguagePairs(sets [][]string) int {
	pairs := make(map[[2]string]struct{})
	for _, set := range sets {
		sorted := append([]string(nil), set...)
		sort.Strings(sorted)
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				if sorted[i] == sorted[j] {
					continue
				}
				pairs[[2]string{sorted[i], sorted[j]}] = struct{}{}
			}
		}
	}
	return len(pairs)
}

func (s *Service) receipt(ctx context.Context, c *Contribution) {
	if s.notifier == nil || c.UserEmail == "" {
		return
	}
	err := s.notifier.SendContributionReceipt(ctx, notify.Receipt{
		Email:     c.UserEmail,
		Name:      c.UserName,
		Text:      c.Text,
		Languages: c.Languages,
		Context:   c.Context,
	})
	if err != nil {
		s.logger.Warn("contribution receipt", slog.String("contribution_id", c.ID), slog.Any("error", err))
	}
}

// cleanLanguages trims entries and drops blanks and repeats, keeping order.
func cleanLanguages(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, lang := range in {
		lang = norm.NFC.String(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}
