// ABOUTME: Rule book persistence with validation and atomic file replacement
// ABOUTME: Store holds the active rule book behind an atomic pointer for lock-free reloads
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/errs"
)

const (
	minEffect = -100
	maxEffect = 100
)

// ErrSeeded is returned alongside a usable rule book when Load had to write
// the defaults because the file was missing or unreadable.
var ErrSeeded = errors.New("rule book seeded with defaults")

// Load reads the rule book at path. A missing or corrupt file is replaced by
// the defaults, which are persisted and returned together with ErrSeeded. A
// file that parses but fails validation is left untouched and reported as a
// ConfigError.
func Load(path string) (*RuleBook, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return seed(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read rule book: %w", err)
	}

	var rb RuleBook
	if err := json.Unmarshal(data, &rb); err != nil {
		// Keep the unreadable file next to the fresh one for the operator.
		_ = os.Rename(path, path+".corrupt")
		return seed(path)
	}
	if err := Validate(&rb); err != nil {
		return nil, err
	}
	return &rb, nil
}

func seed(path string) (*RuleBook, error) {
	rb := Default()
	if err := Save(path, rb); err != nil {
		return nil, err
	}
	return rb, ErrSeeded
}

// Save validates rb and atomically replaces the file at path.
func Save(path string, rb *RuleBook) error {
	if err := Validate(rb); err != nil {
		return err
	}

	data, err := Encode(rb)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create rule book dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("create temp rule book: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write rule book: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync rule book: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close rule book: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod rule book: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace rule book: %w", err)
	}
	return nil
}

// Encode renders rb as indented JSON with sorted keys and a trailing newline.
func Encode(rb *RuleBook) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rb); err != nil {
		return nil, fmt.Errorf("encode rule book: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks effect bounds, threshold uniqueness and non-empty labels
// and phrases. The first violation is returned as a ConfigError.
func Validate(rb *RuleBook) error {
	if rb == nil {
		return errs.ConfigInvalid("rule_book", "missing")
	}

	types := make([]string, 0, len(rb.ScoreRules))
	for mt := range rb.ScoreRules {
		types = append(types, mt)
	}
	sort.Strings(types)
	for _, mt := range types {
		if strings.TrimSpace(mt) == "" {
			return errs.ConfigInvalid("score_rules", "message type must not be empty")
		}
		e := rb.ScoreRules[mt].Effect
		if e < minEffect || e > maxEffect {
			return errs.ConfigInvalid(fmt.Sprintf("score_rules.%s.effect", mt),
				fmt.Sprintf("%d outside [%d, %d]", e, minEffect, maxEffect))
		}
	}

	if len(rb.ClassificationThresholds) == 0 {
		return errs.ConfigInvalid("classification_thresholds", "at least one entry is required")
	}
	seen := make(map[int]int, len(rb.ClassificationThresholds))
	for i, t := range rb.ClassificationThresholds {
		field := fmt.Sprintf("classification_thresholds[%d]", i)
		if strings.TrimSpace(t.Label) == "" {
			return errs.ConfigInvalid(field+".label", "must not be empty")
		}
		if j, dup := seen[t.MinScore]; dup {
			return errs.ConfigInvalid(field+".min_score",
				fmt.Sprintf("%d already used by classification_thresholds[%d]", t.MinScore, j))
		}
		seen[t.MinScore] = i
	}

	if rb.TrendWindow < 0 {
		return errs.ConfigInvalid("trend_window", "must not be negative")
	}

	return validateLexicons(&rb.Lexicons)
}

func validateLexicons(lx *Lexicons) error {
	lists := []struct {
		name    string
		phrases []string
	}{
		{"courtesy", lx.Courtesy},
		{"high_priority", lx.HighPriority},
		{"interest", lx.Interest},
		{"medium_priority", lx.MediumPriority},
		{"negative", lx.Negative},
		{"positive", lx.Positive},
		{"purchase_intent", lx.PurchaseIntent},
		{"relevance_request_terms", lx.RelevanceRequestTerms},
		{"relevance_whitelist", lx.RelevanceWhitelist},
		{"spam_blacklist", lx.SpamBlacklist},
		{"trade", lx.Trade},
	}

	names := make([]string, 0, len(lx.Categories))
	for name := range lx.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lists = append(lists, struct {
			name    string
			phrases []string
		}{"categories." + name, lx.Categories[name]})
	}

	for _, l := range lists {
		for i, p := range l.phrases {
			if strings.TrimSpace(p) == "" {
				return errs.ConfigInvalid(fmt.Sprintf("lexicons.%s[%d]", l.name, i), "phrase must not be empty")
			}
		}
	}
	return nil
}

// Store holds the active rule book. Readers take a snapshot with Current and
// keep using it for the rest of their pass; Reload swaps the reference.
type Store struct {
	path   string
	logger zerolog.Logger
	active atomic.Pointer[RuleBook]
}

// NewStore loads the rule book at path and makes it active.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger.With().Str("component", "rules").Logger()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore serves rb without a backing file. Reload is a no-op.
func NewStaticStore(rb *RuleBook) *Store {
	s := &Store{logger: zerolog.Nop()}
	s.active.Store(rb)
	return s
}

func (s *Store) Path() string { return s.path }

// Current returns the active rule book.
func (s *Store) Current() *RuleBook {
	return s.active.Load()
}

// Reload re-reads the file. On failure the previous rule book stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	rb, err := Load(s.path)
	if errors.Is(err, ErrSeeded) {
		s.logger.Warn().Str("path", s.path).Msg("rule book missing or unreadable, seeded defaults")
		err = nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("rule book rejected, keeping previous rules")
		return err
	}
	s.active.Store(rb)
	s.logger.Info().
		Str("path", s.path).
		Int("thresholds", len(rb.ClassificationThresholds)).
		Int("score_rules", len(rb.ScoreRules)).
		Msg("rule book loaded")
	return nil
}

// Replace validates and persists rb, then makes it active.
func (s *Store) Replace(rb *RuleBook) error {
	if s.path != "" {
		if err := Save(s.path, rb); err != nil {
			return err
		}
	} else if err := Validate(rb); err != nil {
		return err
	}
	s.active.Store(rb)
	return nil
}
