// ABOUTME: Client resolver mapping a sender address to an existing or new client
// ABOUTME: Exact email first, then corporate domain, then creation guarded by the email UNIQUE index
package linker

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
)

// How a sender was matched.
const (
	MatchEmail   = "email"
	MatchDomain  = "domain"
	MatchCreated = "created"
)

const minDisplayNameLen = 3

var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"yahoo.co.uk":    true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"mac.com":        true,
	"aol.com":        true,
	"protonmail.com": true,
	"pm.me":          true,
	"gmx.de":         true,
	"web.de":         true,
	"mail.ru":        true,
	"yandex.ru":      true,
	"qq.com":         true,
	"163.com":        true,
}

// Second-level labels that sit under a country code, as in co.uk or com.eg.
var publicSecondLevel = map[string]bool{
	"co": true, "com": true, "org": true, "net": true, "gov": true, "ac": true, "edu": true,
}

type Resolution struct {
	Client *models.Client
	Method string
}

func (r Resolution) Created() bool { return r.Method == MatchCreated }

type Resolver struct {
	logger zerolog.Logger
}

func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{logger: logger.With().Str("component", "resolver").Logger()}
}

// Resolve maps a sender to a client, creating one when nothing matches. A
// missing or malformed address returns errs.ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, q db.Querier, rb *rules.RuleBook, email, displayName string) (Resolution, error) {
	res, found, err := r.Find(ctx, q, email, displayName)
	if err != nil || found {
		return res, err
	}
	email, _ = NormalizeEmail(email)
	return r.create(ctx, q, rb, email, strings.TrimSpace(displayName))
}

// Find matches a sender against existing clients by exact email, then by
// corporate domain. It never creates a client.
func (r *Resolver) Find(ctx context.Context, q db.Querier, email, displayName string) (Resolution, bool, error) {
	email, ok := NormalizeEmail(email)
	if !ok {
		return Resolution{}, false, fmt.Errorf("sender %q: %w", email, errs.ErrUnresolved)
	}
	displayName = strings.TrimSpace(displayName)

	client, err := db.FindClientByEmail(ctx, q, email)
	if err != nil {
		return Resolution{}, false, err
	}
	if client != nil {
		return Resolution{Client: client, Method: MatchEmail}, true, nil
	}

	domain := db.EmailDomain(email)
	if IsFreeMailDomain(domain) {
		return Resolution{}, false, nil
	}
	candidates, err := db.FindClientsByDomain(ctx, q, domain)
	if err != nil {
		return Resolution{}, false, err
	}
	if match := pickDomainMatch(candidates, displayName); match != nil {
		return Resolution{Client: match, Method: MatchDomain}, true, nil
	}
	if len(candidates) > 1 {
		r.logger.Debug().Str("domain", domain).Int("candidates", len(candidates)).
			Msg("ambiguous domain match")
	}
	return Resolution{}, false, nil
}

func (r *Resolver) create(ctx context.Context, q db.Querier, rb *rules.RuleBook, email, displayName string) (Resolution, error) {
	client := &models.Client{
		CompanyName:    CompanyName(email, displayName),
		Email:          email,
		Status:         models.StatusNew,
		Score:          0,
		Classification: rb.Classify(0).Label,
	}
	if !IsFreeMailDomain(db.EmailDomain(email)) {
		client.ContactPerson = displayName
	}

	err := db.InsertClient(ctx, q, client)
	if db.IsUniqueViolation(err) {
		existing, findErr := db.FindClientByEmail(ctx, q, email)
		if findErr != nil {
			return Resolution{}, findErr
		}
		if existing != nil {
			return Resolution{Client: existing, Method: MatchEmail}, nil
		}
	}
	if err != nil {
		return Resolution{}, err
	}

	r.logger.Info().Int64("client_id", client.ID).Str("company", client.CompanyName).Str("email", email).
		Msg("created client from inbound message")
	return Resolution{Client: client, Method: MatchCreated}, nil
}

// pickDomainMatch returns the single candidate, or the only candidate whose
// company name shares a token with displayName. Otherwise nil.
func pickDomainMatch(candidates []*models.Client, displayName string) *models.Client {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	nameTokens := tokens(displayName)
	if len(nameTokens) == 0 {
		return nil
	}

	var match *models.Client
	for _, c := range candidates {
		for tok := range tokens(c.CompanyName) {
			if nameTokens[tok] {
				if match != nil {
					return nil
				}
				match = c
				break
			}
		}
	}
	return match
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) >= 2 {
			out[f] = true
		}
	}
	return out
}

// NormalizeEmail lowercases and validates a bare address.
func NormalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return email, false
	}
	if db.EmailDomain(email) == "" || !strings.Contains(db.EmailDomain(email), ".") {
		return email, false
	}
	return email, true
}

func IsFreeMailDomain(domain string) bool {
	return freeMailDomains[strings.ToLower(domain)]
}

// CompanyName derives a company label for a new client. Corporate senders
// are named after their domain; free-mail senders after their display name
// when it is long enough, else their mailbox name.
func CompanyName(email, displayName string) string {
	domain := db.EmailDomain(email)
	if !IsFreeMailDomain(domain) {
		if stem := DomainStem(domain); stem != "" {
			return Titlecase(stem)
		}
	}
	if len([]rune(strings.TrimSpace(displayName))) >= minDisplayNameLen {
		return Titlecase(strings.TrimSpace(displayName))
	}
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}
	return Titlecase(local)
}

// DomainStem returns the registrable label of domain: acme-foods for
// sales.acme-foods.de and for acme-foods.co.uk.
func DomainStem(domain string) string {
	labels := strings.Split(strings.ToLower(strings.Trim(domain, ".")), ".")
	if len(labels) < 2 {
		return labels[0]
	}
	stem := labels[len(labels)-2]
	if publicSecondLevel[stem] && len(labels) >= 3 {
		stem = labels[len(labels)-3]
	}
	return stem
}

// Titlecase capitalises each segment of s, keeping the separators.
func Titlecase(s string) string {
	caser := cases.Title(language.Und)
	var b strings.Builder
	start := 0
	for i, r := range s {
		if r == '-' || r == '_' || r == '.' || r == ' ' {
			b.WriteString(caser.String(s[start:i]))
			b.WriteRune(r)
			start = i + 1
		}
	}
	b.WriteString(caser.String(s[start:]))
	return b.String()
}
