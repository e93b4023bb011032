// ABOUTME: Tests for the client resolver
// ABOUTME: Exact, domain and ambiguous matches, free-mail handling, creation races and naming
package linker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func countClients(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM clients").Scan(&n))
	return n
}

func TestResolveCreatesClientFromCorporateDomain(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	res, err := r.Resolve(ctx, database, rules.Default(), "Sales@Acme-Foods.de", "Jane")
	require.NoError(t, err)
	assert.True(t, res.Created())

	c := res.Client
	assert.Equal(t, "Acme-Foods", c.CompanyName)
	assert.Equal(t, "sales@acme-foods.de", c.Email)
	assert.Equal(t, "Jane", c.ContactPerson)
	assert.Equal(t, models.StatusNew, c.Status)
	assert.Equal(t, 0, c.Score)
	assert.Equal(t, "Not Serious", c.Classification)
}

func TestResolveExactEmailMatch(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	first, err := r.Resolve(ctx, database, rules.Default(), "sales@acme-foods.de", "")
	require.NoError(t, err)

	again, err := r.Resolve(ctx, database, rules.Default(), "SALES@ACME-FOODS.DE", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, MatchEmail, again.Method)
	assert.Equal(t, first.Client.ID, again.Client.ID)
	assert.Equal(t, 1, countClients(t, database))
}

func TestResolveDomainFallback(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	existing := &models.Client{CompanyName: "Acme-Foods", Email: "sales@acme-foods.de", Classification: "Not Serious"}
	require.NoError(t, db.InsertClient(ctx, database, existing))

	res, err := r.Resolve(ctx, database, rules.Default(), "mark@acme-foods.de", "Mark")
	require.NoError(t, err)
	assert.Equal(t, MatchDomain, res.Method)
	assert.Equal(t, existing.ID, res.Client.ID)
	assert.Equal(t, 1, countClients(t, database))
}

func TestResolveAmbiguousDomain(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	onion := &models.Client{CompanyName: "Acme Onion Division", Email: "onion@acme.com", Classification: "Not Serious"}
	garlic := &models.Client{CompanyName: "Acme Garlic Division", Email: "garlic@acme.com", Classification: "Not Serious"}
	require.NoError(t, db.InsertClient(ctx, database, onion))
	require.NoError(t, db.InsertClient(ctx, database, garlic))

	// Display name shares "garlic" with exactly one candidate.
	res, err := r.Resolve(ctx, database, rules.Default(), "buyer@acme.com", "Garlic Desk")
	require.NoError(t, err)
	assert.Equal(t, MatchDomain, res.Method)
	assert.Equal(t, garlic.ID, res.Client.ID)

	// "Acme" matches both, so a new client is created rather than merged.
	res, err = r.Resolve(ctx, database, rules.Default(), "info@acme.com", "Acme Info")
	require.NoError(t, err)
	assert.True(t, res.Created())
	assert.Equal(t, 3, countClients(t, database))
}

func TestFindNeverCreates(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	existing := &models.Client{CompanyName: "Acme-Foods", Email: "sales@acme-foods.de", Classification: "Not Serious"}
	require.NoError(t, db.InsertClient(ctx, database, existing))

	res, found, err := r.Find(ctx, database, "mark@acme-foods.de", "Mark")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, MatchDomain, res.Method)
	assert.Equal(t, existing.ID, res.Client.ID)

	_, found, err = r.Find(ctx, database, "buyer@nile-agro.com", "")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = r.Find(ctx, database, "not-an-address", "")
	assert.ErrorIs(t, err, errs.ErrUnresolved)
	assert.Equal(t, 1, countClients(t, database))
}

func TestResolveFreeMailNeverMatchesByDomain(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	require.NoError(t, db.InsertClient(ctx, database, &models.Client{
		CompanyName: "Someone", Email: "someone@gmail.com", Classification: "Not Serious",
	}))

	res, err := r.Resolve(ctx, database, rules.Default(), "ahmed.trading@gmail.com", "ahmed hassan")
	require.NoError(t, err)
	assert.True(t, res.Created())
	assert.Equal(t, "Ahmed Hassan", res.Client.CompanyName)
	assert.Empty(t, res.Client.ContactPerson)

	res, err = r.Resolve(ctx, database, rules.Default(), "li_wei@gmail.com", "Li")
	require.NoError(t, err)
	assert.Equal(t, "Li_Wei", res.Client.CompanyName)
}

func TestResolveUnresolved(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	for _, email := range []string{"", "   ", "not-an-email", "jane@localhost", "Jane <jane@acme.com>"} {
		_, err := r.Resolve(ctx, database, rules.Default(), email, "Jane")
		assert.ErrorIs(t, err, errs.ErrUnresolved, "email %q", email)
	}
	assert.Equal(t, 0, countClients(t, database))
}

func TestCreateRaceReturnsExistingRow(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	winner := &models.Client{CompanyName: "Acme-Foods", Email: "sales@acme-foods.de", Classification: "Not Serious"}
	require.NoError(t, db.InsertClient(ctx, database, winner))

	// A second writer that missed the lookup hits the UNIQUE index.
	res, err := r.create(ctx, database, rules.Default(), "sales@acme-foods.de", "Jane")
	require.NoError(t, err)
	assert.False(t, res.Created())
	assert.Equal(t, winner.ID, res.Client.ID)
	assert.Equal(t, 1, countClients(t, database))
}

func TestNewClientUsesCurrentThresholds(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(zerolog.Nop())

	rb := rules.Default().Clone()
	rb.ClassificationThresholds[0].Label = "Cold"

	res, err := r.Resolve(ctx, database, rb, "info@spice-house.com", "")
	require.NoError(t, err)
	assert.Equal(t, "Cold", res.Client.Classification)
}

func TestDomainStem(t *testing.T) {
	tests := map[string]string{
		"acme-foods.de":       "acme-foods",
		"sales.acme-foods.de": "acme-foods",
		"acme-foods.co.uk":    "acme-foods",
		"nile-agro.com.eg":    "nile-agro",
		"localhost":           "localhost",
	}
	for domain, want := range tests {
		assert.Equal(t, want, DomainStem(domain), domain)
	}
}

func TestTitlecase(t *testing.T) {
	tests := map[string]string{
		"acme-foods":   "Acme-Foods",
		"green_valley": "Green_Valley",
		"jane doe":     "Jane Doe",
		"ACME":         "Acme",
		"":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Titlecase(in), in)
	}
}

func TestCompanyName(t *testing.T) {
	assert.Equal(t, "Acme-Foods", CompanyName("sales@acme-foods.de", "Jane"))
	assert.Equal(t, "Jane Doe", CompanyName("jane.doe@gmail.com", "jane doe"))
	assert.Equal(t, "Jd.Trading", CompanyName("jd.trading@yahoo.com", "JD"))
}
