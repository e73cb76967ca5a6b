package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

func TestGuessEmail(t *testing.T) {
	assert.Equal(t, "jane.smith@kw.com", guessEmail("Jane Smith", "Keller Williams Realty"))
	assert.Equal(t, "bob.jones@compass.com", guessEmail("Bob A. Jones", "Compass"))
	assert.Equal(t, "", guessEmail("Jane", "Compass"))
	assert.Equal(t, "", guessEmail("Jane Smith", "Unknown Local Brokerage"))
	assert.Equal(t, "", guessEmail("", ""))
}

func TestExtractContactSkipsRoleMailboxes(t *testing.T) {
	html := `<div>
		Call us at (555) 987-6543.
		<a href="mailto:info@brokerage.com">info@brokerage.com</a>
		<a href="mailto:jane.smith@brokerage.com">jane.smith@brokerage.com</a>
	</div>`

	phone, email := extractContact(html)
	assert.Equal(t, "(555) 987-6543", phone)
	assert.Equal(t, "jane.smith@brokerage.com", email)
}

func TestEnrichFromDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Jane Smith", r.URL.Query().Get("q"))
		fmt.Fprint(w, `<html>Jane Smith | 555.123.4567 | jane@kwphoenix.com</html>`)
	}))
	defer srv.Close()

	e := NewEnricher(srv.Client(), reporting.Nop())
	e.directoryURLs = map[string]string{"keller williams": srv.URL + "/agents?q="}

	info := e.Enrich(context.Background(), models.AgentInfo{
		AgentName: "Jane Smith",
		Brokerage: "Keller Williams Phoenix",
		Source:    "redfin",
	})

	assert.Equal(t, "(555) 123-4567", info.Phone)
	assert.Equal(t, "jane@kwphoenix.com", info.Email)
	assert.Equal(t, "redfin+enriched", info.Source)
}

func TestEnrichFallsBackToGuess(t *testing.T) {
	e := NewEnricher(&http.Client{}, reporting.Nop())
	e.directoryURLs = map[string]string{} // no directory reachable

	info := e.Enrich(context.Background(), models.AgentInfo{
		AgentName: "Jane Smith",
		Brokerage: "eXp Realty of Arizona",
		Phone:     "(555) 123-4567",
		Source:    "zillow",
	})

	assert.Equal(t, "jane.smith@exprealty.com", info.Email)
	assert.Equal(t, "zillow+enriched", info.Source)
}

func TestEnrichLeavesCompleteInfoAlone(t *testing.T) {
	e := NewEnricher(&http.Client{}, reporting.Nop())

	original := models.AgentInfo{
		AgentName: "Jane Smith",
		Phone:     "(555) 123-4567",
		Email:     "jane@example.com",
		Source:    "redfin",
	}
	enriched := e.Enrich(context.Background(), original)
	require.Equal(t, original, enriched)
}
