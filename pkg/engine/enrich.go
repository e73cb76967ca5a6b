package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Enricher fills in missing phone or email for an agent once a name and
// brokerage are known. Two strategies: the national brokerage directories,
// then a first.last@domain guess for brokerages with known mail domains.
// Guessed emails are best-effort and should be verified before outreach.
type Enricher struct {
	client  *http.Client
	logger  *reporting.Logger
	timeout time.Duration

	// directoryURLs is overridable for tests
	directoryURLs map[string]string
}

// brokerageDirectories maps lowercase brokerage markers to their agent
// search pages
var brokerageDirectories = map[string]string{
	"keller williams":    "https://www.kw.com/agent/search?q=",
	"coldwell banker":    "https://www.coldwellbanker.com/agent/search?q=",
	"re/max":             "https://www.remax.com/real-estate-agents/search?q=",
	"century 21":         "https://www.century21.com/real-estate-agents/search?q=",
	"compass":            "https://www.compass.com/agents/?q=",
	"sotheby":            "https://www.sothebysrealty.com/eng/associates?q=",
	"exp realty":         "https://www.exprealty.com/agents.html?search=",
	"berkshire hathaway": "https://www.bhhs.com/agent-search?q=",
}

// brokerageDomains maps lowercase brokerage markers to their agent email
// domains
var brokerageDomains = map[string]string{
	"keller williams":    "kw.com",
	"coldwell banker":    "cbexchange.com",
	"re/max":             "remax.net",
	"century 21":         "century21.com",
	"compass":            "compass.com",
	"sotheby":            "sothebysrealty.com",
	"exp realty":         "exprealty.com",
	"berkshire hathaway": "bhhsmail.com",
	"douglas elliman":    "elliman.com",
}

// NewEnricher creates an enricher on the shared HTTP client
func NewEnricher(client *http.Client, logger *reporting.Logger) *Enricher {
	return &Enricher{
		client:        client,
		logger:        logger.WithField("component", "enricher"),
		timeout:       15 * time.Second,
		directoryURLs: brokerageDirectories,
	}
}

// Enrich returns the agent info with any recoverable contact fields filled
// in. When something was added, the source gains an "+enriched" tag.
func (e *Enricher) Enrich(ctx context.Context, info models.AgentInfo) models.AgentInfo {
	if info.IsComplete() {
		return info
	}

	enriched := info
	before := info

	if info.Brokerage != "" && (info.Phone == "" || info.Email == "") {
		if phone, email := e.searchDirectory(ctx, info.AgentName, info.Brokerage); phone != "" || email != "" {
			if enriched.Phone == "" {
				enriched.Phone = address.CleanPhone(phone)
			}
			if enriched.Email == "" {
				enriched.Email = address.CleanEmail(email)
			}
		}
	}

	if enriched.Email == "" && info.Brokerage != "" {
		enriched.Email = guessEmail(info.AgentName, info.Brokerage)
	}

	if enriched.Phone != before.Phone || enriched.Email != before.Email {
		enriched.Source = info.Source + "+enriched"
	}
	return enriched
}

// searchDirectory queries a national brokerage's agent directory for the
// agent and mines the page for contact fragments
func (e *Enricher) searchDirectory(ctx context.Context, agentName, brokerage string) (phone, email string) {
	lower := strings.ToLower(brokerage)
	for marker, searchURL := range e.directoryURLs {
		if !strings.Contains(lower, marker) {
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		target := searchURL + url.QueryEscape(agentName)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
		if err != nil {
			return "", ""
		}
		for k, v := range gateway.BrowserHeaders() {
			req.Header.Set(k, v)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			e.logger.Debug("directory lookup failed", "brokerage", marker, "error", err.Error())
			return "", ""
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", ""
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", ""
		}
		return extractContact(string(body))
	}
	return "", ""
}

var (
	contactPhoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	contactEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// Role mailboxes are never an agent's own address
	skipEmailPrefixes = []string{"info@", "support@", "admin@", "webmaster@", "noreply@", "contact@"}
)

func extractContact(html string) (phone, email string) {
	phone = contactPhoneRe.FindString(html)

	for _, candidate := range contactEmailRe.FindAllString(html, -1) {
		lower := strings.ToLower(candidate)
		skip := false
		for _, prefix := range skipEmailPrefixes {
			if strings.HasPrefix(lower, prefix) {
				skip = true
				break
			}
		}
		if !skip {
			email = candidate
			break
		}
	}
	return phone, email
}

var nonLowerRe = regexp.MustCompile(`[^a-z]`)

// guessEmail builds first.last@domain for brokerages with a known mail
// domain. Returns "" when the name or brokerage gives nothing to work with.
func guessEmail(agentName, brokerage string) string {
	parts := strings.Fields(strings.ToLower(agentName))
	if len(parts) < 2 {
		return ""
	}

	first := nonLowerRe.ReplaceAllString(parts[0], "")
	last := nonLowerRe.ReplaceAllString(parts[len(parts)-1], "")
	if first == "" || last == "" {
		return ""
	}

	lower := strings.ToLower(brokerage)
	for marker, domain := range brokerageDomains {
		if strings.Contains(lower, marker) {
			return first + "." + last + "@" + domain
		}
	}
	return ""
}
