package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"focusaura/internal/config"
	"focusaura/internal/domain"
)

const (
	defaultResults = 3
	snippetLimit   = 240
	answerLimit    = 600
	userAgent      = "FocusAura/0.1.0"
)

var errEmptyPayload = errors.New("response contained no usable text")

// Extracted is the role-specific reduction of a successful upstream response.
type Extracted struct {
	Payload string
	Source  string
}

// Backend is the wire format of one upstream provider.
type Backend interface {
	Role() domain.ProviderRole
	// Query renders the query text sent upstream for an event.
	Query(ev domain.FocusEvent) string
	NewRequest(ctx context.Context, query, credential string) (*http.Request, error)
	// Extract reduces a 2xx body to short text; an error means ParseError.
	Extract(body []byte) (Extracted, error)
}

// NewBackend returns the wire backend for role.
func NewBackend(role domain.ProviderRole, pc config.ProviderConfig) (Backend, error) {
	results := pc.Results
	if results <= 0 {
		results = defaultResults
	}
	switch role {
	case domain.RoleEvidence:
		return evidenceBackend{url: pc.URL, results: results}, nil
	case domain.RoleRecency:
		return recencyBackend{url: pc.URL, results: results}, nil
	case domain.RoleSynthesis:
		agent := pc.Agent
		if agent == "" {
			agent = "express"
		}
		return synthesisBackend{url: pc.URL, agent: agent}, nil
	default:
		return nil, fmt.Errorf("unknown provider role %q", role)
	}
}

func categoryPhrase(c domain.Category) string {
	switch c {
	case domain.CategoryVideo:
		return "watching videos"
	case domain.CategorySocial:
		return "social media"
	case domain.CategoryNews:
		return "reading news"
	case domain.CategoryShopping:
		return "online shopping"
	case domain.CategoryGaming:
		return "gaming"
	case domain.CategoryIdle:
		return "idle time"
	default:
		return "an interruption"
	}
}

// evidenceBackend queries a web search index for focus recovery techniques.
type evidenceBackend struct {
	url     string
	results int
}

func (b evidenceBackend) Role() domain.ProviderRole { return domain.RoleEvidence }

func (b evidenceBackend) Query(ev domain.FocusEvent) string {
	return "evidence-based focus recovery techniques after " + categoryPhrase(ev.Category)
}

func (b evidenceBackend) NewRequest(ctx context.Context, query, credential string) (*http.Request, error) {
	return newKeyedGet(ctx, b.url, credential, url.Values{
		"query":           {query},
		"num_web_results": {strconv.Itoa(b.results)},
	})
}

type searchResponse struct {
	Hits []struct {
		Title       string   `json:"title"`
		URL         string   `json:"url"`
		Description string   `json:"description"`
		Snippets    []string `json:"snippets"`
	} `json:"hits"`
}

func (b evidenceBackend) Extract(body []byte) (Extracted, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Extracted{}, fmt.Errorf("decode search response: %w", err)
	}
	var parts []string
	var source string
	for _, hit := range resp.Hits {
		if len(parts) == b.results {
			break
		}
		text := hit.Description
		for _, s := range hit.Snippets {
			if strings.TrimSpace(s) != "" {
				text = s
				break
			}
		}
		text = truncate(clean(text), snippetLimit)
		if text == "" {
			continue
		}
		parts = append(parts, sentence(text))
		if source == "" {
			source = attribution(hit.Title, hit.URL)
		}
	}
	if len(parts) == 0 {
		return Extracted{}, errEmptyPayload
	}
	return Extracted{Payload: strings.Join(parts, " "), Source: source}, nil
}

// recencyBackend queries a news index for recent attention research.
type recencyBackend struct {
	url     string
	results int
}

func (b recencyBackend) Role() domain.ProviderRole { return domain.RoleRecency }

func (b recencyBackend) Query(ev domain.FocusEvent) string {
	return "recent research attention focus context switching " + categoryPhrase(ev.Category)
}

func (b recencyBackend) NewRequest(ctx context.Context, query, credential string) (*http.Request, error) {
	return newKeyedGet(ctx, b.url, credential, url.Values{
		"query": {query},
		"count": {strconv.Itoa(b.results)},
	})
}

type newsResponse struct {
	News struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"news"`
}

func (b recencyBackend) Extract(body []byte) (Extracted, error) {
	var resp newsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Extracted{}, fmt.Errorf("decode news response: %w", err)
	}
	var parts []string
	var source string
	for _, r := range resp.News.Results {
		if len(parts) == b.results {
			break
		}
		title := clean(r.Title)
		desc := clean(r.Description)
		var text string
		switch {
		case title != "" && desc != "":
			text = title + ": " + desc
		default:
			text = title + desc
		}
		text = truncate(text, snippetLimit)
		if text == "" {
			continue
		}
		parts = append(parts, sentence(text))
		if source == "" {
			source = attribution(r.Title, r.URL)
		}
	}
	if len(parts) == 0 {
		return Extracted{}, errEmptyPayload
	}
	return Extracted{Payload: strings.Join(parts, " "), Source: source}, nil
}

// synthesisBackend asks an agent endpoint for one personalized recovery action.
type synthesisBackend struct {
	url   string
	agent string
}

func (b synthesisBackend) Role() domain.ProviderRole { return domain.RoleSynthesis }

func (b synthesisBackend) Query(ev domain.FocusEvent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user was focused for %d minutes on %q", ev.TimeOnTaskMinutes, ev.Goal)
	if ev.ContextTitle != "" || ev.ContextApp != "" {
		fmt.Fprintf(&sb, " (working in %s)", strings.TrimSpace(ev.ContextTitle+" "+ev.ContextApp))
	}
	fmt.Fprintf(&sb, " when they got distracted by %s. ", categoryPhrase(ev.Category))
	sb.WriteString("Reply with one short, concrete recovery action they can take right now, grounded in current research.")
	return sb.String()
}

type agentRequest struct {
	Agent  string `json:"agent"`
	Input  string `json:"input"`
	Stream bool   `json:"stream"`
	RunID  string `json:"run_id,omitempty"`
}

type agentResponse struct {
	Output []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"output"`
	SearchResults []struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"search_results"`
}

func (b synthesisBackend) NewRequest(ctx context.Context, query, credential string) (*http.Request, error) {
	body, err := json.Marshal(agentRequest{Agent: b.agent, Input: query, RunID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+credential)
	return req, nil
}

func (b synthesisBackend) Extract(body []byte) (Extracted, error) {
	var resp agentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Extracted{}, fmt.Errorf("decode agent response: %w", err)
	}
	var answer string
	for _, item := range resp.Output {
		if item.Type == "message.answer" {
			answer = item.Text
			break
		}
	}
	if answer == "" && len(resp.Output) > 0 {
		answer = resp.Output[0].Text
	}
	answer = truncate(cleanLines(answer), answerLimit)
	if answer == "" {
		return Extracted{}, errEmptyPayload
	}
	var source string
	for _, r := range resp.SearchResults {
		if source = attribution(r.Name, r.URL); source != "" {
			break
		}
	}
	return Extracted{Payload: answer, Source: source}, nil
}

func newKeyedGet(ctx context.Context, base, credential string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-API-Key", credential)
	return req, nil
}

func attribution(title, link string) string {
	title = clean(title)
	link = strings.TrimSpace(link)
	switch {
	case title != "" && link != "":
		return title + " (" + link + ")"
	case title != "":
		return title
	default:
		return link
	}
}
