// Package engine composes one intervention from three concurrently invoked
// providers under a single overall deadline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"focusaura/internal/config"
	"focusaura/internal/domain"
	"focusaura/internal/provider"
	"focusaura/internal/templates"
)

const actionLimit = 200

// Invoker is a provider client. Implementations must not panic across the
// boundary and should honor ctx cancellation.
type Invoker interface {
	Role() domain.ProviderRole
	Invoke(ctx context.Context, ev domain.FocusEvent) domain.ProviderResult
}

// Composer fans out to the providers and merges their results.
type Composer struct {
	Providers []Invoker
	Deadline  time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Composition is a response together with the per-provider results behind it.
type Composition struct {
	Response domain.InterventionResponse
	Results  map[domain.ProviderRole]domain.ProviderResult
	Elapsed  time.Duration
}

func New(cfg *config.Config, providers []Invoker, logger *zap.Logger) Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Composer{
		Providers: providers,
		Deadline:  cfg.Deadline,
		Logger:    logger,
		Now:       time.Now,
	}
}

// NewFromConfig builds the three provider clients and a Composer over them.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, opts ...provider.Option) (Composer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clients, err := provider.NewClients(cfg, append([]provider.Option{provider.WithLogger(logger)}, opts...)...)
	if err != nil {
		return Composer{}, err
	}
	invokers := make([]Invoker, 0, len(clients))
	for _, role := range domain.Roles() {
		invokers = append(invokers, clients[role])
	}
	return New(cfg, invokers, logger), nil
}

func (c Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Compose returns an intervention for a validated event. It never fails:
// provider failures and deadline expiry are absorbed into template content.
func (c Composer) Compose(ctx context.Context, ev domain.FocusEvent) domain.InterventionResponse {
	return c.ComposeDetailed(ctx, ev).Response
}

func (c Composer) ComposeDetailed(ctx context.Context, ev domain.FocusEvent) Composition {
	start := c.now()
	results := c.fanOut(ctx, ev)
	resp := Synthesize(ev, results)
	elapsed := c.now().Sub(start)

	if c.Logger != nil {
		fields := []zap.Field{
			zap.String("category", string(ev.Category)),
			zap.Duration("elapsed", elapsed),
		}
		if id := RequestID(ctx); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		for _, role := range domain.Roles() {
			fields = append(fields, zap.String(string(role), string(results[role].Origin)))
		}
		c.Logger.Info("intervention composed", fields...)
	}
	return Composition{Response: resp, Results: results, Elapsed: elapsed}
}

// fanOut invokes every provider concurrently and waits for all of them or the
// deadline, whichever comes first. Slots still empty at the deadline are
// filled with timeout fallbacks.
func (c Composer) fanOut(parent context.Context, ev domain.FocusEvent) map[domain.ProviderRole]domain.ProviderResult {
	ctx := parent
	cancel := func() {}
	if c.Deadline > 0 {
		ctx, cancel = context.WithTimeout(parent, c.Deadline)
	}
	defer cancel()

	var mu sync.Mutex
	slots := make(map[domain.ProviderRole]domain.ProviderResult, len(c.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range c.Providers {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil && c.Logger != nil {
					c.Logger.Error("provider panicked", zap.String("role", string(p.Role())), zap.Any("panic", r))
				}
			}()
			res := p.Invoke(gctx, ev)
			res.Role = p.Role()
			mu.Lock()
			slots[p.Role()] = res
			mu.Unlock()
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	out := make(map[domain.ProviderRole]domain.ProviderResult, len(domain.Roles()))
	for _, role := range domain.Roles() {
		if res, ok := slots[role]; ok {
			out[role] = res
			continue
		}
		out[role] = timeoutResult(role, ev.Category, ctx.Err())
	}
	return out
}

func timeoutResult(role domain.ProviderRole, category domain.Category, cause error) domain.ProviderResult {
	if cause == nil {
		cause = errors.New("provider did not report a result")
	}
	return domain.ProviderResult{
		Role:    role,
		Origin:  domain.OriginLiveFallback,
		Payload: templates.Template(role, category),
		Err:     &provider.Error{Role: role, Kind: provider.KindTimeout, Err: fmt.Errorf("compose deadline: %w", cause)},
	}
}

// Synthesize merges provider results into a response. Every field is
// guaranteed non-empty.
func Synthesize(ev domain.FocusEvent, results map[domain.ProviderRole]domain.ProviderResult) domain.InterventionResponse {
	entry := templates.Lookup(ev.Category)
	synth := results[domain.RoleSynthesis]
	evidence := results[domain.RoleEvidence]
	recency := results[domain.RoleRecency]

	var action string
	switch {
	case synth.Payload != "" && !synth.Failed():
		action = actionFrom(synth)
	case evidence.Payload != "" && !evidence.Failed():
		action = actionFrom(evidence)
	}
	if action == "" {
		action = entry.Action
	}

	why := templates.JoinRationale(evidence.Payload, recency.Payload)
	if why == "" {
		why = entry.WhyItWorks()
	}

	citation := entry.Citation
	for _, r := range []domain.ProviderResult{synth, evidence, recency} {
		if r.Origin == domain.OriginLiveSuccess && strings.TrimSpace(r.Source) != "" {
			citation = r.Source
			break
		}
	}

	return domain.InterventionResponse{
		ActionNow:    action,
		WhyItWorks:   why,
		GoalReminder: templates.GoalReminder(ev.Goal),
		Citation:     citation,
	}
}

// actionFrom reduces a provider payload to a single instruction. Template
// payloads are already one sentence and are used verbatim.
func actionFrom(r domain.ProviderResult) string {
	if r.Origin != domain.OriginLiveSuccess {
		return strings.TrimSpace(r.Payload)
	}
	return leadSentence(r.Payload)
}

func leadSentence(s string) string {
	s = firstInstruction(s)
	if i := sentenceEnd(s); i > 0 {
		s = s[:i]
	}
	if len(s) > actionLimit {
		cut := strings.LastIndexByte(s[:actionLimit], ' ')
		if cut <= 0 {
			cut = actionLimit
		}
		s = strings.TrimRight(s[:cut], " ,;:-") + "..."
	}
	return s
}

// firstInstruction picks the text holding the first instruction of a payload.
// Agents tend to answer with a preamble ending in ":" followed by a numbered
// or bulleted list, either on separate lines or flattened onto one.
func firstInstruction(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	first := lines[0]
	if strings.HasSuffix(first, ":") && len(lines) > 1 {
		if item, _, ok := listItem(lines[1]); ok {
			return item
		}
		return strings.Join(lines, " ")
	}
	if item, n, ok := listItem(first); ok {
		return cutAtItem(item, n+1)
	}
	for rest := first; ; {
		i := strings.Index(rest, ": ")
		if i < 0 {
			break
		}
		rest = rest[i+2:]
		if item, n, ok := listItem(rest); ok {
			return cutAtItem(item, n+1)
		}
	}
	return first
}

// listItem strips a leading "1. ", "2) ", "- ", "* " or "• " marker. It
// returns the item number, zero for bullets, and whether a marker was present.
func listItem(s string) (string, int, bool) {
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, bullet) {
			return strings.TrimSpace(s[len(bullet):]), 0, true
		}
	}
	if n, size := numberMarker(s); size > 0 {
		return strings.TrimSpace(s[size:]), n, true
	}
	return s, 0, false
}

// numberMarker parses a leading "12. " or "3) " marker and returns its number
// and length, or a zero length.
func numberMarker(s string) (int, int) {
	i := 0
	for i < len(s) && i < 3 && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(s) || (s[i] != '.' && s[i] != ')') || s[i+1] != ' ' {
		return 0, 0
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, 0
	}
	return n, i + 2
}

// cutAtItem ends a flattened list item where item number next begins.
func cutAtItem(s string, next int) string {
	if next < 2 {
		return s
	}
	for i := 1; i < len(s); i++ {
		if s[i-1] != ' ' {
			continue
		}
		if n, size := numberMarker(s[i:]); size > 0 && n == next {
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true, "st": true,
	"jr": true, "sr": true, "vs": true, "e.g": true, "i.e": true, "approx": true,
	"al": true, "fig": true, "cf": true,
}

// sentenceEnd returns the index just past the first sentence terminator
// followed by whitespace, or -1.
func sentenceEnd(s string) int {
	for i := 0; i+1 < len(s); i++ {
		c := s[i]
		if strings.IndexByte(".!?", c) < 0 || (s[i+1] != ' ' && s[i+1] != '\n') {
			continue
		}
		if c == '.' && !periodEndsSentence(s[:i]) {
			continue
		}
		return i + 1
	}
	return -1
}

// periodEndsSentence reports whether a period after before closes a sentence.
// Short numbers ("2."), initials ("J.") and known abbreviations do not.
func periodEndsSentence(before string) bool {
	word := before[strings.LastIndexAny(before, " \n(")+1:]
	if word == "" {
		return true
	}
	if len(word) <= 3 && strings.Trim(word, "0123456789") == "" {
		return false
	}
	if len(word) == 1 && word[0] >= 'A' && word[0] <= 'Z' {
		return false
	}
	return !abbreviations[strings.ToLower(word)]
}

type requestIDKey struct{}

// WithRequestID tags ctx with a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
