package ai

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/edibez/tokenagent/internal/registry"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/edibez/tokenagent/pkg/metrics"
	"github.com/edibez/tokenagent/pkg/types"
	"go.uber.org/zap"
)

// Completer is the completion service: role-tagged messages in, free text out.
//
//go:generate mockgen -package=ai -destination=mock_completer_test.go -source=resolver.go Completer
type Completer interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

// Kind is the outcome of resolving one message.
type Kind int

const (
	Unresolved Kind = iota
	Resolved
	OffTopic
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case OffTopic:
		return "off_topic"
	default:
		return "unresolved"
	}
}

// Strategy names what decided a resolution.
type Strategy string

const (
	StrategyEmpty      Strategy = "empty"
	StrategyDirect     Strategy = "direct"
	StrategyPattern    Strategy = "pattern"
	StrategyClassifier Strategy = "classifier"
	StrategyNone       Strategy = "none"
)

// Resolution is the result of Resolve. Token is set only when Kind is
// Resolved. Clarification carries the classifier's own text for an
// off-topic message; empty means the fixed clarifying reply.
type Resolution struct {
	Kind          Kind
	Token         registry.Token
	Strategy      Strategy
	Clarification string
}

// Ticker-looking words in the original text
var tickerRegex = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// Uppercase words that look like tickers but are ordinary text or fiat.
var notTickers = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "US": true,
	"OK": true, "HI": true, "HEY": true, "HELLO": true, "PLEASE": true,
	"WHAT": true, "HOW": true, "IS": true, "IT": true, "THE": true, "OF": true,
	"IN": true, "ME": true, "MY": true, "AND": true, "FOR": true, "NOW": true,
	"TODAY": true, "PRICE": true, "MUCH": true, "AM": true, "PM": true, "AI": true,
}

type matcher struct {
	token     registry.Token
	substr    []string // multi-word or punctuated needles
	wholeWord []string
	exactWord []string // case-sensitive, for common-word tickers
}

// Resolver maps a user message to one registry token. It is safe for
// concurrent use; it holds no per-request state.
type Resolver struct {
	reg        *registry.Registry
	matchers   []matcher
	completer  Completer
	maxHistory int
}

// NewResolver builds a resolver over reg. completer may be nil, which
// disables delegated classification.
func NewResolver(reg *registry.Registry, completer Completer) *Resolver {
	r := &Resolver{reg: reg, completer: completer, maxHistory: 20}
	for _, t := range reg.Tokens() {
		m := matcher{token: t}
		// display names are matched anywhere in the text
		m.substr = append(m.substr, strings.ToLower(t.Name))
		needles := t.Aliases
		if t.CommonWord {
			m.exactWord = append(m.exactWord, t.Symbol)
		} else {
			needles = append([]string{t.Symbol, t.ID}, needles...)
		}
		for _, n := range needles {
			n = strings.ToLower(n)
			if n == strings.ToLower(t.Name) {
				continue
			}
			if isWord(n) {
				m.wholeWord = append(m.wholeWord, n)
			} else {
				m.substr = append(m.substr, n)
			}
		}
		r.matchers = append(r.matchers, m)
	}
	return r
}

// Resolve decides which token, if any, query asks about. history is the
// conversation so far (it may include query as its last entry) and is only
// consulted by delegated classification. Resolve never fails: every problem
// maps to Unresolved or OffTopic.
func (r *Resolver) Resolve(ctx context.Context, query string, history []types.Message) (res Resolution) {
	defer func() {
		metrics.Resolutions.WithLabelValues(string(res.Strategy), res.Kind.String()).Inc()
		logger.Log.Debug("token resolution",
			zap.String("strategy", string(res.Strategy)),
			zap.Stringer("kind", res.Kind),
			zap.String("symbol", res.Token.Symbol))
	}()

	text := strings.TrimSpace(query)
	if text == "" {
		return Resolution{Kind: OffTopic, Strategy: StrategyEmpty}
	}

	if tok, ok := r.matchDirect(text); ok {
		return Resolution{Kind: Resolved, Token: tok, Strategy: StrategyDirect}
	}

	tok, candidates := r.matchPattern(text)
	if tok != nil {
		return Resolution{Kind: Resolved, Token: *tok, Strategy: StrategyPattern}
	}
	// An unknown ticker is left to the classifier, whose answer must still
	// name a registry token.
	if candidates > 0 && r.completer == nil {
		return Resolution{Kind: Unresolved, Strategy: StrategyPattern}
	}

	if r.completer == nil {
		return Resolution{Kind: Unresolved, Strategy: StrategyNone}
	}
	return r.classify(ctx, text, history)
}

// matchDirect scans the lower-cased text in registry order; the first token
// with a matching name, id, alias or symbol wins.
func (r *Resolver) matchDirect(text string) (registry.Token, bool) {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	exact := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, notWordRune) {
		exact[w] = true
		words[strings.ToLower(w)] = true
	}

	for _, m := range r.matchers {
		for _, s := range m.substr {
			if strings.Contains(lower, s) {
				return m.token, true
			}
		}
		for _, w := range m.wholeWord {
			if words[w] {
				return m.token, true
			}
		}
		for _, w := range m.exactWord {
			if exact[w] {
				return m.token, true
			}
		}
	}
	return registry.Token{}, false
}

// matchPattern looks for uppercase ticker-like words. It returns the first
// registered one, and how many candidates were seen at all.
func (r *Resolver) matchPattern(text string) (*registry.Token, int) {
	candidates := 0
	for _, code := range tickerRegex.FindAllString(text, -1) {
		if notTickers[code] {
			continue
		}
		candidates++
		if tok, ok := r.reg.BySymbol(code); ok {
			return &tok, candidates
		}
	}
	return nil, candidates
}

func isWord(s string) bool {
	for _, c := range s {
		if notWordRune(c) {
			return false
		}
	}
	return s != ""
}

func notWordRune(c rune) bool {
	return !unicode.IsLetter(c) && !unicode.IsDigit(c)
}
