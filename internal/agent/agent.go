package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/edibez/tokenagent/internal/ai"
	"github.com/edibez/tokenagent/internal/price"
	"github.com/edibez/tokenagent/internal/registry"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/edibez/tokenagent/pkg/metrics"
	"github.com/edibez/tokenagent/pkg/types"
	"go.uber.org/zap"
)

// Fixed replies. None of them carries error detail.
const (
	MsgNotFound    = "Sorry, I couldn't find price data for that token."
	MsgFetchFailed = "Unable to fetch price data right now. Please try again."
	MsgClarify     = "Please specify which token you'd like price information for."
)

// Outcome of one invocation
type Outcome string

const (
	OutcomeQuoted      Outcome = "quoted"
	OutcomeUnresolved  Outcome = "unresolved"
	OutcomeOffTopic    Outcome = "off_topic"
	OutcomeFetchFailed Outcome = "fetch_failed"
)

// Resolver maps a message to a token.
type Resolver interface {
	Resolve(ctx context.Context, query string, history []types.Message) ai.Resolution
}

// PriceSource returns the USD price for a price-source id.
//
//go:generate mockgen -package=agent -destination=mock_price_source_test.go -source=agent.go PriceSource
type PriceSource interface {
	Price(ctx context.Context, id string) (float64, error)
}

// Conversation is the transport: it supplies messages and takes one reply.
type Conversation interface {
	LatestUserMessage() (types.Message, bool)
	Messages() []types.Message
	AddReply(content string) error
}

// Reply is the single message produced for an invocation, plus what led to it.
type Reply struct {
	Text    string
	Outcome Outcome
	Token   *registry.Token
	Quote   *price.Quote
}

// Agent answers price questions. It keeps no state between invocations.
type Agent struct {
	resolver Resolver
	prices   PriceSource
	now      func() time.Time
}

// New creates an agent
func New(resolver Resolver, prices PriceSource) *Agent {
	return &Agent{resolver: resolver, prices: prices, now: time.Now}
}

// Run reads the latest user message from conv and adds exactly one reply.
func (a *Agent) Run(ctx context.Context, conv Conversation) (Reply, error) {
	msg, _ := conv.LatestUserMessage()
	reply := a.Respond(ctx, msg.Content, conv.Messages())
	if err := conv.AddReply(reply.Text); err != nil {
		return reply, fmt.Errorf("add reply: %w", err)
	}
	return reply, nil
}

// Respond resolves query, fetches a price when a token was found and formats
// the reply: Resolving -> Fetching -> Replying. Any stage may short-circuit
// to a fixed message.
func (a *Agent) Respond(ctx context.Context, query string, history []types.Message) (reply Reply) {
	log := logger.Log.With(zap.String("query", truncate(query, 200)))
	defer func() {
		metrics.Replies.WithLabelValues(string(reply.Outcome)).Inc()
		log.Info("reply", zap.String("outcome", string(reply.Outcome)))
	}()

	res := a.resolver.Resolve(ctx, query, history)
	switch res.Kind {
	case ai.OffTopic:
		text := MsgClarify
		if c := strings.TrimSpace(res.Clarification); c != "" {
			text = res.Clarification
		}
		return Reply{Text: text, Outcome: OutcomeOffTopic}
	case ai.Resolved:
	default:
		return Reply{Text: MsgNotFound, Outcome: OutcomeUnresolved}
	}

	tok := res.Token
	log = log.With(zap.String("symbol", tok.Symbol), zap.String("id", tok.ID))
	usd, err := a.prices.Price(ctx, tok.ID)
	if err != nil {
		var fe *price.FetchError
		if errors.As(err, &fe) {
			log.Warn("price fetch failed", zap.Stringer("cause", fe.Cause), zap.Int("status", fe.Status), zap.Error(fe.Err))
		} else {
			log.Warn("price fetch failed", zap.Error(err))
		}
		return Reply{Text: MsgFetchFailed, Outcome: OutcomeFetchFailed, Token: &tok}
	}
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		log.Warn("price source returned an unusable value", zap.Float64("usd", usd))
		return Reply{Text: MsgFetchFailed, Outcome: OutcomeFetchFailed, Token: &tok}
	}

	quote := &price.Quote{Token: tok, USD: usd, FetchedAt: a.now()}
	return Reply{Text: FormatQuote(*quote), Outcome: OutcomeQuoted, Token: &tok, Quote: quote}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
