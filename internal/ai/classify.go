package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/edibez/tokenagent/internal/registry"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/edibez/tokenagent/pkg/types"
	"go.uber.org/zap"
)

// ErrMalformedExtraction is returned when the extraction answer is not
// exactly "name SYMBOL".
var ErrMalformedExtraction = errors.New("malformed token extraction")

var (
	extractedName   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	extractedSymbol = regexp.MustCompile(`^[A-Z]{2,5}$`)
)

// classify runs the two delegated steps: "is this a price query?", then
// "which token?". Completion failures and malformed answers are Unresolved.
func (r *Resolver) classify(ctx context.Context, text string, history []types.Message) Resolution {
	convo := r.conversation(text, history)

	answer, err := r.completer.Complete(ctx, withSystem(classifyPrompt, convo))
	if err != nil {
		logger.Log.Warn("price-query classification failed", zap.Error(err))
		return Resolution{Kind: Unresolved, Strategy: StrategyClassifier}
	}
	answer = strings.TrimSpace(answer)
	switch normalizeYesNo(answer) {
	case "yes":
	case "no", "":
		return Resolution{Kind: OffTopic, Strategy: StrategyClassifier}
	default:
		return Resolution{Kind: OffTopic, Strategy: StrategyClassifier, Clarification: answer}
	}

	answer, err = r.completer.Complete(ctx, withSystem(extractPrompt(r.reg), convo))
	if err != nil {
		logger.Log.Warn("token extraction failed", zap.Error(err))
		return Resolution{Kind: Unresolved, Strategy: StrategyClassifier}
	}
	name, symbol, err := ParseExtraction(answer)
	if err != nil {
		logger.Log.Info("discarding classifier output", zap.Error(err))
		return Resolution{Kind: Unresolved, Strategy: StrategyClassifier}
	}

	tok, ok := r.lookupExtracted(name, symbol)
	if !ok {
		return Resolution{Kind: Unresolved, Strategy: StrategyClassifier}
	}
	return Resolution{Kind: Resolved, Token: tok, Strategy: StrategyClassifier}
}

// ParseExtraction strictly parses "name SYMBOL": exactly two fields, a
// lowercase name and an uppercase 2-5 letter symbol.
func ParseExtraction(s string) (name, symbol string, err error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return "", "", fmt.Errorf("%w: want 2 fields, got %d in %q", ErrMalformedExtraction, len(fields), s)
	}
	name, symbol = fields[0], fields[1]
	if !extractedName.MatchString(name) {
		return "", "", fmt.Errorf("%w: bad name %q", ErrMalformedExtraction, name)
	}
	if !extractedSymbol.MatchString(symbol) {
		return "", "", fmt.Errorf("%w: bad symbol %q", ErrMalformedExtraction, symbol)
	}
	return name, symbol, nil
}

// lookupExtracted prefers the symbol, falling back to the name. A name and
// symbol that point at two different tokens is ambiguous and rejected.
func (r *Resolver) lookupExtracted(name, symbol string) (registry.Token, bool) {
	bySym, symOK := r.reg.BySymbol(symbol)
	byName, nameOK := r.reg.ByName(name)
	switch {
	case symOK && nameOK && bySym.Symbol != byName.Symbol:
		return registry.Token{}, false
	case symOK:
		return bySym, true
	case nameOK:
		return byName, true
	}
	return registry.Token{}, false
}

// conversation trims history to the recent user/assistant turns and makes
// sure it ends with the query being resolved.
func (r *Resolver) conversation(text string, history []types.Message) []types.Message {
	var out []types.Message
	for _, m := range history {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			out = append(out, m)
		}
	}
	if n := len(out); n == 0 || out[n-1].Role != types.RoleUser || strings.TrimSpace(out[n-1].Content) != text {
		out = append(out, types.Message{Role: types.RoleUser, Content: text})
	}
	if len(out) > r.maxHistory {
		out = out[len(out)-r.maxHistory:]
	}
	return out
}

func withSystem(prompt string, convo []types.Message) []types.Message {
	msgs := make([]types.Message, 0, len(convo)+1)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: prompt})
	return append(msgs, convo...)
}

func normalizeYesNo(s string) string {
	t := strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!"))
	if t == "yes" || t == "no" || t == "" {
		return t
	}
	return s
}
