package ai

import (
	"fmt"
	"strings"

	"github.com/edibez/tokenagent/internal/registry"
)

const agentRole = `You are a Token Info Agent. You answer natural language questions about
current cryptocurrency token prices, such as "What's the price of SOL?",
"How much is 1 ETH in USD?" or "What's NEAR trading at?".`

const classifyPrompt = agentRole + `

Decide whether the user's latest message asks for the current price of a
cryptocurrency token.
- If it does, answer with the single word: yes
- If it does not, answer with one short sentence asking the user which token
  they would like price information for.
Do not add anything else.`

// extractPrompt asks for "name SYMBOL" and lists the supported tokens so the
// answer can be checked against the registry.
func extractPrompt(reg *registry.Registry) string {
	var b strings.Builder
	b.WriteString(agentRole)
	b.WriteString("\n\nIdentify the single token the user's latest message asks about.\n")
	b.WriteString("Answer with exactly two words: the token's lowercase name and its uppercase symbol,\n")
	b.WriteString("for example: bitcoin BTC\n")
	b.WriteString("Supported tokens:\n")
	for _, t := range reg.Tokens() {
		fmt.Fprintf(&b, "- %s %s (%s)\n", t.ID, t.Symbol, t.Name)
	}
	b.WriteString("If you cannot tell, answer: unknown")
	return b.String()
}
