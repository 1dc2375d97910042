package registry

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	validate      = validator.New()
	symbolPattern = regexp.MustCompile(`^[A-Z]{2,5}$`)
	idPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

func init() {
	mustRegister("symbol", symbolPattern)
	mustRegister("priceid", idPattern)
}

func mustRegister(tag string, re *regexp.Regexp) {
	err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Token is one supported asset: ticker, display name and the price API id.
type Token struct {
	Symbol  string   `yaml:"symbol" json:"symbol" validate:"required,symbol"`
	Name    string   `yaml:"name" json:"name" validate:"required"`
	ID      string   `yaml:"id" json:"id" validate:"required,priceid"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty" validate:"dive,required,lowercase"`
	// CommonWord marks a symbol or id that is also an everyday word ("near").
	// Such tokens match free text only by display name, alias or the
	// uppercase ticker.
	CommonWord bool `yaml:"common_word,omitempty" json:"common_word,omitempty"`
}

// Registry is an ordered, read-only token table. Lookup order follows the
// order tokens were declared in, which keeps resolution deterministic.
type Registry struct {
	tokens   []Token
	bySymbol map[string]int
	byID     map[string]int
	byName   map[string]int
}

type file struct {
	Tokens []Token `yaml:"tokens" validate:"required,min=1,dive"`
}

var defaultTokens = []Token{
	{Symbol: "BTC", Name: "Bitcoin", ID: "bitcoin"},
	{Symbol: "ETH", Name: "Ethereum", ID: "ethereum", Aliases: []string{"ether"}},
	{Symbol: "SOL", Name: "Solana", ID: "solana"},
	{Symbol: "NEAR", Name: "NEAR Protocol", ID: "near"},
}

// Default returns the built-in table (BTC, ETH, SOL, NEAR).
func Default() *Registry {
	r, err := New(defaultTokens)
	if err != nil {
		panic("invalid default registry: " + err.Error())
	}
	return r
}

// Load reads a YAML token table from path. An empty path yields Default().
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("validate registry: %w", err)
	}
	return New(f.Tokens)
}

// New builds a registry, rejecting invalid entries and duplicate symbols,
// ids or names.
func New(tokens []Token) (*Registry, error) {
	if len(tokens) == 0 {
		return nil, errors.New("registry is empty")
	}
	r := &Registry{
		tokens:   make([]Token, 0, len(tokens)),
		bySymbol: make(map[string]int, len(tokens)),
		byID:     make(map[string]int, len(tokens)),
		byName:   make(map[string]int, len(tokens)*2),
	}
	for _, t := range tokens {
		if err := validate.Struct(t); err != nil {
			return nil, fmt.Errorf("token %q: %w", t.Symbol, err)
		}
		if _, dup := r.bySymbol[t.Symbol]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", t.Symbol)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate id %q", t.ID)
		}
		idx := len(r.tokens)
		t.Aliases = append([]string(nil), t.Aliases...)
		r.tokens = append(r.tokens, t)
		r.bySymbol[t.Symbol] = idx
		r.byID[t.ID] = idx

		for _, n := range t.Names() {
			if prev, dup := r.byName[n]; dup && prev != idx {
				return nil, fmt.Errorf("name %q used by %s and %s", n, r.tokens[prev].Symbol, t.Symbol)
			}
			r.byName[n] = idx
		}
	}
	return r, nil
}

// Names returns the lowercase strings that identify t in free text,
// excluding the symbol: display name, price id, aliases.
func (t Token) Names() []string {
	names := []string{strings.ToLower(t.Name)}
	if id := strings.ToLower(t.ID); id != names[0] {
		names = append(names, id)
	}
	for _, a := range t.Aliases {
		names = append(names, strings.ToLower(a))
	}
	return names
}

// Tokens returns a copy of the table in declaration order.
func (r *Registry) Tokens() []Token {
	out := make([]Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// Len returns the number of tokens.
func (r *Registry) Len() int { return len(r.tokens) }

// BySymbol looks a token up by ticker, ignoring case.
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	i, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// ByID looks a token up by price-source id.
func (r *Registry) ByID(id string) (Token, bool) {
	i, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// ByName looks a token up by display name, price id or alias, ignoring case.
func (r *Registry) ByName(name string) (Token, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// IDs returns every price-source id in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.tokens))
	for i, t := range r.tokens {
		ids[i] = t.ID
	}
	return ids
}
