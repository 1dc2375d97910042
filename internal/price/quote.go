package price

import (
	"time"

	"github.com/edibez/tokenagent/internal/registry"
)

// Quote is a freshly fetched USD price for one token. It lives for a single
// reply and is never cached.
type Quote struct {
	Token     registry.Token
	USD       float64
	FetchedAt time.Time
}
