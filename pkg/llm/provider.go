package llm

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when no provider is registered under the
// requested selector.
var ErrUnknownProvider = errors.New("unknown LLM provider")

// Endpoint identifies one concrete upstream target for a completion call.
// It is resolved from the settings snapshot before the call is made.
type Endpoint struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// Provider adapts one upstream LLM HTTP API to a text-in/text-out call.
// Implementations are stateless; the endpoint carries all per-call data.
type Provider interface {
	// Name returns the selector this provider registers under.
	Name() string

	// BuildURL returns the full request URL for the endpoint.
	BuildURL(ep Endpoint) string

	// SetHeaders adds provider-specific headers (auth, API version).
	SetHeaders(req *http.Request, ep Endpoint)

	// BuildRequestBody marshals the prompt into the provider wire format.
	BuildRequestBody(ep Endpoint, prompt string) ([]byte, error)

	// ParseResponse extracts the completion text from a response body.
	ParseResponse(body []byte) (string, error)
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// RegisterProvider makes a provider available under its Name. Providers
// call this from init; registering the same name twice panics.
func RegisterProvider(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	name := p.Name()
	if _, dup := providers[name]; dup {
		panic(fmt.Sprintf("llm: provider %q registered twice", name))
	}
	providers[name] = p
}

// GetProvider looks up a registered provider by selector.
func GetProvider(name string) (Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// ListProviders returns the registered selectors in sorted order.
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
