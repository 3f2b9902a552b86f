package server

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// clientContextKey is the context key for the client ID.
type clientContextKey struct{}

// ClientFromContext extracts the client ID from context.
func ClientFromContext(ctx context.Context) (string, bool) {
	if client, ok := ctx.Value(clientContextKey{}).(string); ok && client != "" {
		return client, true
	}
	return "", false
}

// WithClient returns a context with the client ID set.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientSource defines a single client extraction method.
type ClientSource struct {
	// Type: "claim", "header" or "query_param"
	Type string

	// Name of the claim, header or parameter.
	Name string

	// Pattern is an optional regex with exactly one capture group. If empty,
	// the entire value is the client ID.
	Pattern string

	compiledPattern *regexp.Regexp
}

// DefaultClientSources prefers the token subject, then the given header.
func DefaultClientSources(header string) []ClientSource {
	sources := []ClientSource{{Type: "claim", Name: "sub"}}
	if header != "" {
		sources = append(sources, ClientSource{Type: "header", Name: header})
	}
	return sources
}

// ClientIdentifier names the caller of a request. Requests that match no
// source are identified by their remote address.
type ClientIdentifier struct {
	sources []ClientSource
}

// NewClientIdentifier creates an identifier that tries sources in order.
func NewClientIdentifier(sources []ClientSource) (*ClientIdentifier, error) {
	ci := &ClientIdentifier{sources: make([]ClientSource, len(sources))}
	copy(ci.sources, sources)
	for i := range ci.sources {
		src := &ci.sources[i]
		switch src.Type {
		case "claim", "header", "query_param":
		default:
			return nil, fmt.Errorf("unknown client source type: %s", src.Type)
		}
		if src.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(src.Pattern)
		if err != nil {
			return nil, fmt.Errorf("client source %s: %w", src.Name, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("client source %s: pattern needs exactly one capture group", src.Name)
		}
		src.compiledPattern = re
	}
	return ci, nil
}

// Identify returns the first valid client ID the sources yield, or
// "ip:<remote>" when none does.
func (ci *ClientIdentifier) Identify(req ClientRequest) string {
	for i := range ci.sources {
		src := &ci.sources[i]
		if client := src.extract(req); client != "" && ValidateClientID(client) == nil {
			return client
		}
	}
	return "ip:" + req.RemoteIP()
}

func (src *ClientSource) extract(req ClientRequest) string {
	var value string
	switch src.Type {
	case "claim":
		value = req.Claim(src.Name)
	case "header":
		value = req.Header(src.Name)
	case "query_param":
		value = req.QueryParam(src.Name)
	}
	if value == "" || src.compiledPattern == nil {
		return value
	}

	matches := src.compiledPattern.FindStringSubmatch(value)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// ClientRequest provides the parts of a request a client ID may come from.
type ClientRequest interface {
	Claim(name string) string
	Header(name string) string
	QueryParam(name string) string
	RemoteIP() string
}

// MapClientRequest is a simple map-based implementation of ClientRequest.
type MapClientRequest struct {
	Claims      map[string]string
	Headers     map[string]string
	QueryParams map[string]string
	Remote      string
}

func (m *MapClientRequest) Claim(name string) string { return m.Claims[name] }

func (m *MapClientRequest) Header(name string) string {
	// Case-insensitive header lookup
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (m *MapClientRequest) QueryParam(name string) string { return m.QueryParams[name] }

func (m *MapClientRequest) RemoteIP() string { return m.Remote }

// ValidateClientID checks that a client ID is short and printable.
// IDs may contain letters, digits and the characters "_-.@:".
func ValidateClientID(client string) error {
	if client == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if len(client) > 128 {
		return fmt.Errorf("client ID too long (max 128 characters)")
	}
	for _, r := range client {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || strings.ContainsRune("_-.@:", r)) {
			return fmt.Errorf("client ID contains invalid character: %c", r)
		}
	}
	return nil
}
