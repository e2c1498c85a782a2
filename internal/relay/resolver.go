package relay

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// Telegram usernames: 4-32 chars, letters, digits and underscores, starting with a letter.
var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

// urlHosts are the hosts accepted in chat links.
var urlHosts = []string{"t.me/", "telegram.me/", "telegram.dog/"}

// ChatResolver maps chat identifiers to numeric handles.
// Results are cached, so repeated calls for the same identifier return the
// same handle with a single lookup. Safe for concurrent use.
type ChatResolver struct {
	lookup Lookup
	mu     sync.Mutex
	cache  map[string]bus.ChatHandle
}

// NewChatResolver creates a resolver backed by lookup.
func NewChatResolver(lookup Lookup) *ChatResolver {
	return &ChatResolver{
		lookup: lookup,
		cache:  make(map[string]bus.ChatHandle),
	}
}

// Resolve accepts raw numeric IDs (including "-100…"), "@username", bare
// usernames and t.me links. Numeric forms never hit the network.
func (r *ChatResolver) Resolve(ctx context.Context, identifier string) (bus.ChatHandle, error) {
	key, handle, numeric, err := normalizeIdentifier(identifier)
	if err != nil {
		return 0, err
	}
	if numeric {
		return handle, nil
	}

	r.mu.Lock()
	if h, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	if r.lookup == nil {
		return 0, &ResolutionError{Identifier: identifier, Reason: "no lookup available for " + key}
	}
	id, err := r.lookup.ResolveIdentifier(ctx, key)
	if err != nil {
		return 0, &ResolutionError{Identifier: identifier, Reason: "lookup failed", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.cache[key]; ok {
		return h, nil
	}
	r.cache[key] = bus.ChatHandle(id)
	return bus.ChatHandle(id), nil
}

// normalizeIdentifier classifies an identifier. For numeric forms it returns
// the parsed handle; otherwise the "@username" key to look up.
func normalizeIdentifier(identifier string) (key string, handle bus.ChatHandle, numeric bool, err error) {
	s := strings.TrimSpace(identifier)
	if s == "" {
		return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "empty identifier"}
	}

	if isNumeric(s) {
		id, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil || id == 0 {
			return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "malformed numeric id", Err: perr}
		}
		return "", bus.ChatHandle(id), true, nil
	}

	if rest, ok := stripURL(s); ok {
		return normalizeLink(identifier, rest)
	}

	name := strings.TrimPrefix(s, "@")
	if !usernamePattern.MatchString(name) {
		return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "not a valid username"}
	}
	return "@" + strings.ToLower(name), 0, false, nil
}

// normalizeLink handles the path part of a t.me link.
func normalizeLink(identifier, path string) (string, bus.ChatHandle, bool, error) {
	path = strings.Trim(path, "/")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	first := segments[0]

	switch {
	case first == "":
		return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "link has no chat"}
	case strings.HasPrefix(first, "+") || first == "joinchat":
		return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "invite links cannot be resolved by a bot"}
	case first == "c":
		// Private post link: t.me/c/<internal id>/<post> → -100<internal id>.
		if len(segments) < 2 || !isDigits(segments[1]) {
			return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "malformed private link"}
		}
		id, err := strconv.ParseInt("-100"+segments[1], 10, 64)
		if err != nil {
			return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "malformed private link", Err: err}
		}
		return "", bus.ChatHandle(id), true, nil
	case first == "s" && len(segments) > 1:
		// Web preview link: t.me/s/<name>.
		first = segments[1]
	}

	name := strings.TrimPrefix(first, "@")
	if !usernamePattern.MatchString(name) {
		return "", 0, false, &ResolutionError{Identifier: identifier, Reason: "not a valid username in link"}
	}
	return "@" + strings.ToLower(name), 0, false, nil
}

// stripURL removes scheme and host from a Telegram link.
func stripURL(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			lower = lower[len(scheme):]
			s = s[len(scheme):]
			break
		}
	}
	if strings.HasPrefix(lower, "www.") {
		lower = lower[4:]
		s = s[4:]
	}
	for _, host := range urlHosts {
		if strings.HasPrefix(lower, host) {
			return s[len(host):], true
		}
	}
	return "", false
}

func isNumeric(s string) bool {
	return isDigits(strings.TrimPrefix(s, "-"))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
