package relay

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/config"
)

// RoutingTable maps a source chat to its ordered destinations.
// Built once at startup and read-only afterwards, so it needs no locking.
type RoutingTable struct {
	routes  map[bus.ChatHandle][]bus.ChatHandle
	sources []bus.ChatHandle
}

// BuildRoutingTable resolves every identifier in mapping. Any resolution
// failure is reported as a ConfigurationError wrapping the ResolutionError.
func BuildRoutingTable(ctx context.Context, resolver *ChatResolver, mapping map[string][]string) (*RoutingTable, error) {
	if len(mapping) == 0 {
		return nil, &config.ConfigurationError{Field: "from_to", Reason: "no routes configured"}
	}

	srcIDs := make([]string, 0, len(mapping))
	for src := range mapping {
		srcIDs = append(srcIDs, src)
	}
	sort.Strings(srcIDs)

	t := &RoutingTable{routes: make(map[bus.ChatHandle][]bus.ChatHandle, len(mapping))}
	for _, srcID := range srcIDs {
		field := "from_to." + strings.TrimSpace(srcID)
		dests := mapping[srcID]
		if len(dests) == 0 {
			return nil, &config.ConfigurationError{Field: field, Reason: "no destinations"}
		}

		src, err := resolver.Resolve(ctx, srcID)
		if err != nil {
			return nil, &config.ConfigurationError{Field: field, Reason: "source", Err: err}
		}

		existing, merged := t.routes[src]
		if merged {
			slog.Warn("source listed twice, merging destinations", "identifier", srcID, "chat_id", src)
		}
		for _, destID := range dests {
			dst, err := resolver.Resolve(ctx, destID)
			if err != nil {
				return nil, &config.ConfigurationError{Field: field, Reason: "destination", Err: err}
			}
			if dst == src {
				return nil, &config.ConfigurationError{Field: field, Reason: fmt.Sprintf("destination %q is the source itself", destID)}
			}
			if slices.Contains(existing, dst) {
				slog.Debug("duplicate destination dropped", "source", src, "destination", dst)
				continue
			}
			existing = append(existing, dst)
		}
		t.routes[src] = existing
		if !merged {
			t.sources = append(t.sources, src)
		}
	}

	slices.Sort(t.sources)
	return t, nil
}

// DestinationsFor returns the destinations for src, or nil when src is not a
// configured source. Callers treat empty as "ignore".
func (t *RoutingTable) DestinationsFor(src bus.ChatHandle) []bus.ChatHandle {
	return slices.Clone(t.routes[src])
}

// Sources returns the configured source handles in ascending order.
func (t *RoutingTable) Sources() []bus.ChatHandle { return slices.Clone(t.sources) }

// Len returns the number of configured sources.
func (t *RoutingTable) Len() int { return len(t.sources) }
