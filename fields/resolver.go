// ABOUTME: Custom-field metadata resolver mapping opaque option ids to labels
// ABOUTME: Alias-keyed lookup with a 6-hour TTL cache and durable-cache fallback
package fields

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/rawjson"
	"github.com/harperreed/dealsync/store"
)

// BlobKey is the shared-state key under which the fetched option map is
// persisted.
const BlobKey = "deal_field_options"

// DefaultTTL is how long a fetched option map stays fresh.
const DefaultTTL = 6 * time.Hour

// Lister is the slice of the source adapter the resolver needs.
type Lister interface {
	ListDealFields(ctx context.Context) ([]any, error)
}

// logicalAliases maps each logical field name to the normalized
// upstream field names it may appear under. The raw field key (the
// opaque per-account hash) is always an alias too, picked up from the
// fetched definitions.
var logicalAliases = map[string][]string{
	canonical.FieldPipeline:   {"pipeline"},
	canonical.FieldLocation:   {"location", "lieu", "site", "lieu de formation"},
	canonical.FieldFunded:     {"funded", "financement", "finance", "financement opco"},
	canonical.FieldCertifying: {"certifying", "certifiante", "certification"},
	canonical.FieldRemote:     {"remote", "distanciel", "a distance", "remote training"},
	canonical.FieldFormations: {"formations", "formation", "formation labels", "training labels"},
}

// cachedOptions is the persisted form of the option map.
type cachedOptions struct {
	Fields    map[string]map[string]string `json:"fields"`
	FetchedAt time.Time                    `json:"fetched_at"`
}

// Resolver loads custom-field definitions lazily, caches them in memory
// under a TTL, and persists the last good fetch so a later process (or
// a failed refetch) can fall back to it. Load never raises: on total
// failure it serves an empty map and resolution passes values through.
type Resolver struct {
	lister Lister
	store  *store.Store
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cached *cachedOptions
}

// NewResolver creates a resolver bound to the source adapter and the
// record store.
func NewResolver(lister Lister, st *store.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lister: lister,
		store:  st,
		logger: logger,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

// Reset drops the in-memory cache so the next call reloads. Intended
// for tests and the explicit failure-triggered refetch path.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// Resolve maps a raw single-choice value to its label via any alias of
// the field. Unresolved fields or options pass the raw value through
// unchanged.
func (r *Resolver) Resolve(ctx context.Context, fieldAlias, rawValue string) string {
	options := r.Load(ctx)
	field, ok := options[fieldAlias]
	if !ok {
		field, ok = options[canonical.NormalizeText(fieldAlias)]
	}
	if !ok {
		return rawValue
	}
	if label, ok := field[rawValue]; ok {
		return label
	}
	if label, ok := field[canonical.NormalizeText(rawValue)]; ok {
		return label
	}
	return rawValue
}

// Load returns the alias-keyed option map, fetching from upstream only
// when the cached copy is older than the TTL. On fetch failure it
// serves the last persisted value if any, else an empty map.
func (r *Resolver) Load(ctx context.Context) map[string]map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached == nil {
		r.cached = r.loadPersisted()
	}
	if r.cached != nil && r.now().Sub(r.cached.FetchedAt) < r.ttl {
		return r.cached.Fields
	}

	raw, err := r.lister.ListDealFields(ctx)
	if err != nil {
		r.logger.Warn("field definition fetch failed, keeping last known options", zap.Error(err))
		if r.cached != nil {
			return r.cached.Fields
		}
		return map[string]map[string]string{}
	}

	fetched := &cachedOptions{Fields: buildAliasMap(raw), FetchedAt: r.now()}
	r.cached = fetched
	r.persist(fetched)
	return fetched.Fields
}

func (r *Resolver) loadPersisted() *cachedOptions {
	if r.store == nil {
		return nil
	}
	blob, err := r.store.GetBlob(BlobKey)
	if err != nil || len(blob) == 0 {
		return nil
	}
	var cached cachedOptions
	if err := json.Unmarshal(blob, &cached); err != nil {
		r.logger.Warn("discarding unreadable persisted field options", zap.Error(err))
		return nil
	}
	return &cached
}

func (r *Resolver) persist(cached *cachedOptions) {
	if r.store == nil {
		return
	}
	blob, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := r.store.PutBlob(BlobKey, blob); err != nil {
		r.logger.Warn("persisting field options failed", zap.Error(err))
	}
}

// buildAliasMap indexes every fetched field definition under all of its
// aliases: the raw key, the camel/snake variants of its name, the
// normalized-text form of each, and any matching logical field name.
func buildAliasMap(raw []any) map[string]map[string]string {
	out := map[string]map[string]string{}
	for _, item := range raw {
		def, ok := rawjson.AsObject(item)
		if !ok {
			continue
		}
		key, _ := rawjson.AsString(def["key"])
		name, _ := rawjson.AsString(def["name"])
		options := buildOptionMap(def["options"])
		if len(options) == 0 {
			continue
		}
		for _, alias := range fieldAliases(key, name) {
			if _, taken := out[alias]; !taken {
				out[alias] = options
			}
		}
	}
	return out
}

// buildOptionMap indexes each option label under its raw id and the
// normalized form of the label itself, so both spellings of a stored
// value resolve.
func buildOptionMap(raw any) map[string]string {
	items, ok := rawjson.AsArray(raw)
	if !ok {
		return nil
	}
	options := map[string]string{}
	for _, item := range items {
		opt, ok := rawjson.AsObject(item)
		if !ok {
			continue
		}
		label, _ := rawjson.AsString(opt["label"])
		if label == "" {
			continue
		}
		if id := rawjson.Stringify(opt["id"]); id != "" {
			options[id] = label
		}
		options[canonical.NormalizeText(label)] = label
	}
	return options
}

// fieldAliases expands a field's raw key and display name into the full
// alias set.
func fieldAliases(key, name string) []string {
	seen := map[string]bool{}
	var aliases []string
	add := func(alias string) {
		alias = strings.TrimSpace(alias)
		if alias == "" || seen[alias] {
			return
		}
		seen[alias] = true
		aliases = append(aliases, alias)
	}

	add(key)
	add(canonical.NormalizeText(key))
	add(name)
	add(toSnakeCase(name))
	add(toCamelCase(name))
	normalized := canonical.NormalizeText(name)
	add(normalized)

	for logical, names := range logicalAliases {
		for _, candidate := range names {
			if normalized == candidate {
				add(logical)
			}
		}
	}
	return aliases
}

func toSnakeCase(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	return strings.ToLower(strings.Join(fields, "_"))
}

func toCamelCase(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(fields[0]))
	for _, word := range fields[1:] {
		runes := []rune(strings.ToLower(word))
		if len(runes) == 0 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
