// ABOUTME: Top-level canonicalization of raw deals into DealRecord
// ABOUTME: Resolves client references, custom fields, formation labels and product splits
package canonical

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/rawjson"
)

// ErrMalformedRecord is returned when a raw deal lacks a usable numeric
// identifier. The record is dropped; the batch continues.
var ErrMalformedRecord = errors.New("raw deal has no usable identifier")

// Resolver maps a raw custom-field value to its human label. Unresolved
// values pass through unchanged.
type Resolver interface {
	Resolve(ctx context.Context, fieldAlias, rawValue string) string
}

// Logical field aliases understood by the resolver.
const (
	FieldPipeline   = "pipeline"
	FieldLocation   = "location"
	FieldFunded     = "funded"
	FieldCertifying = "certifying"
	FieldRemote     = "remote"
	FieldFormations = "formations"
)

var (
	dealIDKeys = []string{"id", "deal_id", "dealId"}
	titleKeys  = []string{"title", "name", "deal_title", "dealTitle", "subject"}
	orgKeys    = []string{"org_id", "orgId", "organization", "org", "company", "org_name", "orgName"}
	personKeys = []string{"person_id", "personId", "person", "contact"}
	wonKeys    = []string{"won_time", "wonTime", "won_date", "wonDate", "close_time", "closeTime"}

	pipelineKeys = []string{"pipeline_id", "pipelineId", "pipeline"}

	// Raw keys for the custom single-choice fields. The hex entries are
	// the opaque per-account field hashes observed upstream; the named
	// entries cover accounts where the API reports the field by name.
	locationKeys = []string{
		"9b4c2f1ad64209b7fbd167db983baa5c9a7e35dc",
		"location", "lieu", "site", "place",
	}
	fundedKeys = []string{
		"1f2eb43c8e6e9a317a3c82a9bd5c3f62ed51ab07",
		"funded", "financement", "finance",
	}
	certifyingKeys = []string{
		"7d0a6e35c41b2ffdb6a3f8e9125c7304ab98de16",
		"certifying", "certifiante", "certification",
	}
	remoteKeys = []string{
		"c3b58f02a7de4416982cd1faa06e5b6d74c09ae8",
		"remote", "distanciel", "remote_training",
	}
	formationsKeys = []string{
		"e5a41c77b92d83f0a64b1dc2f50839cad7162b45",
		"formations", "formation_labels", "formationLabels", "formation", "training_labels",
	}

	dealNoteKeys = []string{"notes", "comments"}
	dealFileKeys = []string{"files", "attachments", "documents"}
)

// Engine performs the reconciliation of a raw deal into its canonical
// form. It is safe for concurrent use; per-run state (placeholder ids,
// dedup sets) lives in a run value.
type Engine struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewEngine creates a canonicalization engine.
func NewEngine(resolver Resolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{resolver: resolver, logger: logger}
}

// Input carries the raw deal plus the separately fetched related
// collections. Only Deal is required.
type Input struct {
	Deal     rawjson.Object
	Products []any
	Notes    []any
	Files    []any
}

// run holds the state of one canonicalization pass.
type run struct {
	placeholder int64
	products    map[int64]*productEntry
	order       []int64
}

func (r *run) nextPlaceholder() int64 {
	r.placeholder--
	return r.placeholder
}

// Canonicalize rebuilds the canonical record for one raw deal. It fails
// only when the deal has no numeric identifier.
func (e *Engine) Canonicalize(ctx context.Context, in Input) (*models.DealRecord, error) {
	records := CollectCandidateRecords(in.Deal)

	id, ok := FindFirstInt(records, dealIDKeys)
	if !ok || id == 0 {
		return nil, ErrMalformedRecord
	}

	rec := &models.DealRecord{
		ID:               id,
		TrainingProducts: []models.DealProduct{},
		ExtraProducts:    []models.DealProduct{},
	}
	rec.Title, _ = FindFirstString(records, titleKeys)
	rec.Client = e.resolveClient(records)
	if won, ok := FindFirstValue(records, wonKeys); ok {
		rec.WonAt = parseTimestamp(won)
	}
	e.resolvePipeline(ctx, records, rec)

	rec.Location = e.resolveChoice(ctx, records, locationKeys, FieldLocation)
	rec.Funded = e.resolveChoice(ctx, records, fundedKeys, FieldFunded)
	rec.Certifying = e.resolveChoice(ctx, records, certifyingKeys, FieldCertifying)
	rec.Remote = e.resolveChoice(ctx, records, remoteKeys, FieldRemote)

	r := &run{products: map[int64]*productEntry{}}
	r.collectProducts(records, in.Products)
	for _, product := range r.orderedProducts() {
		if product.IsTraining {
			rec.TrainingProducts = append(rec.TrainingProducts, product)
		} else {
			rec.ExtraProducts = append(rec.ExtraProducts, product)
		}
	}

	rec.FormationLabels = e.mergeFormationLabels(ctx, records, rec.TrainingProducts)
	e.aggregateNotes(records, in, rec)

	e.logger.Debug("canonicalized deal",
		zap.Int64("deal_id", rec.ID),
		zap.Int("training_products", len(rec.TrainingProducts)),
		zap.Int("extra_products", len(rec.ExtraProducts)),
		zap.Int("notes", len(rec.Notes)),
		zap.Int("attachments", len(rec.Attachments)))

	return rec, nil
}

// resolveClient absorbs the raw organization/contact shapes: a bare
// number is an id, a bare string a name, an object carries id, name and
// address under their own alias sets.
func (e *Engine) resolveClient(records []rawjson.Object) *models.RelatedEntity {
	value, ok := FindFirstValue(records, orgKeys)
	if !ok {
		value, ok = FindFirstValue(records, personKeys)
	}
	if !ok {
		return nil
	}
	return normalizeRelated(value)
}

func normalizeRelated(value any) *models.RelatedEntity {
	if id, ok := rawjson.AsNumber(value); ok {
		n := int64(id)
		return &models.RelatedEntity{ID: &n}
	}
	if name, ok := rawjson.AsString(value); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		return &models.RelatedEntity{Name: name}
	}
	obj, ok := rawjson.AsObject(value)
	if !ok {
		return nil
	}
	entity := &models.RelatedEntity{}
	if id, ok := FindFirstInt([]rawjson.Object{obj}, []string{"value", "id", "org_id", "person_id"}); ok {
		entity.ID = &id
	}
	entity.Name, _ = FindFirstString([]rawjson.Object{obj}, []string{"name", "org_name", "label", "title"})
	entity.Address, _ = FindFirstString([]rawjson.Object{obj}, []string{"address", "address_formatted", "location"})
	if entity.ID == nil && entity.Name == "" && entity.Address == "" {
		return nil
	}
	return entity
}

// resolvePipeline handles the three raw pipeline shapes: numeric id,
// textual name, or an embedded object.
func (e *Engine) resolvePipeline(ctx context.Context, records []rawjson.Object, rec *models.DealRecord) {
	value, ok := FindFirstValue(records, pipelineKeys)
	if !ok {
		return
	}
	if obj, isObj := rawjson.AsObject(value); isObj {
		if id, ok := rawjson.AsInt(obj["id"]); ok {
			rec.PipelineID = &id
		}
		rec.PipelineName, _ = rawjson.AsString(obj["name"])
		return
	}
	if id, isNum := rawjson.AsNumber(value); isNum {
		n := int64(id)
		rec.PipelineID = &n
		rec.PipelineName = e.resolver.Resolve(ctx, FieldPipeline, rawjson.Stringify(value))
		return
	}
	if s, isStr := rawjson.AsString(value); isStr {
		rec.PipelineName = e.resolver.Resolve(ctx, FieldPipeline, s)
	}
}

// resolveChoice extracts a raw single-choice value and resolves it to
// its label. Absent values stay empty; unresolved ones pass through.
func (e *Engine) resolveChoice(ctx context.Context, records []rawjson.Object, rawKeys []string, alias string) string {
	value, ok := FindFirstValue(records, rawKeys)
	if !ok {
		return ""
	}
	raw := rawjson.Stringify(value)
	if raw == "" {
		return ""
	}
	return e.resolver.Resolve(ctx, alias, raw)
}

// mergeFormationLabels combines the explicit formation-label custom
// field with the names of classified training products, deduplicated by
// normalized text with the first-seen original casing retained.
func (e *Engine) mergeFormationLabels(ctx context.Context, records []rawjson.Object, training []models.DealProduct) []string {
	var labels []string
	seen := map[string]bool{}
	add := func(label string) {
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		key := NormalizeText(label)
		if seen[key] {
			return
		}
		seen[key] = true
		labels = append(labels, label)
	}

	if value, ok := FindFirstValue(records, formationsKeys); ok {
		for _, raw := range splitMultiValue(value) {
			add(e.resolver.Resolve(ctx, FieldFormations, raw))
		}
	}
	for _, product := range training {
		add(product.Name)
	}
	return labels
}

// splitMultiValue flattens a multi-choice raw value: an array of
// scalars, or a comma/semicolon separated string.
func splitMultiValue(value any) []string {
	if arr, ok := rawjson.AsArray(value); ok {
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s := rawjson.Stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	s := rawjson.Stringify(value)
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// aggregateNotes gathers deal-level notes and files from the fetched
// collections and any arrays embedded in the raw deal, then appends the
// product-scoped ones with their back-references. Duplicate ids across
// the source arrays are discarded, first occurrence wins.
func (e *Engine) aggregateNotes(records []rawjson.Object, in Input, rec *models.DealRecord) {
	seenNotes := map[string]bool{}
	seenAtts := map[string]bool{}
	addNote := func(n models.DealNote) {
		key := noteDedupKey(n)
		if seenNotes[key] {
			return
		}
		seenNotes[key] = true
		rec.Notes = append(rec.Notes, n)
	}
	addAtt := func(a models.DealAttachment) {
		key := attachmentDedupKey(a)
		if seenAtts[key] {
			return
		}
		seenAtts[key] = true
		rec.Attachments = append(rec.Attachments, a)
	}

	for _, raw := range in.Notes {
		if note, ok := normalizeNote(raw, models.OriginDeal, nil); ok {
			addNote(note)
		}
	}
	for _, raw := range in.Files {
		if att, ok := normalizeAttachment(raw, models.OriginDeal, nil); ok {
			addAtt(att)
		}
	}
	for _, record := range records {
		for _, key := range dealNoteKeys {
			if items, ok := rawjson.AsArray(record[key]); ok {
				for _, raw := range items {
					if note, ok := normalizeNote(raw, models.OriginDeal, nil); ok {
						addNote(note)
					}
				}
			}
		}
		for _, key := range dealFileKeys {
			if items, ok := rawjson.AsArray(record[key]); ok {
				for _, raw := range items {
					if att, ok := normalizeAttachment(raw, models.OriginDeal, nil); ok {
						addAtt(att)
					}
				}
			}
		}
	}

	for _, product := range rec.Products() {
		for _, note := range product.Notes {
			addNote(note)
		}
		for _, att := range product.Attachments {
			addAtt(att)
		}
	}
}
