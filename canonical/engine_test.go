// ABOUTME: Tests for top-level deal canonicalization
// ABOUTME: Covers the full assembly path, field resolution and aggregation dedup
package canonical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/dealsync/rawjson"
)

// mapResolver resolves from a fixed table and passes everything else
// through, like the real resolver does on a miss.
type mapResolver struct {
	table map[string]map[string]string
}

func (r *mapResolver) Resolve(_ context.Context, fieldAlias, rawValue string) string {
	if options, ok := r.table[fieldAlias]; ok {
		if label, ok := options[rawValue]; ok {
			return label
		}
	}
	return rawValue
}

func newTestEngine(table map[string]map[string]string) *Engine {
	return NewEngine(&mapResolver{table: table}, nil)
}

func TestCanonicalizeRequiresNumericID(t *testing.T) {
	engine := newTestEngine(nil)

	_, err := engine.Canonicalize(context.Background(), Input{Deal: rawjson.Object{"title": "no id"}})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = engine.Canonicalize(context.Background(), Input{Deal: rawjson.Object{"id": "not-a-number"}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestCanonicalizeTrainingDealScenario(t *testing.T) {
	// One deal whose single line item appears under two alternate keys
	// with complementary halves, code FORM-A and a free-text duration.
	engine := newTestEngine(nil)

	deal := rawjson.Object{
		"id":    float64(42),
		"title": "Formation sécurité",
		"products": []any{
			map[string]any{
				"deal_product_id": float64(1),
				"name":            "Formation A",
				"code":            "FORM-A",
			},
		},
		"line_items": []any{
			map[string]any{
				"item_id":           float64(1),
				"recommended_hours": "2 jours (14h)",
				"quantity":          float64(1),
			},
		},
	}

	rec, err := engine.Canonicalize(context.Background(), Input{Deal: deal})
	require.NoError(t, err)

	assert.Equal(t, int64(42), rec.ID)
	require.Len(t, rec.TrainingProducts, 1)
	assert.Empty(t, rec.ExtraProducts)

	p := rec.TrainingProducts[0]
	assert.True(t, p.IsTraining)
	require.NotNil(t, p.RecommendedHours)
	assert.Equal(t, float64(2), *p.RecommendedHours)
	assert.Equal(t, "2 jours (14h)", p.RecommendedHoursText)

	// The training product name feeds the formation labels.
	assert.Equal(t, []string{"Formation A"}, rec.FormationLabels)
}

func TestCanonicalizeClientShapes(t *testing.T) {
	engine := newTestEngine(nil)

	tests := []struct {
		name     string
		org      any
		wantID   *int64
		wantName string
	}{
		{"bare number", float64(77), int64Ptr(77), ""},
		{"bare string", "Acme Corp", nil, "Acme Corp"},
		{"object", map[string]any{"value": float64(8), "name": "Globex", "address": "12 rue X"}, int64Ptr(8), "Globex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := engine.Canonicalize(context.Background(), Input{
				Deal: rawjson.Object{"id": float64(1), "org_id": tt.org},
			})
			require.NoError(t, err)
			require.NotNil(t, rec.Client)
			if tt.wantID == nil {
				assert.Nil(t, rec.Client.ID)
			} else {
				require.NotNil(t, rec.Client.ID)
				assert.Equal(t, *tt.wantID, *rec.Client.ID)
			}
			assert.Equal(t, tt.wantName, rec.Client.Name)
		})
	}
}

func TestCanonicalizeResolvesChoiceFields(t *testing.T) {
	engine := newTestEngine(map[string]map[string]string{
		FieldLocation: {"31": "Paris"},
		FieldFunded:   {"7": "OPCO"},
	})

	rec, err := engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{
			"id": float64(2),
			"custom_fields": map[string]any{
				"9b4c2f1ad64209b7fbd167db983baa5c9a7e35dc": float64(31),
				"1f2eb43c8e6e9a317a3c82a9bd5c3f62ed51ab07": "7",
			},
			"certifiante": "unmapped-value",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", rec.Location)
	assert.Equal(t, "OPCO", rec.Funded)
	assert.Equal(t, "unmapped-value", rec.Certifying, "unresolved values pass through")
	assert.Empty(t, rec.Remote, "absent fields stay empty")
}

func TestCanonicalizePipelineShapes(t *testing.T) {
	engine := newTestEngine(map[string]map[string]string{
		FieldPipeline: {"3": "Ventes"},
	})

	rec, err := engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{"id": float64(1), "pipeline_id": float64(3)},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.PipelineID)
	assert.Equal(t, int64(3), *rec.PipelineID)
	assert.Equal(t, "Ventes", rec.PipelineName)

	rec, err = engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{
			"id":       float64(2),
			"pipeline": map[string]any{"id": float64(9), "name": "Avant-vente"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.PipelineID)
	assert.Equal(t, int64(9), *rec.PipelineID)
	assert.Equal(t, "Avant-vente", rec.PipelineName)
}

func TestCanonicalizeFormationLabelDedup(t *testing.T) {
	// The explicit field and a training product spell the same label
	// with different diacritics and casing; only the first survives.
	engine := newTestEngine(nil)

	rec, err := engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{
			"id":         float64(3),
			"formations": []any{"Sécurité Incendie", "Gestes et Postures"},
			"training_products": []any{
				map[string]any{"id": float64(1), "name": "securite incendie"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sécurité Incendie", "Gestes et Postures"}, rec.FormationLabels)
}

func TestCanonicalizeAggregatesNotesWithDedup(t *testing.T) {
	engine := newTestEngine(nil)

	rec, err := engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{
			"id": float64(4),
			"notes": []any{
				map[string]any{"id": float64(100), "content": "embedded copy"},
			},
		},
		Notes: []any{
			map[string]any{"id": float64(100), "content": "fetched copy"},
			map[string]any{"id": float64(101), "content": "another"},
		},
		Files: []any{
			map[string]any{"id": float64(9), "name": "a.pdf", "url": "https://files.example.com/a.pdf"},
			map[string]any{"id": float64(9), "name": "a.pdf", "url": "https://files.example.com/a.pdf"},
		},
	})
	require.NoError(t, err)

	// Same id across the fetched and embedded arrays: first wins.
	require.Len(t, rec.Notes, 2)
	assert.Equal(t, "fetched copy", rec.Notes[0].Content)
	assert.Equal(t, "another", rec.Notes[1].Content)

	require.Len(t, rec.Attachments, 1)
	assert.Equal(t, "https://files.example.com/a.pdf", rec.Attachments[0].URL)
}

func TestCanonicalizeEmptyProductListsAreNonNil(t *testing.T) {
	engine := newTestEngine(nil)
	rec, err := engine.Canonicalize(context.Background(), Input{
		Deal: rawjson.Object{"id": float64(5)},
	})
	require.NoError(t, err)
	assert.NotNil(t, rec.TrainingProducts)
	assert.NotNil(t, rec.ExtraProducts)
	assert.Empty(t, rec.TrainingProducts)
	assert.Empty(t, rec.ExtraProducts)
}

func int64Ptr(n int64) *int64 { return &n }
