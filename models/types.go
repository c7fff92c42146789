// ABOUTME: Canonical data model for deals ingested from the upstream CRM
// ABOUTME: Defines DealRecord, DealProduct, DealNote, DealAttachment and related types
package models

import (
	"encoding/json"
	"time"
)

// Origin tags for notes and attachments.
const (
	OriginDeal    = "deal"
	OriginProduct = "product"
	OriginLocal   = "local"
)

// RelatedEntity is the normalized form of an organization or contact
// reference. The upstream API represents these as a bare number, a bare
// string, or a nested object depending on account and API version; all
// of them collapse into this shape.
type RelatedEntity struct {
	ID      *int64 `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// DealRecord is the single canonical representation of an upstream deal.
// It is rebuilt wholesale on every refresh and replaced, never merged,
// in the record store.
type DealRecord struct {
	ID               int64            `json:"id"`
	Title            string           `json:"title,omitempty"`
	Client           *RelatedEntity   `json:"client,omitempty"`
	Location         string           `json:"location,omitempty"`
	Funded           string           `json:"funded,omitempty"`
	Certifying       string           `json:"certifying,omitempty"`
	Remote           string           `json:"remote,omitempty"`
	PipelineID       *int64           `json:"pipeline_id,omitempty"`
	PipelineName     string           `json:"pipeline_name,omitempty"`
	WonAt            *time.Time       `json:"won_at,omitempty"`
	FormationLabels  []string         `json:"formation_labels,omitempty"`
	TrainingProducts []DealProduct    `json:"training_products"`
	ExtraProducts    []DealProduct    `json:"extra_products"`
	Notes            []DealNote       `json:"notes,omitempty"`
	Attachments      []DealAttachment `json:"attachments,omitempty"`
}

// DealProduct is one reconciled line item of a deal. DealProductID is
// the deal-scoped id from the source, or a synthesized negative
// placeholder when the source provides none.
type DealProduct struct {
	DealProductID        int64            `json:"deal_product_id"`
	ProductID            *int64           `json:"product_id,omitempty"`
	Name                 string           `json:"name,omitempty"`
	Code                 string           `json:"code,omitempty"`
	Quantity             float64          `json:"quantity"`
	UnitPrice            *float64         `json:"unit_price,omitempty"`
	RecommendedHours     *float64         `json:"recommended_hours,omitempty"`
	RecommendedHoursText string           `json:"recommended_hours_text,omitempty"`
	Notes                []DealNote       `json:"notes,omitempty"`
	Attachments          []DealAttachment `json:"attachments,omitempty"`
	IsTraining           bool             `json:"is_training"`
}

// DealNote is a normalized note aggregated from any of the raw note
// arrays. ID is the source id when present; notes without one are
// deduplicated by content.
type DealNote struct {
	ID            string     `json:"id,omitempty"`
	Content       string     `json:"content"`
	Author        string     `json:"author,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	Origin        string     `json:"origin"`
	DealProductID *int64     `json:"deal_product_id,omitempty"`
}

// DealAttachment is a normalized file reference. URL is always an
// absolute http(s) URL; raw entries that cannot produce one are
// discarded during canonicalization.
type DealAttachment struct {
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name,omitempty"`
	URL           string     `json:"url"`
	DownloadURL   string     `json:"download_url,omitempty"`
	FileType      string     `json:"file_type,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	Origin        string     `json:"origin"`
	DealProductID *int64     `json:"deal_product_id,omitempty"`
}

// FieldOptionsMap maps every known alias of a custom field to its
// option-key → label table. FetchedAt drives the cache TTL.
type FieldOptionsMap struct {
	Fields    map[string]map[string]string `json:"fields"`
	FetchedAt time.Time                    `json:"fetched_at"`
}

// SharedStateEntry is one row of the generic key→JSON blob table used
// for ancillary shared state (field-options cache, calendar entries,
// hidden-id set, manual deals, per-deal extras).
type SharedStateEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CalendarEntry is a locally created scheduling entry kept in shared
// state for the calendar UI.
type CalendarEntry struct {
	ID      string     `json:"id"`
	DealID  *int64     `json:"deal_id,omitempty"`
	Title   string     `json:"title"`
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at,omitempty"`
	Notes   string     `json:"notes,omitempty"`
}

// Products returns both product lists as one slice, training first.
func (d *DealRecord) Products() []DealProduct {
	out := make([]DealProduct, 0, len(d.TrainingProducts)+len(d.ExtraProducts))
	out = append(out, d.TrainingProducts...)
	out = append(out, d.ExtraProducts...)
	return out
}

// ClientName returns the client display name, if any.
func (d *DealRecord) ClientName() string {
	if d.Client == nil {
		return ""
	}
	return d.Client.Name
}
