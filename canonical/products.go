// ABOUTME: Line-item reconciliation across the many alternate product keys
// ABOUTME: Merges duplicate entries by deal-scoped id and classifies training vs extra
package canonical

import (
	"strings"

	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/rawjson"
)

// trainingMarker is the code fragment that identifies a training
// product ("FORM-xxx" style catalog codes). Classification is a pure
// function of the normalized code containing this marker.
const trainingMarker = "form"

// productBucket names one known key under which line items appear. A
// non-nil training value means the key itself disambiguates the
// classification, overriding the code rule.
type productBucket struct {
	key      string
	training *bool
}

var (
	trainingTrue  = true
	trainingFalse = false
)

var productBuckets = []productBucket{
	{key: "products"},
	{key: "line_items"},
	{key: "lineItems"},
	{key: "items"},
	{key: "deal_products"},
	{key: "dealProducts"},
	{key: "products_list"},
	{key: "productsList"},
	{key: "product_items"},
	{key: "productItems"},
	{key: "product_list"},
	{key: "articles"},
	{key: "training_products", training: &trainingTrue},
	{key: "trainingProducts", training: &trainingTrue},
	{key: "extra_products", training: &trainingFalse},
	{key: "extraProducts", training: &trainingFalse},
	{key: "extras", training: &trainingFalse},
}

var (
	productIDKeys = []string{
		"deal_product_id", "dealProductId",
		"product_attachment_id", "productAttachmentId",
		"item_id", "itemId",
		"id",
	}
	catalogIDKeys      = []string{"product_id", "productId"}
	productNameKeys    = []string{"name", "product_name", "productName", "title", "label"}
	productCodeKeys    = []string{"code", "product_code", "productCode", "sku", "reference", "ref"}
	quantityKeys       = []string{"quantity", "qty", "count"}
	unitPriceKeys      = []string{"item_price", "itemPrice", "unit_price", "unitPrice", "price"}
	durationKeys       = []string{"recommended_hours", "recommendedHours", "recommended_duration", "recommendedDuration", "duration_hours", "durationHours", "duration", "duree_conseillee", "duree"}
	productNoteKeys    = []string{"notes", "comments"}
	productFileKeys    = []string{"files", "attachments", "documents"}
)

// IsTrainingCode applies the classification rule: the normalized code
// contains the formation marker.
func IsTrainingCode(code string) bool {
	return strings.Contains(NormalizeCode(code), trainingMarker)
}

// productEntry accumulates one line item across every raw array it
// appears in. trainingExplicit records whether any source bucket
// disambiguated the classification directly.
type productEntry struct {
	product          models.DealProduct
	trainingExplicit bool
}

// collectProducts finds every line-item array under every known bucket
// key across the candidate records, plus the separately fetched product
// list, and reconciles them into one ordered set.
func (r *run) collectProducts(records []rawjson.Object, fetched []any) {
	for _, entry := range fetched {
		r.absorbProductEntry(entry, nil)
	}
	for _, record := range records {
		for _, bucket := range productBuckets {
			items, ok := rawjson.AsArray(record[bucket.key])
			if !ok {
				continue
			}
			for _, entry := range items {
				r.absorbProductEntry(entry, bucket.training)
			}
		}
	}
}

// absorbProductEntry resolves one raw entry to a deal-scoped id and
// merges it into the run's product set.
func (r *run) absorbProductEntry(raw any, explicit *bool) {
	obj, ok := rawjson.AsObject(raw)
	if !ok {
		return
	}
	records := CollectCandidateRecords(obj)

	id, ok := FindFirstInt(records, productIDKeys)
	if !ok {
		id = r.nextPlaceholder()
	}

	incoming := models.DealProduct{DealProductID: id}
	if catalogID, ok := FindFirstInt(records, catalogIDKeys); ok {
		incoming.ProductID = &catalogID
	}
	incoming.Name, _ = FindFirstString(records, productNameKeys)
	incoming.Code, _ = FindFirstString(records, productCodeKeys)
	if qty, ok := FindFirstValue(records, quantityKeys); ok {
		if f, ok := rawjson.AsNumber(qty); ok {
			incoming.Quantity = f
		}
	}
	if price, ok := FindFirstValue(records, unitPriceKeys); ok {
		if f, ok := rawjson.AsNumber(price); ok {
			incoming.UnitPrice = &f
		}
	}
	if duration, ok := FindFirstValue(records, durationKeys); ok {
		incoming.RecommendedHours, incoming.RecommendedHoursText = ParseRecommendedHours(duration)
	}

	productID := id
	for _, key := range productNoteKeys {
		items, ok := rawjson.AsArray(obj[key])
		if !ok {
			continue
		}
		for _, item := range items {
			if note, ok := normalizeNote(item, models.OriginProduct, &productID); ok {
				incoming.Notes = append(incoming.Notes, note)
			}
		}
	}
	for _, key := range productFileKeys {
		items, ok := rawjson.AsArray(obj[key])
		if !ok {
			continue
		}
		for _, item := range items {
			if att, ok := normalizeAttachment(item, models.OriginProduct, &productID); ok {
				incoming.Attachments = append(incoming.Attachments, att)
			}
		}
	}

	if explicit != nil {
		incoming.IsTraining = *explicit
	} else {
		incoming.IsTraining = IsTrainingCode(incoming.Code)
	}

	r.mergeProduct(incoming, explicit != nil)
}

// mergeProduct folds an incoming partial record into any existing entry
// with the same deal-scoped id. Scalars keep the first non-empty value
// seen; list fields keep whichever side is non-empty; classification is
// OR-combined unless a source explicitly disambiguated it.
func (r *run) mergeProduct(incoming models.DealProduct, explicit bool) {
	existing, ok := r.products[incoming.DealProductID]
	if !ok {
		r.order = append(r.order, incoming.DealProductID)
		r.products[incoming.DealProductID] = &productEntry{product: incoming, trainingExplicit: explicit}
		return
	}

	p := &existing.product
	if p.ProductID == nil {
		p.ProductID = incoming.ProductID
	}
	if p.Name == "" {
		p.Name = incoming.Name
	}
	if p.Code == "" {
		p.Code = incoming.Code
	}
	if p.Quantity == 0 {
		p.Quantity = incoming.Quantity
	}
	if p.UnitPrice == nil {
		p.UnitPrice = incoming.UnitPrice
	}
	if p.RecommendedHours == nil && p.RecommendedHoursText == "" {
		p.RecommendedHours = incoming.RecommendedHours
		p.RecommendedHoursText = incoming.RecommendedHoursText
	}
	if len(p.Notes) == 0 {
		p.Notes = incoming.Notes
	}
	if len(p.Attachments) == 0 {
		p.Attachments = incoming.Attachments
	}

	switch {
	case existing.trainingExplicit && explicit:
		p.IsTraining = p.IsTraining || incoming.IsTraining
	case explicit:
		p.IsTraining = incoming.IsTraining
		existing.trainingExplicit = true
	case existing.trainingExplicit:
		// keep the explicit side
	default:
		p.IsTraining = p.IsTraining || incoming.IsTraining
	}
}

// orderedProducts returns the reconciled products in first-seen order.
func (r *run) orderedProducts() []models.DealProduct {
	out := make([]models.DealProduct, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.products[id].product)
	}
	return out
}
