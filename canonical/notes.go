// ABOUTME: Note and attachment normalization from loosely shaped raw entries
// ABOUTME: Probes ordered alias lists, enforces absolute URLs, and deduplicates by id
package canonical

import (
	"net/url"
	"strings"
	"time"

	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/rawjson"
)

var (
	noteContentKeys = []string{"content", "text", "note", "body", "comment", "description"}
	noteAuthorKeys  = []string{"author", "user_name", "userName", "added_by", "addedBy", "owner", "user"}
	noteTimeKeys    = []string{"created_at", "createdAt", "add_time", "addTime", "created", "date", "time"}
	noteIDKeys      = []string{"id", "note_id", "noteId", "uid"}

	fileNameKeys     = []string{"name", "file_name", "fileName", "title", "label"}
	fileURLKeys      = []string{"url", "file_url", "fileUrl", "remote_location", "remoteLocation", "link", "href"}
	fileDownloadKeys = []string{"download_url", "downloadUrl", "direct_url", "directUrl"}
	fileTypeKeys     = []string{"file_type", "fileType", "mime_type", "mimeType", "extension", "type"}
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(value any) *time.Time {
	s, ok := rawjson.AsString(value)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// normalizeNote converts a raw note entry (bare string or object) into a
// DealNote. Notes with empty content are discarded.
func normalizeNote(raw any, origin string, dealProductID *int64) (models.DealNote, bool) {
	if s, ok := rawjson.AsString(raw); ok {
		content := strings.TrimSpace(s)
		if content == "" {
			return models.DealNote{}, false
		}
		return models.DealNote{Content: content, Origin: origin, DealProductID: dealProductID}, true
	}
	obj, ok := rawjson.AsObject(raw)
	if !ok {
		return models.DealNote{}, false
	}
	records := CollectCandidateRecords(obj)
	content, _ := FindFirstString(records, noteContentKeys)
	content = strings.TrimSpace(content)
	if content == "" {
		return models.DealNote{}, false
	}
	note := models.DealNote{
		Content:       content,
		Origin:        origin,
		DealProductID: dealProductID,
	}
	if id, ok := FindFirstString(records, noteIDKeys); ok {
		note.ID = id
	}
	note.Author = resolveAuthor(records)
	if t, ok := FindFirstValue(records, noteTimeKeys); ok {
		note.CreatedAt = parseTimestamp(t)
	}
	return note, true
}

// resolveAuthor handles both flat author strings and nested user objects.
func resolveAuthor(records []rawjson.Object) string {
	value, ok := FindFirstValue(records, noteAuthorKeys)
	if !ok {
		return ""
	}
	if s, ok := rawjson.AsString(value); ok {
		return strings.TrimSpace(s)
	}
	if obj, ok := rawjson.AsObject(value); ok {
		if name, ok := rawjson.AsString(obj["name"]); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// normalizeAttachment converts a raw file entry into a DealAttachment.
// Entries without a resolvable absolute http(s) URL are discarded;
// protocol-relative URLs are upgraded by assuming the secure scheme.
func normalizeAttachment(raw any, origin string, dealProductID *int64) (models.DealAttachment, bool) {
	var records []rawjson.Object
	var att models.DealAttachment
	att.Origin = origin
	att.DealProductID = dealProductID

	if s, ok := rawjson.AsString(raw); ok {
		u, ok := acceptURL(s)
		if !ok {
			return models.DealAttachment{}, false
		}
		att.URL = u
		return att, true
	}
	obj, ok := rawjson.AsObject(raw)
	if !ok {
		return models.DealAttachment{}, false
	}
	records = CollectCandidateRecords(obj)

	rawURL, _ := FindFirstString(records, fileURLKeys)
	u, ok := acceptURL(rawURL)
	if !ok {
		return models.DealAttachment{}, false
	}
	att.URL = u
	if id, ok := FindFirstString(records, noteIDKeys); ok {
		att.ID = id
	}
	if name, ok := FindFirstString(records, fileNameKeys); ok {
		att.Name = name
	}
	if download, ok := FindFirstString(records, fileDownloadKeys); ok {
		if du, ok := acceptURL(download); ok {
			att.DownloadURL = du
		}
	}
	if fileType, ok := FindFirstString(records, fileTypeKeys); ok {
		att.FileType = fileType
	}
	if t, ok := FindFirstValue(records, noteTimeKeys); ok {
		att.CreatedAt = parseTimestamp(t)
	}
	return att, true
}

// acceptURL enforces the strict attachment URL rule: only parseable
// absolute http(s) URLs survive, with protocol-relative ones upgraded
// to https first.
func acceptURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", false
	}
	return raw, true
}

// noteDedupKey identifies a note across source arrays: id when present,
// else the content itself.
func noteDedupKey(n models.DealNote) string {
	if n.ID != "" {
		return "id:" + n.ID
	}
	return "content:" + n.Content
}

// attachmentDedupKey identifies an attachment across source arrays: id
// when present, else the URL.
func attachmentDedupKey(a models.DealAttachment) string {
	if a.ID != "" {
		return "id:" + a.ID
	}
	return "url:" + a.URL
}
