// ABOUTME: Candidate-record collection and prioritized value lookup over raw deals
// ABOUTME: Lets later logic treat values at the root or nested under synonymous keys uniformly
package canonical

import (
	"reflect"

	"github.com/harperreed/dealsync/rawjson"
)

// containerKeys are the known holders under which the upstream nests
// equivalent data: custom-field holders, additional/related data
// sections, a wrapped "deal" object and generic value bags.
var containerKeys = []string{
	"custom_fields",
	"customFields",
	"additional_data",
	"additionalData",
	"related_data",
	"relatedData",
	"related_objects",
	"relatedObjects",
	"deal",
	"data",
	"values",
	"fields",
	"attributes",
}

// CollectCandidateRecords walks root breadth-first over the known
// container keys and returns every visited object, root first. The
// result is the shared search space for all field lookups. Revisits of
// the same object are guarded against, so a self-referential structure
// cannot loop.
func CollectCandidateRecords(root rawjson.Object) []rawjson.Object {
	if root == nil {
		return nil
	}
	visited := map[uintptr]bool{}
	queue := []rawjson.Object{root}
	visited[reflect.ValueOf(root).Pointer()] = true

	var records []rawjson.Object
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		records = append(records, current)

		for _, key := range containerKeys {
			child, ok := rawjson.AsObject(current[key])
			if !ok {
				continue
			}
			ptr := reflect.ValueOf(child).Pointer()
			if visited[ptr] {
				continue
			}
			visited[ptr] = true
			queue = append(queue, child)
		}
	}
	return records
}

// FindFirstValue returns the first non-null, non-empty-string value for
// the given key paths over the candidate records. Paths are scanned in
// priority order and each path is probed across every record before the
// next path is considered, so an earlier path always wins regardless of
// how deeply its record was nested.
func FindFirstValue(records []rawjson.Object, keyPaths []string) (any, bool) {
	for _, path := range keyPaths {
		for _, record := range records {
			value, ok := rawjson.Lookup(record, path)
			if !ok || rawjson.IsEmpty(value) {
				continue
			}
			return value, true
		}
	}
	return nil, false
}

// FindFirstString is FindFirstValue narrowed to textual values; numeric
// values are rendered through their canonical string form.
func FindFirstString(records []rawjson.Object, keyPaths []string) (string, bool) {
	value, ok := FindFirstValue(records, keyPaths)
	if !ok {
		return "", false
	}
	s := rawjson.Stringify(value)
	if s == "" {
		return "", false
	}
	return s, true
}

// FindFirstInt is FindFirstValue narrowed to integral values.
func FindFirstInt(records []rawjson.Object, keyPaths []string) (int64, bool) {
	value, ok := FindFirstValue(records, keyPaths)
	if !ok {
		return 0, false
	}
	return rawjson.AsInt(value)
}
