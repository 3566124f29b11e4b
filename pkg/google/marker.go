package google

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

// The Tasks service offers no extended/custom-property mechanism, so the
// dedup marker rides inside the free-text notes field as a single bracketed
// block, e.g.
//
//	[SYNC_METADATA:sourceKey:abc-123|syncVersion:1|tags:ops,infra|assignees:2]
//
// The block must round-trip bit-exactly: it is the only way a later sync
// finds the item again.

const markerVersion = 1

var markerRe = regexp.MustCompile(`\[SYNC_METADATA:([^\]]*)\]`)

// Marker is the structured metadata parsed back out of a notes field.
type Marker struct {
	SourceKey   string
	SyncVersion int
	Tags        []string
	Assignees   int
}

// BuildMarker renders the metadata block for a task.
func BuildMarker(task *model.TaskRecord) string {
	var b strings.Builder
	b.WriteString("[SYNC_METADATA:sourceKey:")
	b.WriteString(sanitizeKey(task.SourceKey))
	fmt.Fprintf(&b, "|syncVersion:%d", markerVersion)
	if len(task.Tags) > 0 {
		clean := make([]string, 0, len(task.Tags))
		for _, tag := range task.Tags {
			clean = append(clean, sanitizeTag(tag))
		}
		b.WriteString("|tags:")
		b.WriteString(strings.Join(clean, ","))
	}
	if task.AssigneeCount > 0 {
		fmt.Fprintf(&b, "|assignees:%d", task.AssigneeCount)
	}
	b.WriteString("]")
	return b.String()
}

// ParseMarker extracts the first metadata block from notes. The second
// return value is false when no block is present, which is how items with
// no provenance are filtered out of incremental change sets.
func ParseMarker(notes string) (Marker, bool) {
	m := markerRe.FindStringSubmatch(notes)
	if m == nil {
		return Marker{}, false
	}

	var marker Marker
	for _, field := range strings.Split(m[1], "|") {
		key, value, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		switch key {
		case "sourceKey":
			marker.SourceKey = value
		case "syncVersion":
			marker.SyncVersion, _ = strconv.Atoi(value)
		case "tags":
			if value != "" {
				marker.Tags = strings.Split(value, ",")
			}
		case "assignees":
			marker.Assignees, _ = strconv.Atoi(value)
		}
	}
	if marker.SourceKey == "" {
		return Marker{}, false
	}
	return marker, true
}

// StripMarker removes every metadata block from notes, leaving the
// human-written remainder.
func StripMarker(notes string) string {
	return strings.TrimSpace(markerRe.ReplaceAllString(notes, ""))
}

// AppendMarker attaches the marker block to notes, replacing any stale
// block a previous sync left behind.
func AppendMarker(notes string, task *model.TaskRecord) string {
	base := StripMarker(notes)
	if base == "" {
		return BuildMarker(task)
	}
	return base + "\n\n" + BuildMarker(task)
}

// sanitizeKey strips the marker's field and block delimiters out of a dedup
// key so the block stays parseable. Colons survive: parsing cuts on the
// first colon only.
func sanitizeKey(v string) string {
	return strings.NewReplacer("|", "", "[", "", "]", "").Replace(v)
}

// sanitizeTag additionally strips the tag-list separator.
func sanitizeTag(v string) string {
	return strings.NewReplacer("|", "", "[", "", "]", "", ",", "").Replace(v)
}
