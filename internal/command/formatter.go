// internal/command/formatter.go
package command

import (
	"fmt"
	"sort"
	"strings"

	"serial-gateway/internal/api"
)

// FormatResponse renders "METHOD path: key=value, nested.key=value, ...".
// Nested structures flatten into dot-joined keys; keys render in sorted
// order so the wire output is deterministic.
func FormatResponse(method, path string, data map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(method)
	if path != "" {
		sb.WriteByte(' ')
		sb.WriteString(path)
	}
	sb.WriteByte(':')

	for i, pair := range flattenData(data) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(' ')
		sb.WriteString(pair.key)
		sb.WriteByte('=')
		sb.WriteString(pair.value)
	}
	return sb.String()
}

// FormatEvent renders an unsolicited push: "EVT name: key=value, ...".
func FormatEvent(name string, data map[string]interface{}) string {
	return FormatResponse("EVT", name, data)
}

// FormatError renders "METHOD path: error=<reason>".
func FormatError(method, path, reason string) string {
	return FormatResponse(method, path, map[string]interface{}{"error": reason})
}

type flatPair struct {
	key   string
	value string
}

// flattenData walks nested maps into sorted dot-keyed pairs.
func flattenData(data map[string]interface{}) []flatPair {
	var pairs []flatPair
	flattenInto(data, "", &pairs)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return pairs
}

func flattenInto(data map[string]interface{}, prefix string, pairs *[]flatPair) {
	for key, value := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := value.(map[string]interface{}); ok {
			flattenInto(child, full, pairs)
			continue
		}
		*pairs = append(*pairs, flatPair{key: full, value: formatValue(value)})
	}
}

// formatValue renders one scalar: booleans as true/false, numbers in their
// natural form, everything else via its default string representation.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatMethodList renders the registry self-description as an indented
// tree, one block per method.
func FormatMethodList(docs []api.MethodDoc) string {
	var sb strings.Builder
	sb.WriteByte('\n')

	for _, doc := range docs {
		sb.WriteString("    " + doc.Path + "\n")
		sb.WriteString("    ├── type: " + doc.Type + "\n")
		sb.WriteString("    ├── desc: " + doc.Description + "\n")

		branch := "└──"
		if len(doc.Params) > 0 || len(doc.Response) > 0 {
			branch = "├──"
		}
		sb.WriteString("    " + branch + " protocols: " + strings.Join(doc.Protocols, "|") + "\n")

		if len(doc.Params) > 0 {
			branch = "└──"
			if len(doc.Response) > 0 {
				branch = "├──"
			}
			sb.WriteString("    " + branch + " params:\n")
			writeShape(&sb, doc.Params, len(doc.Response) > 0)
		}
		if len(doc.Response) > 0 {
			sb.WriteString("    └── response:\n")
			writeShape(&sb, doc.Response, false)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// writeShape renders one flattened parameter shape as tree leaves.
func writeShape(sb *strings.Builder, shape map[string]interface{}, more bool) {
	var pairs []flatPair
	flattenInto(shape, "", &pairs)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	gutter := "        "
	if more {
		gutter = "    │   "
	}
	for i, pair := range pairs {
		leaf := "├── "
		if i == len(pairs)-1 {
			leaf = "└── "
		}
		sb.WriteString(gutter + leaf + pair.key + ": " + pair.value + "\n")
	}
}
