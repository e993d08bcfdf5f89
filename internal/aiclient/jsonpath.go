package aiclient

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractPath walks a decoded JSON value along a dot path such as
// "data.result.text" or "choices[0].message.content". Numeric segments
// ("choices.0") index arrays as well. An empty path returns v.
func ExtractPath(v any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return v, true
	}
	cur := v
	for _, segment := range strings.Split(path, ".") {
		name, indexes, ok := parseSegment(segment)
		if !ok {
			return nil, false
		}
		if name != "" {
			switch node := cur.(type) {
			case map[string]any:
				next, found := node[name]
				if !found {
					return nil, false
				}
				cur = next
			case []any:
				idx, err := strconv.Atoi(name)
				if err != nil || idx < 0 || idx >= len(node) {
					return nil, false
				}
				cur = node[idx]
			default:
				return nil, false
			}
		}
		for _, idx := range indexes {
			arr, isArr := cur.([]any)
			if !isArr || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// parseSegment splits "choices[0][1]" into ("choices", [0 1]).
func parseSegment(segment string) (string, []int, bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil, segment != ""
	}
	name := segment[:open]
	rest := segment[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[end+1:]
	}
	return name, indexes, true
}

// decodeEmbeddedJSON parses a string that itself carries JSON, as chat
// completion providers return it in message content, optionally wrapped in
// a code fence.
func decodeEmbeddedJSON(content string) (any, bool) {
	content = strings.TrimSpace(stripCodeFence(content))
	if content == "" || (content[0] != '{' && content[0] != '[') {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, false
	}
	return out, true
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}
