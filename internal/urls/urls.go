// Package urls parses operator-supplied bulk URL payloads. The accepted
// shapes mirror what operators actually paste into environment variables:
// a JSON array, a JSON object with a urls key, a single JSON string, or a
// newline/comma separated list with optional # comments. List entries may
// themselves be JSON objects carrying per-URL metadata.
package urls

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Entry is one URL job from a bulk payload.
type Entry struct {
	URL               string
	ProductTypeID     *int64
	SearchedProductID *int64
}

// Load combines the inline payload and the payload file, in that order.
// A missing file is logged and skipped, matching how operators expect a
// partially configured environment to behave.
func Load(payload, filePath string, logger *slog.Logger) []Entry {
	var entries []Entry
	if payload != "" {
		entries = append(entries, Parse(payload)...)
	}
	if filePath != "" {
		raw, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn("bulk URL file not readable", "path", filePath, "error", err)
		} else {
			entries = append(entries, Parse(string(raw))...)
		}
	}
	return entries
}

// Parse decodes one payload into entries. Unparseable lines are kept as
// raw URLs; blank lines and # comments are dropped.
func Parse(payload string) []Entry {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
		switch v := parsed.(type) {
		case []any:
			return entriesFromList(v)
		case map[string]any:
			if list, ok := v["urls"].([]any); ok {
				return entriesFromList(list)
			}
		case string:
			if e, ok := entryFromValue(v); ok {
				return []Entry{e}
			}
			return nil
		}
	}

	lines := strings.Split(payload, "\n")
	if len(lines) == 1 && strings.Contains(payload, ",") && !strings.HasPrefix(payload, "{") {
		lines = strings.Split(payload, ",")
	}

	var entries []Entry
	for _, line := range lines {
		candidate := strings.TrimSpace(line)
		if candidate == "" || strings.HasPrefix(candidate, "#") {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			if e, ok := entryFromValue(decoded); ok {
				entries = append(entries, e)
				continue
			}
		}
		entries = append(entries, Entry{URL: candidate})
	}
	return entries
}

func entriesFromList(list []any) []Entry {
	var entries []Entry
	for _, item := range list {
		if e, ok := entryFromValue(item); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func entryFromValue(v any) (Entry, bool) {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return Entry{}, false
		}
		return Entry{URL: trimmed}, true
	case map[string]any:
		rawURL, _ := val["url"].(string)
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			return Entry{}, false
		}
		return Entry{
			URL:               rawURL,
			ProductTypeID:     toInt64Ptr(val["product_type_id"]),
			SearchedProductID: toInt64Ptr(val["searched_product_id"]),
		}, true
	}
	return Entry{}, false
}

func toInt64Ptr(v any) *int64 {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		return &i
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return &i
		}
	}
	return nil
}
