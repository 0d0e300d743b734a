package ocr

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	fallbackNameRunes  = 200
	fallbackConfidence = 0.5
	defaultConfidence  = 0.8
	maxBraceAttempts   = 16
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ParseItems turns free model text into candidate items. It never fails:
// text that holds no usable JSON yields a single low-confidence item whose
// name is the start of the text.
func ParseItems(raw string) []CandidateItem {
	for _, candidate := range jsonCandidates(raw) {
		items, ok := decodeItems(candidate)
		if ok {
			return items
		}
	}
	return []CandidateItem{fallbackItem(raw)}
}

// jsonCandidates lists the slices of raw worth decoding, most specific first:
// the fenced block, then the text from each opening brace onwards. The
// decoder stops after one value so trailing prose does not matter.
func jsonCandidates(raw string) []string {
	var out []string
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	offset := 0
	for attempts := 0; attempts < maxBraceAttempts; attempts++ {
		i := strings.IndexByte(raw[offset:], '{')
		if i < 0 {
			break
		}
		out = append(out, raw[offset+i:])
		offset += i + 1
	}
	return append(out, raw)
}

func decodeItems(text string) ([]CandidateItem, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}

	var rawItems []any
	switch v := root.(type) {
	case map[string]any:
		// An object without an items list is a valid answer with no items.
		rawItems, _ = v["items"].([]any)
	case []any:
		rawItems = v
	default:
		return nil, false
	}

	items := make([]CandidateItem, 0, len(rawItems))
	for _, entry := range rawItems {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, itemFromObject(obj))
	}
	return items, true
}

func itemFromObject(obj map[string]any) CandidateItem {
	item := CandidateItem{
		Name:       stringValue(obj["name"]),
		Brand:      optionalText(obj["brand"]),
		EAN:        eanValue(obj["ean"]),
		UnitSize:   optionalText(obj["unit_size"]),
		Confidence: confidenceValue(obj["confidence"]),
	}
	item.RetailPrice = priceValue(obj["retail_price"])
	if _, present := obj["retail_price"]; !present {
		item.RetailPrice = priceValue(obj["price"])
	}
	item.WholesalePrice = priceValue(obj["wholesale_price"])
	item.MinWholesaleQty = quantityValue(obj["min_wholesale_qty"])
	return item
}

func fallbackItem(raw string) CandidateItem {
	name := raw
	if utf8.RuneCountInString(name) > fallbackNameRunes {
		runes := []rune(name)
		name = string(runes[:fallbackNameRunes])
	}
	return CandidateItem{
		Name:       strings.TrimSpace(name),
		Confidence: fallbackConfidence,
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func optionalText(v any) *string {
	s := stringValue(v)
	if s == "" {
		return nil
	}
	return &s
}

func eanValue(v any) *string {
	s := stringValue(v)
	if s == "" {
		return nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
	}
	return &s
}

// numberValue accepts JSON numbers and numeric strings, including Brazilian
// formatted amounts such as "R$ 1.234,56".
func numberValue(v any) (float64, bool) {
	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case float64:
		return val, !math.IsNaN(val) && !math.IsInf(val, 0)
	case string:
		text = normalizeAmount(val)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

func priceValue(v any) *float64 {
	f, ok := numberValue(v)
	if !ok || f <= 0 {
		return nil
	}
	return &f
}

func quantityValue(v any) *int {
	f, ok := numberValue(v)
	if !ok {
		return nil
	}
	q := int(math.Round(f))
	if q < 1 {
		return nil
	}
	return &q
}

func confidenceValue(v any) float64 {
	f, ok := numberValue(v)
	if !ok {
		return defaultConfidence
	}
	return math.Min(1, math.Max(0, f))
}
