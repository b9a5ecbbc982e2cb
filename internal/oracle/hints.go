package oracle

import (
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/tidwall/gjson"
)

// NewJudgment wraps raw oracle text, extracting any embedded JSON object as
// the structured part.
func NewJudgment(text string) *domain.Judgment {
	return &domain.Judgment{Text: text, Structured: ExtractJSON(text)}
}

// ExtractJSON returns the first well-formed JSON object found in text, after
// stripping markdown fences. It returns "" when there is none.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if gjson.Valid(s) && strings.HasPrefix(s, "{") {
		return s
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return ""
	}
	return candidate
}

// Hints is a read-only view over structured oracle output. Every accessor
// reports whether a value of the right type was present; callers keep their
// defaults otherwise.
type Hints struct {
	raw string
}

// ParseHints builds hints from a judgment, falling back to the text body
// when the structured part is empty.
func ParseHints(j *domain.Judgment) Hints {
	if j == nil {
		return Hints{}
	}
	raw := j.Structured
	if raw == "" {
		raw = ExtractJSON(j.Text)
	}
	if raw != "" && !gjson.Valid(raw) {
		raw = ""
	}
	return Hints{raw: raw}
}

func hintsFromResult(r gjson.Result) Hints {
	if !r.IsObject() {
		return Hints{}
	}
	return Hints{raw: r.Raw}
}

func (h Hints) Valid() bool {
	return h.raw != ""
}

func (h Hints) get(path string) gjson.Result {
	if h.raw == "" {
		return gjson.Result{}
	}
	return gjson.Get(h.raw, path)
}

func (h Hints) Has(path string) bool {
	r := h.get(path)
	return r.Exists() && r.Type != gjson.Null
}

func (h Hints) Float(path string) (float64, bool) {
	r := h.get(path)
	if r.Type != gjson.Number {
		return 0, false
	}
	return r.Float(), true
}

func (h Hints) Int(path string) (int, bool) {
	r := h.get(path)
	if r.Type != gjson.Number {
		return 0, false
	}
	return int(r.Int()), true
}

func (h Hints) Text(path string) (string, bool) {
	r := h.get(path)
	if r.Type != gjson.String {
		return "", false
	}
	s := strings.TrimSpace(r.String())
	return s, s != ""
}

func (h Hints) Bool(path string) (bool, bool) {
	r := h.get(path)
	if !r.IsBool() {
		return false, false
	}
	return r.Bool(), true
}

// Strings returns the non-empty string elements of an array.
func (h Hints) Strings(path string) []string {
	r := h.get(path)
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, item := range r.Array() {
		if item.Type == gjson.String {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Objects returns the object elements of an array as nested hints.
func (h Hints) Objects(path string) []Hints {
	r := h.get(path)
	if !r.IsArray() {
		return nil
	}
	var out []Hints
	for _, item := range r.Array() {
		if item.IsObject() {
			out = append(out, hintsFromResult(item))
		}
	}
	return out
}

// Object returns a nested object as hints.
func (h Hints) Object(path string) Hints {
	return hintsFromResult(h.get(path))
}

// Numbers returns the numeric members of an object keyed by member name.
func (h Hints) Numbers(path string) map[string]float64 {
	r := h.get(path)
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]float64)
	r.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			out[key.String()] = value.Float()
		}
		return true
	})
	return out
}

// Raw returns the JSON text of a member, or "" when absent.
func (h Hints) Raw(path string) string {
	return h.get(path).Raw
}
