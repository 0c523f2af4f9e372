package report

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	ozzo "github.com/go-ozzo/ozzo-validation"

	"github.com/kumarabd/console-brief/pkg/capture"
)

// Output formats.
const (
	FormatAI    = "ai"
	FormatXML   = "xml"
	FormatPlain = "plain"
)

// Level presets.
const (
	PresetErrors   = "errors"
	PresetWarnings = "warnings"
	PresetFull     = "full"
)

// Defaults applied when a request leaves a bound out.
const (
	DefaultMaxCharsPerEntry = 700
	DefaultMaxStackLines    = 6
)

// Request is a report request as it arrives over the wire. Pointer fields
// distinguish "absent" from zero.
type Request struct {
	Format           string `json:"format"`
	LevelPreset      string `json:"levelPreset"`
	OptimizeForAI    *bool  `json:"optimizeForAi"`
	MaxEntries       *int   `json:"maxEntries"`
	MaxCharsPerEntry *int   `json:"maxCharsPerEntry"`
	MaxStackLines    *int   `json:"maxStackLines"`
}

// UnmarshalJSON decodes a request object without rejecting odd field types.
// Non-string format and preset values and non-boolean optimizeForAi are
// treated as absent. Numeric bounds accept numbers and numeric strings and
// are floored.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		Format           json.RawMessage `json:"format"`
		LevelPreset      json.RawMessage `json:"levelPreset"`
		OptimizeForAI    json.RawMessage `json:"optimizeForAi"`
		MaxEntries       json.RawMessage `json:"maxEntries"`
		MaxCharsPerEntry json.RawMessage `json:"maxCharsPerEntry"`
		MaxStackLines    json.RawMessage `json:"maxStackLines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Request{
		Format:           jsonString(raw.Format),
		LevelPreset:      jsonString(raw.LevelPreset),
		OptimizeForAI:    jsonBool(raw.OptimizeForAI),
		MaxEntries:       jsonNumber(raw.MaxEntries),
		MaxCharsPerEntry: jsonNumber(raw.MaxCharsPerEntry),
		MaxStackLines:    jsonNumber(raw.MaxStackLines),
	}
	return nil
}

// ParseQuery reads a request from query parameters with the same leniency
// as UnmarshalJSON.
func ParseQuery(values url.Values) Request {
	req := Request{
		Format:           values.Get("format"),
		LevelPreset:      values.Get("levelPreset"),
		MaxEntries:       parseNumber(values.Get("maxEntries")),
		MaxCharsPerEntry: parseNumber(values.Get("maxCharsPerEntry")),
		MaxStackLines:    parseNumber(values.Get("maxStackLines")),
	}
	if b, err := strconv.ParseBool(values.Get("optimizeForAi")); err == nil {
		req.OptimizeForAI = &b
	}
	return req
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func jsonString(raw json.RawMessage) string {
	var s string
	if !present(raw) || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func jsonBool(raw json.RawMessage) *bool {
	var b bool
	if !present(raw) || json.Unmarshal(raw, &b) != nil {
		return nil
	}
	return &b
}

func jsonNumber(raw json.RawMessage) *int {
	if !present(raw) {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return floor(f)
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return parseNumber(s)
	}
	return nil
}

// parseNumber floors a decimal string. Blank, non-numeric and non-finite
// input is absent.
func parseNumber(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return floor(f)
}

func floor(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Floor(f)))
	v := int(f)
	return &v
}

// Options is a fully resolved request. MaxEntries of 0 selects every
// captured entry.
type Options struct {
	Format           string
	LevelPreset      string
	OptimizeForAI    bool
	MaxEntries       int
	MaxCharsPerEntry int
	MaxStackLines    int
}

// Options resolves the request. Unknown formats and presets fall back to
// "ai" and "full"; numeric bounds are clamped instead of rejected.
func (r Request) Options() Options {
	opts := Options{
		Format:           FormatAI,
		LevelPreset:      PresetFull,
		OptimizeForAI:    true,
		MaxCharsPerEntry: DefaultMaxCharsPerEntry,
		MaxStackLines:    DefaultMaxStackLines,
	}

	if r.Format != "" && ozzo.Validate(r.Format, ozzo.In(FormatAI, FormatXML, FormatPlain)) == nil {
		opts.Format = r.Format
	}
	if r.LevelPreset != "" && ozzo.Validate(r.LevelPreset, ozzo.In(PresetErrors, PresetWarnings, PresetFull)) == nil {
		opts.LevelPreset = r.LevelPreset
	}
	if r.OptimizeForAI != nil {
		opts.OptimizeForAI = *r.OptimizeForAI
	}
	if r.MaxEntries != nil {
		opts.MaxEntries = clamp(*r.MaxEntries, 1, capture.DefaultCapacity)
	}
	if r.MaxCharsPerEntry != nil && *r.MaxCharsPerEntry > 0 {
		opts.MaxCharsPerEntry = *r.MaxCharsPerEntry
	}
	if r.MaxStackLines != nil && *r.MaxStackLines >= 0 {
		opts.MaxStackLines = *r.MaxStackLines
	}
	return opts
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// includeLevel applies a level preset.
func includeLevel(level, preset string) bool {
	switch preset {
	case PresetErrors:
		return level == "error"
	case PresetWarnings:
		return level == "error" || level == "warn"
	}
	return true
}
