// Package format renders console call arguments into display strings.
//
// Arguments arrive serialized as JSON, one value per argument, in the order
// they were passed to the console method.
package format

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unserializable replaces values that cannot be rendered as JSON.
const Unserializable = "[Unserializable value]"

var placeholderPattern = regexp.MustCompile(`%%|%[sdifoOc]`)

var unserializableArg, _ = json.Marshal(Unserializable)

// Args serializes Go values into console arguments. A value that cannot be
// marshaled becomes the Unserializable string.
func Args(values ...any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			raw = append(json.RawMessage(nil), unserializableArg...)
		}
		out = append(out, raw)
	}
	return out
}

// Stringify renders a single argument. Strings, numbers and booleans render
// as their literal text, null as "null", a missing value as "undefined", and
// objects or arrays as JSON (indented by two spaces when pretty is set).
func Stringify(raw json.RawMessage, pretty bool) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Unserializable
		}
		return s
	case '{', '[':
		var buf bytes.Buffer
		var err error
		if pretty {
			err = json.Indent(&buf, trimmed, "", "  ")
		} else {
			err = json.Compact(&buf, trimmed)
		}
		if err != nil {
			return Unserializable
		}
		return buf.String()
	case 'n':
		if string(trimmed) == "null" {
			return "null"
		}
	case 't':
		if string(trimmed) == "true" {
			return "true"
		}
	case 'f':
		if string(trimmed) == "false" {
			return "false"
		}
	default:
		if f, ok := parseNumber(trimmed); ok {
			return formatNumber(f)
		}
	}
	return Unserializable
}

// FormatWithPlaceholders applies printf-style substitution using the first
// argument as the format string. It returns "" when the first argument is not
// a string.
func FormatWithPlaceholders(args []json.RawMessage) string {
	if len(args) == 0 || !isString(args[0]) {
		return ""
	}

	first := Stringify(args[0], false)
	argIndex := 1
	text := placeholderPattern.ReplaceAllStringFunc(first, func(token string) string {
		if token == "%%" {
			return "%"
		}
		if token == "%c" {
			argIndex++
			return ""
		}

		if argIndex >= len(args) {
			argIndex++
			return token
		}
		value := args[argIndex]
		argIndex++

		switch token {
		case "%d", "%i":
			return parseIntText(value)
		case "%f":
			f := toNumber(value)
			if math.IsNaN(f) {
				return "NaN"
			}
			return formatNumber(f)
		}
		return Stringify(value, false)
	})

	parts := []string{text}
	if argIndex < len(args) {
		for _, arg := range args[argIndex:] {
			parts = append(parts, Stringify(arg, false))
		}
	}

	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// FormatCompact is the placeholder-aware single-line form used by AI and XML
// reports. It degrades to space-joining every argument.
func FormatCompact(args []json.RawMessage) string {
	if formatted := FormatWithPlaceholders(args); formatted != "" {
		return formatted
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = Stringify(arg, false)
	}
	return strings.Join(parts, " ")
}

// FormatPlain joins arguments for human reading: strings verbatim, everything
// else as indented JSON.
func FormatPlain(args []json.RawMessage) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = Stringify(arg, true)
	}
	return strings.Join(parts, " ")
}

func isString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

func parseNumber(raw []byte) (float64, bool) {
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		// Out-of-range literals still parse to ±Inf.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// formatNumber matches Number.prototype.toString for finite and infinite values.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		if exp == "" {
			exp = "0"
		}
		return mantissa + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toText mirrors String(value) for a decoded console argument.
func toText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch trimmed[0] {
	case '{':
		return "[object Object]"
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return ""
		}
		parts := make([]string, len(items))
		for i, item := range items {
			if string(bytes.TrimSpace(item)) == "null" {
				continue
			}
			parts[i] = toText(item)
		}
		return strings.Join(parts, ",")
	}
	return Stringify(trimmed, false)
}

// parseIntText mirrors parseInt(value, 10), rendering NaN when no digits lead.
func parseIntText(raw json.RawMessage) string {
	s := strings.TrimLeft(toText(raw), " \t\n\r\f\v")
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return "NaN"
	}

	digits := strings.TrimLeft(s[:end], "0")
	if digits == "" {
		return "0"
	}
	if negative {
		return "-" + digits
	}
	return digits
}

// toNumber mirrors Number(value).
func toNumber(raw json.RawMessage) float64 {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return math.NaN()
	}
	switch trimmed[0] {
	case 'n':
		return 0
	case 't':
		return 1
	case 'f':
		return 0
	case '{':
		return math.NaN()
	case '"', '[':
		return numberFromText(toText(trimmed))
	}
	if f, ok := parseNumber(trimmed); ok {
		return f
	}
	return math.NaN()
}

func numberFromText(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	// ParseFloat accepts spellings Number() rejects.
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(s, "_") {
		return math.NaN()
	}
	if strings.HasPrefix(lower, "0x") {
		if n, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
			return float64(n)
		}
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
