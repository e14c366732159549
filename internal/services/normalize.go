package services

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Plain digits, optionally with a fractional part or exponent: the shapes a
	// spreadsheet produces when a phone column was stored as a number.
	reNumeric = regexp.MustCompile(`^[0-9]+(\.[0-9]*)?([eE][+-]?[0-9]+)?$`)
	reChatID  = regexp.MustCompile(`^-?[0-9]+$`)
)

// NormPhone canonicalises a raw phone cell. Numeric values, including float
// artifacts such as 79991234567.0, collapse to a digit string. Text with
// other characters (a leading +, spaces, dashes) is kept as typed, trimmed.
// Missing or unusable input yields nil.
func NormPhone(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return formatIntegral(x)
	case float32:
		return formatIntegral(float64(x))
	case int:
		return strPtr(strconv.Itoa(x))
	case int64:
		return strPtr(strconv.FormatInt(x, 10))
	case json.Number:
		return NormPhone(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if reNumeric.MatchString(s) {
			if !strings.ContainsAny(s, ".eE") {
				return &s
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			return formatIntegral(f)
		}
		s = strings.TrimSuffix(s, ".0")
		if s == "" {
			return nil
		}
		return &s
	default:
		return NormPhone(fmt.Sprint(x))
	}
}

// CoerceIdentity turns a raw external-id cell into a Telegram id. Floats are
// truncated (123.0 -> 123). Anything that is not a number, and zero, means
// "no identity" rather than an error.
func CoerceIdentity(v any) *int64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return nonZero(int64(x))
	case int64:
		return nonZero(x)
	case float64:
		f = x
	case float32:
		f = float64(x)
	case json.Number:
		return CoerceIdentity(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return nonZero(n)
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return CoerceIdentity(fmt.Sprint(x))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	return nonZero(int64(f))
}

// CellText returns the trimmed textual form of a cell, or nil when blank.
func CellText(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		return &s
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return strPtr(strconv.FormatFloat(x, 'f', -1, 64))
	default:
		return CellText(fmt.Sprint(x))
	}
}

// IsChatID reports whether a distribution recipient can be messaged directly.
func IsChatID(recipient string) bool {
	return reChatID.MatchString(strings.TrimSpace(recipient))
}

func formatIntegral(f float64) *string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return strPtr(strconv.FormatFloat(math.Trunc(f), 'f', 0, 64))
}

func nonZero(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func strPtr(s string) *string { return &s }
