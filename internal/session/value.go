package session

import "strconv"

// Token is a resolved pass/fail verdict.
type Token string

// Canonical tokens. Localised spellings are resolved to these by the result
// recorder before they reach a record.
const (
	TokenPass Token = "PASS"
	TokenFail Token = "FAIL"
)

// IsValid reports whether t is one of the two canonical tokens.
func (t Token) IsValid() bool {
	return t == TokenPass || t == TokenFail
}

// ValueKind tags which member of [Value] is set.
type ValueKind string

const (
	ValueAbsent ValueKind = "absent"
	ValueNumber ValueKind = "number"
	ValueToken  ValueKind = "token"

	// ValueText holds numeric input that did not parse. It is kept verbatim
	// so an operator's entry is never lost.
	ValueText ValueKind = "text"
)

// Value is the recorded result of a step: absent, a number, a pass/fail
// token, or the raw text of an unparseable measurement.
type Value struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Token  Token     `json:"token,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Absent returns the empty value.
func Absent() Value { return Value{Kind: ValueAbsent} }

// NumberValue returns a numeric value.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// TokenValue returns a pass/fail value.
func TokenValue(t Token) Value { return Value{Kind: ValueToken, Token: t} }

// TextValue returns a raw text value.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// IsAbsent reports whether no value is recorded. The zero Value is absent.
func (v Value) IsAbsent() bool {
	return v.Kind == "" || v.Kind == ValueAbsent
}

// Equal reports whether two values carry the same result.
func (v Value) Equal(o Value) bool {
	if v.IsAbsent() || o.IsAbsent() {
		return v.IsAbsent() && o.IsAbsent()
	}
	return v == o
}

// String renders the value for display; absent values render as "".
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case ValueToken:
		return string(v.Token)
	case ValueText:
		return v.Text
	}
	return ""
}
