package engine

import (
	"errors"
	"testing"
)

func testEnv() map[string]any {
	return map[string]any{
		"state": map[string]any{
			"count": float64(3),
			"name":  "alice",
			"ok":    true,
			"items": []any{float64(10), float64(20), float64(30)},
			"user": map[string]any{
				"role": "admin",
			},
		},
	}
}

func TestEvalLiteralsAndArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"42", float64(42)},
		{"'hello'", "hello"},
		{`"world"`, "world"},
		{"true", true},
		{"null", nil},
		{"2 + 3 * 4", float64(14)},
		{"(2 + 3) * 4", float64(20)},
		{"10 / 4", 2.5},
		{"7 % 3", float64(1)},
		{"-5 + 2", float64(-3)},
		{"'a' + 'b'", "ab"},
		{"'n=' + 3", "n=3"},
	}
	for _, tc := range cases {
		got, err := Eval(tc.expr, nil)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalPathAccess(t *testing.T) {
	env := testEnv()

	cases := []struct {
		expr string
		want any
	}{
		{"state.count", float64(3)},
		{"state.user.role", "admin"},
		{"state.items[1]", float64(20)},
		{"state.items[state.count - 1]", float64(30)},
		{`state["name"]`, "alice"},
		{"state.missing", nil},
	}
	for _, tc := range cases {
		got, err := Eval(tc.expr, env)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalComparisonsAndLogic(t *testing.T) {
	env := testEnv()

	cases := []struct {
		expr string
		want bool
	}{
		{"state.count == 3", true},
		{"state.count != 3", false},
		{"state.count >= 3", true},
		{"state.count < 3", false},
		{"state.name == 'alice'", true},
		{"'abc' < 'abd'", true},
		{"state.ok && state.count > 0", true},
		{"state.ok && state.count > 10", false},
		{"state.missing || state.ok", true},
		{"!state.ok", false},
		{"!!state.name", true},
	}
	for _, tc := range cases {
		got, err := EvalBool(tc.expr, env)
		if err != nil {
			t.Fatalf("EvalBool(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("EvalBool(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalShortCircuit(t *testing.T) {
	env := testEnv()

	// Правый операнд с ошибкой не должен вычисляться
	if got, err := EvalBool("false && missing.x", env); err != nil || got {
		t.Fatalf("short-circuit &&: got %v, %v", got, err)
	}
	if got, err := EvalBool("true || missing.x", env); err != nil || !got {
		t.Fatalf("short-circuit ||: got %v, %v", got, err)
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []struct {
		expr string
		want error
	}{
		{"", ErrExprParse},
		{"1 +", ErrExprParse},
		{"(1 + 2", ErrExprParse},
		{"'unterminated", ErrExprParse},
		{"1 @ 2", ErrExprParse},
		{"unknown.x", ErrExprEval},
		{"1 / 0", ErrExprEval},
		{"'a' - 1", ErrExprEval},
	}
	for _, tc := range cases {
		_, err := Eval(tc.expr, map[string]any{"state": map[string]any{}})
		if !errors.Is(err, tc.want) {
			t.Fatalf("Eval(%q) err = %v, want %v", tc.expr, err, tc.want)
		}
	}
}

func TestEvalRejectsOversizedExpression(t *testing.T) {
	big := make([]byte, maxExprLen+1)
	for i := range big {
		big[i] = '1'
	}
	if _, err := Eval(string(big), nil); !errors.Is(err, ErrExprParse) {
		t.Fatalf("oversized expression err = %v", err)
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{float64(0), false},
		{float64(1), true},
		{map[string]any{}, false},
		{map[string]any{"k": 1}, true},
		{[]any{}, false},
		{[]any{1}, true},
	}
	for _, tc := range cases {
		if got := Truthy(tc.v); got != tc.want {
			t.Fatalf("Truthy(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "deep"},
			},
		},
	}

	if v, ok := Lookup(root, "$.a.b[0].c"); !ok || v != "deep" {
		t.Fatalf("Lookup deep = %v, %v", v, ok)
	}
	if v, ok := Lookup(root, ""); !ok || v == nil {
		t.Fatalf("Lookup root = %v, %v", v, ok)
	}
	if _, ok := Lookup(root, "a.missing"); ok {
		t.Fatal("missing key must not resolve")
	}
	if _, ok := Lookup(root, "a.b[5]"); ok {
		t.Fatal("out-of-range index must not resolve")
	}
}
