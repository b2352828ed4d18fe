package engine

import "errors"

// Ошибки ограниченного вычислителя выражений.
var (
	// ErrExprParse — выражение не разобрано.
	ErrExprParse = errors.New("expression parse failed")

	// ErrExprEval — ошибка вычисления выражения.
	ErrExprEval = errors.New("expression evaluation failed")
)
