package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Ограничения sandbox: выражения короткие, чистые, без I/O.
const (
	maxExprLen   = 4096
	maxExprDepth = 64
)

// Eval вычисляет ограниченное выражение против окружения env.
//
// Поддерживается подмножество JS-подобных выражений:
//   - литералы: числа, строки ('...' или "..."), true, false, null
//   - доступ к данным: state.x.y, state.items[0], state["ключ"]
//   - арифметика: + - * / %
//   - сравнения: == != < <= > >=
//   - логика: && || !
//
// Никакого I/O, вызовов функций и присваиваний: выражение чистое, а
// глубина и длина ограничены. Любая ошибка разбора или вычисления
// возвращается как error — вызывающая сторона решает, как её трактовать
// (условия рёбер считают ошибку за false).
func Eval(expr string, env map[string]any) (any, error) {
	if len(expr) > maxExprLen {
		return nil, fmt.Errorf("%w: expression too long", ErrExprParse)
	}

	p := &exprParser{input: expr}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrExprParse, p.rest(), p.pos)
	}

	return node.eval(env)
}

// EvalBool вычисляет выражение и приводит результат к bool.
func EvalBool(expr string, env map[string]any) (bool, error) {
	v, err := Eval(expr, env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Truthy возвращает истинность значения по JS-правилам:
// false, 0, "", null и пустые коллекции — ложь.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// Lookup разрешает dot-path против корневого документа.
//
// Путь: необязательный префикс "$." или "$", затем сегменты через точку,
// каждый — имя ключа с необязательными индексами [n]. Возвращает
// (значение, true) при структурном совпадении, (nil, false) иначе.
func Lookup(root any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return root, true
	}

	cur := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}

		// Отделяем индексы: items[0][1]
		key := seg
		var indexes []int
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(key[open:], ']')
			if closing < 0 {
				return nil, false
			}
			idx, err := strconv.Atoi(key[open+1 : open+closing])
			if err != nil {
				return nil, false
			}
			indexes = append(indexes, idx)
			key = key[:open] + key[open+closing+1:]
		}

		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[key]
			if !ok {
				return nil, false
			}
		}

		for _, idx := range indexes {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}

	return cur, true
}

// --- AST ---

type exprNode interface {
	eval(env map[string]any) (any, error)
}

type litNode struct{ value any }

func (n *litNode) eval(map[string]any) (any, error) { return n.value, nil }

// pathNode — доступ к данным: ident, ident.ident, ident[expr].
type pathNode struct {
	root string
	segs []pathSeg
}

// pathSeg — один сегмент пути: ключ или индекс-выражение.
type pathSeg struct {
	key   string
	index exprNode
}

func (n *pathNode) eval(env map[string]any) (any, error) {
	cur, ok := env[n.root]
	if !ok {
		return nil, fmt.Errorf("%w: unknown identifier %q", ErrExprEval, n.root)
	}

	for _, seg := range n.segs {
		if seg.index == nil {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not an object", ErrExprEval, seg.key)
			}
			cur = m[seg.key]
			continue
		}

		idx, err := seg.index.eval(env)
		if err != nil {
			return nil, err
		}
		switch container := cur.(type) {
		case []any:
			f, ok := toFloat(idx)
			if !ok {
				return nil, fmt.Errorf("%w: array index is not a number", ErrExprEval)
			}
			i := int(f)
			if i < 0 || i >= len(container) {
				return nil, fmt.Errorf("%w: index %d out of range", ErrExprEval, i)
			}
			cur = container[i]
		case map[string]any:
			key, ok := idx.(string)
			if !ok {
				return nil, fmt.Errorf("%w: object key is not a string", ErrExprEval)
			}
			cur = container[key]
		default:
			return nil, fmt.Errorf("%w: value is not indexable", ErrExprEval)
		}
	}

	return cur, nil
}

type unaryNode struct {
	op      byte // '!' или '-'
	operand exprNode
}

func (n *unaryNode) eval(env map[string]any) (any, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case '!':
		return !Truthy(v), nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: unary minus on non-number", ErrExprEval)
		}
		return -f, nil
	}
}

type binaryNode struct {
	op    string
	left  exprNode
	right exprNode
}

func (n *binaryNode) eval(env map[string]any) (any, error) {
	// Логика с коротким замыканием
	switch n.op {
	case "&&":
		l, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if !Truthy(l) {
			return l, nil
		}
		return n.right.eval(env)
	case "||":
		l, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return l, nil
		}
		return n.right.eval(env)
	}

	l, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, l, r)
	case "+":
		// Как в JS: строка слева или справа — конкатенация
		if ls, ok := l.(string); ok {
			return ls + Stringify(r), nil
		}
		if rs, ok := r.(string); ok {
			return Stringify(l) + rs, nil
		}
		return arith(n.op, l, r)
	default:
		return arith(n.op, l, r)
	}
}

func looseEqual(l, r any) bool {
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return lf == rf
		}
		return false
	}
	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	case nil:
		return r == nil
	default:
		return false
	}
}

func compare(op string, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}

	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		default:
			return ls >= rs, nil
		}
	}

	return nil, fmt.Errorf("%w: incomparable values for %q", ErrExprEval, op)
}

func arith(op string, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: arithmetic on non-numbers", ErrExprEval)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrExprEval)
		}
		return lf / rf, nil
	default:
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrExprEval)
		}
		return float64(int64(lf) % int64(rf)), nil
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Stringify приводит значение к строке по JS-правилам конкатенации.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

// --- Parser ---

// exprParser — рекурсивный спуск по уровням приоритета.
type exprParser struct {
	input string
	pos   int
	depth int
}

// binaryLevels — операторы от низшего приоритета к высшему.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<=", ">=", "<", ">"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *exprParser) parseExpr(level int) (exprNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxExprDepth {
		return nil, fmt.Errorf("%w: expression too deep", ErrExprParse)
	}

	if level == len(binaryLevels) {
		return p.parseUnary()
	}

	left, err := p.parseExpr(level + 1)
	if err != nil {
		return nil, err
	}

	for {
		op := p.peekOp(binaryLevels[level])
		if op == "" {
			return left, nil
		}
		p.pos += len(op)

		right, err := p.parseExpr(level + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	p.skipSpace()
	if p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '!':
			// Не путать с != — его разбирает уровень сравнения
			if p.pos+1 >= len(p.input) || p.input[p.pos+1] != '=' {
				p.pos++
				operand, err := p.parseUnary()
				if err != nil {
					return nil, err
				}
				return &unaryNode{op: '!', operand: operand}, nil
			}
		case '-':
			p.pos++
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &unaryNode{op: '-', operand: operand}, nil
		}
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrExprParse)
	}

	c := p.input[p.pos]
	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrExprParse)
		}
		p.pos++
		return p.parseAccess(inner)
	case c == '\'' || c == '"':
		return p.parseString(c)
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdent()
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrExprParse, p.rest(), p.pos)
	}
}

// parseAccess разбирает хвост .key / [expr] после первичного выражения.
func (p *exprParser) parseAccess(base exprNode) (exprNode, error) {
	path, ok := base.(*pathNode)
	if !ok {
		// Индексацию поддерживаем только от идентификаторов — этого
		// достаточно для условий над state.
		return base, nil
	}

	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return path, nil
		}
		switch p.input[p.pos] {
		case '.':
			p.pos++
			key := p.readIdent()
			if key == "" {
				return nil, fmt.Errorf("%w: expected field name after '.'", ErrExprParse)
			}
			path.segs = append(path.segs, pathSeg{key: key})
		case '[':
			p.pos++
			idx, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.pos >= len(p.input) || p.input[p.pos] != ']' {
				return nil, fmt.Errorf("%w: missing closing bracket", ErrExprParse)
			}
			p.pos++
			path.segs = append(path.segs, pathSeg{index: idx})
		default:
			return path, nil
		}
	}
}

func (p *exprParser) parseIdent() (exprNode, error) {
	name := p.readIdent()
	switch name {
	case "true":
		return &litNode{value: true}, nil
	case "false":
		return &litNode{value: false}, nil
	case "null", "undefined":
		return &litNode{value: nil}, nil
	}
	return p.parseAccess(&pathNode{root: name})
}

func (p *exprParser) parseString(quote byte) (exprNode, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == quote {
			p.pos++
			return &litNode{value: sb.String()}, nil
		}
		if c == '\\' && p.pos+1 < len(p.input) {
			p.pos++
			c = p.input[p.pos]
		}
		sb.WriteByte(c)
		p.pos++
	}
	return nil, fmt.Errorf("%w: unterminated string", ErrExprParse)
}

func (p *exprParser) parseNumber() (exprNode, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrExprParse, p.input[start:p.pos])
	}
	return &litNode{value: f}, nil
}

// peekOp возвращает оператор из списка, если он стоит на текущей позиции.
func (p *exprParser) peekOp(ops []string) string {
	p.skipSpace()
	for _, op := range ops {
		if strings.HasPrefix(p.input[p.pos:], op) {
			// "<" не должен съедать "<=" и т.п. — список уже отсортирован
			// от длинных к коротким внутри уровня.
			if op == "<" || op == ">" {
				if p.pos+1 < len(p.input) && p.input[p.pos+1] == '=' {
					continue
				}
			}
			return op
		}
	}
	return ""
}

func (p *exprParser) readIdent() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *exprParser) rest() string {
	r := p.input[p.pos:]
	if len(r) > 10 {
		r = r[:10]
	}
	return r
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
