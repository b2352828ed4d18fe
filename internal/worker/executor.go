package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/engine"
)

// Result — итог выполнения тела job.
type Result struct {
	// ExitReason — код результата для complete_step.
	ExitReason domain.ExitReason

	// Output — финальное state. Заполнен только для success и fail.
	Output map[string]any

	// ErrorMessage — описание ошибки для неуспешных исходов.
	ErrorMessage string

	// Logs — строки, выведенные через log(...), в порядке вывода.
	Logs []string
}

// Executor выполняет тела jobs построчно.
//
// Поддерживаемый язык — последовательность операторов, по одному на строку:
//
//	x = state.count * 2          // присваивание в state
//	state.user.name = 'alice'    // вложенный путь создаётся по мере нужды
//	log('processed ' + state.x)  // строка в лог run
//	fail('bad input')            // завершить step с exit_reason=fail
//
// Выражения вычисляются engine.Eval против окружения {state, credential}.
// Ошибка разбора или вычисления завершает step как crash; истёкший
// контекст — как kill:TimeoutError.
type Executor struct{}

// Run выполняет тело job над копией входного state.
func (e *Executor) Run(ctx context.Context, job domain.Job, input map[string]any, cred *domain.Credential) Result {
	state := deepCopy(input)
	if state == nil {
		state = map[string]any{}
	}

	env := map[string]any{"state": state}
	if cred != nil {
		credBody := make(map[string]any, len(cred.Body))
		for k, v := range cred.Body {
			credBody[k] = v
		}
		env["credential"] = credBody
	}

	var logs []string
	for i, line := range strings.Split(job.Body, "\n") {
		stmt := strings.TrimSpace(line)
		if stmt == "" || strings.HasPrefix(stmt, "//") {
			continue
		}

		if err := ctx.Err(); err != nil {
			return Result{
				ExitReason:   domain.ExitKillTimeout,
				ErrorMessage: fmt.Sprintf("TimeoutError: job %q interrupted at line %d", job.Name, i+1),
				Logs:         logs,
			}
		}

		switch {
		case strings.HasPrefix(stmt, "log(") && strings.HasSuffix(stmt, ")"):
			v, err := engine.Eval(stmt[len("log("):len(stmt)-1], env)
			if err != nil {
				return crashResult(job, i+1, err, logs)
			}
			logs = append(logs, engine.Stringify(v))

		case strings.HasPrefix(stmt, "fail(") && strings.HasSuffix(stmt, ")"):
			msg := "job failed"
			if arg := stmt[len("fail(") : len(stmt)-1]; strings.TrimSpace(arg) != "" {
				v, err := engine.Eval(arg, env)
				if err != nil {
					return crashResult(job, i+1, err, logs)
				}
				msg = engine.Stringify(v)
			}
			return Result{
				ExitReason:   domain.ExitFail,
				Output:       state,
				ErrorMessage: msg,
				Logs:         logs,
			}

		default:
			if err := e.assign(stmt, state, env); err != nil {
				return crashResult(job, i+1, err, logs)
			}
		}
	}

	return Result{ExitReason: domain.ExitSuccess, Output: state, Logs: logs}
}

// assign выполняет оператор присваивания "<путь> = <выражение>".
func (e *Executor) assign(stmt string, state map[string]any, env map[string]any) error {
	eq := assignIndex(stmt)
	if eq < 0 {
		return fmt.Errorf("%w: expected assignment, log(...) or fail(...): %q", ErrScriptParse, stmt)
	}

	target := strings.TrimSpace(stmt[:eq])
	target = strings.TrimPrefix(target, "state.")
	if target == "" || target == "state" {
		return fmt.Errorf("%w: bad assignment target in %q", ErrScriptParse, stmt)
	}

	value, err := engine.Eval(stmt[eq+1:], env)
	if err != nil {
		return err
	}

	// Промежуточные объекты пути создаются по мере необходимости.
	segs := strings.Split(target, ".")
	cur := state
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

// assignIndex находит '=' верхнего уровня, не являющийся частью
// ==, !=, <=, >=. -1, если оператор — не присваивание.
func assignIndex(stmt string) int {
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if c == '\'' || c == '"' {
			// Пропускаем строковый литерал
			for i++; i < len(stmt) && stmt[i] != c; i++ {
				if stmt[i] == '\\' {
					i++
				}
			}
			continue
		}
		if c != '=' {
			continue
		}
		if i+1 < len(stmt) && stmt[i+1] == '=' {
			i++
			continue
		}
		if i > 0 {
			switch stmt[i-1] {
			case '!', '<', '>', '=':
				continue
			}
		}
		return i
	}
	return -1
}

func crashResult(job domain.Job, line int, err error, logs []string) Result {
	return Result{
		ExitReason:   domain.ExitCrash,
		ErrorMessage: fmt.Sprintf("job %q line %d: %v", job.Name, line, err),
		Logs:         logs,
	}
}

// deepCopy копирует JSON-подобное дерево. Воркер мутирует state, а входной
// dataclip неизменяем.
func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopy(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
