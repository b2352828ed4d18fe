package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output — вывод команд conductor-cli.
//
// Данные (списки work orders, runs, steps) идут в stdout — таблицей для
// человека или JSON для пайплайнов (--json). Статусные сообщения идут в
// stderr, чтобы не засорять то, что пользователь перенаправил в файл.
type Output struct {
	jsonMode bool
	data     io.Writer
	status   io.Writer
}

// NewOutput создаёт Output; jsonMode=true переключает данные на JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		data:     os.Stdout,
		status:   os.Stderr,
	}
}

// Print выводит результат команды в активном режиме: rows таблицей либо
// jsonData как JSON.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table печатает выровненную таблицу с заголовком и разделителем.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.data, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// JSON печатает v с отступами в stdout.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.data)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success печатает статусное сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.status, msg)
}

// Error печатает сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.status, "Error: "+msg)
}
