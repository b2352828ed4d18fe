// Package redact вычищает секреты credentials из текста логов.
//
// Очистка применяется до сохранения строки; уже сохранённые строки
// повторно не обрабатываются.
package redact
