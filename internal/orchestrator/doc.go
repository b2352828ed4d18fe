// Package orchestrator — фасад приёма событий триггеров: admission,
// заморозка snapshot, создание work order и available run.
package orchestrator
