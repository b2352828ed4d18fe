// Package engine содержит вычислительное ядро выполнения workflow.
//
// Включает:
//   - snapshot.go — заморозка workflow в неизменяемый snapshot
//   - dag.go      — DAG evaluator: какие jobs готовы после источника
//   - expr.go     — ограниченный вычислитель выражений (sandbox)
//
// Engine не имеет состояния и побочных эффектов: все функции — чистые
// преобразования над snapshot и данными. Отслеживание того, какие jobs
// уже запланированы в конкретном run, лежит на пакете claims.
package engine
