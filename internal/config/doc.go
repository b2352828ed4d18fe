// Package config загружает конфигурацию сервисов Conductor.
//
// Слои, от нижнего к верхнему: значения по умолчанию, YAML-файл
// (conductor.yaml или путь из флага), переменные окружения. Один и тот
// же файл читают все четыре бинарника — каждый берёт свои секции.
package config
