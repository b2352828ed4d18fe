// Package store описывает контракты persistence-слоя, которые требует
// ядро, и содержит реализацию в памяти.
//
// Выбор движка хранения — вне ядра: pgx-реализация живёт в пакете repo,
// Memory используется тестами и однонодовым dev-режимом.
package store
