// Package repo реализует контракты пакета store поверх PostgreSQL (pgx).
//
// Каждая группа таблиц живёт в своём файле; Store собирает репозитории в
// одно значение. Содержимое, которое читается только целиком (jobs и
// edges workflow, содержимое snapshot, тела dataclips), хранится JSONB.
// Схема — в migrations/.
package repo
