// Package credentials разрешает эффективный credential для job:
// напрямую или через keychain (path-выражение над данными триггера).
package credentials
