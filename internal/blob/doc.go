// Package blob — вынос крупных тел dataclips в S3-совместимое хранилище.
package blob
