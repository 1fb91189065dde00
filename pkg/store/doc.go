// Package store provides durable session transcript storage. Every
// implementation keeps one record per session id and overwrites the whole
// transcript on save.
package store
