// Package logging provides opt-in, file-based structured logging with
// rotation for vdbd. When enabled, logs are written in JSON form to
// ~/.vdb/logs/vdbd.log; by default logging stays minimal and goes to
// stderr only.
package logging
