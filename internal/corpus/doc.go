// Package corpus reads and writes the on-disk artifacts of a harvest: the
// JSON Lines record stream, per-document text files, the catalog shared by
// the phased commands, and the directory manifest of a local text mirror.
//
// The record stream is append-only and written through one RecordWriter
// per process, which serializes writers so every line is one complete
// record.
package corpus
