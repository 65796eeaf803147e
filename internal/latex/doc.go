// Package latex is the in-process compilation engine.
//
// Prepare clones the source repository into a per-request download
// directory, GetOrCreate binds a compilation to that download in a
// fingerprint-keyed LRU cache, and Run invokes the configured LaTeX command.
// Produced PDFs are copied into the engine's storage directory so they
// outlive the download, which callers dispose after every run.
package latex
