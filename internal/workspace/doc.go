// Package workspace manages the engine's working directories, supporting both
// ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped directories (e.g., latexbuilder-20251214-122336)
// removed completely on Cleanup.
//
// Persistent mode uses a fixed directory (e.g., /tmp/downloads) that survives
// across runs; per-compilation subdirectories are created and removed inside it.
package workspace
