// Package logx configures wadispatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one event per line
//   - Levels and sinks swappable at runtime (config reload)
package logx
