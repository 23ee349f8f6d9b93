// Package logx is postcal's structured logging layer.
//
// Logger is a small value type over zerolog. Service owns the sinks and can
// swap them at runtime when the config file changes:
//   - console (short timestamp + file:line caller)
//   - JSON file
//   - chat sink that forwards WARN+ lines to a Telegram chat, rate limited
package logx
