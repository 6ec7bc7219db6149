package log

import (
	"fmt"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps log categories to emoji. Categories arrive as the "type"
// field appended by the LogHelper methods.
var emojiMap = map[string]string{
	"startup":        "🚀",
	"success":        "✅",
	"error":          "❌",
	"warning":        "⚠️",
	"breaker":        "🔌",
	"recovery":       "🚑",
	"audit":          "📋",
	"integrity":      "🔏",
	"alert":          "🚨",
	"metric":         "📊",
	"scheduler":      "🎯",
	"database":       "💾",
	"redis":          "📦",
	"entity":         "🏷️",
	"security":       "🔒",
	"performance":    "⏱️",
	"slow_operation": "🐌",
	"error_count":    "⚠️",
	"cache_stats":    "🧹",
}

// severityEmoji returns an emoji for an alert/error severity value.
func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "high", "warning":
		return "🟠"
	case "medium":
		return "🟡"
	case "low", "info":
		return "🟢"
	}
	return ""
}

// EmojiConsoleEncoder wraps the standard ConsoleEncoder and prefixes each
// message with an emoji derived from its fields. Zero intrusion: everything
// else is delegated to the wrapped encoder.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
	config zapcore.EncoderConfig
}

// NewEmojiConsoleEncoder creates the emoji-prefixing console encoder
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		config:  cfg,
	}
}

// EncodeEntry encodes a log entry with its emoji prefix.
//
// Emoji priority:
//  1. "severity" field (alert and error events)
//  2. "type" field mapping
//  3. log level default
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var logType string
	var severity string

	for _, field := range fields {
		if field.Type != zapcore.StringType {
			continue
		}
		switch field.Key {
		case "type":
			logType = field.String
		case "severity":
			severity = field.String
		}
	}

	emoji := ""
	if severity != "" {
		emoji = severityEmoji(severity)
	}
	if emoji == "" && logType != "" {
		emoji = emojiMap[logType]
	}

	if emoji == "" {
		switch entry.Level {
		case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			emoji = "❌"
		case zapcore.WarnLevel:
			emoji = "⚠️"
		case zapcore.InfoLevel:
			emoji = "ℹ️"
		case zapcore.DebugLevel:
			emoji = "🐛"
		}
	}

	if emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}

	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone clones the encoder (used internally by Zap)
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: enc.Encoder.Clone(),
		config:  enc.config,
	}
}

// AddEmojiToMap registers a custom category to emoji mapping.
func AddEmojiToMap(logType, emoji string) {
	emojiMap[logType] = emoji
}

// GetEmojiMap returns a copy of the current emoji mapping.
func GetEmojiMap() map[string]string {
	result := make(map[string]string, len(emojiMap))
	for k, v := range emojiMap {
		result[k] = v
	}
	return result
}

// formatDuration renders milliseconds in a compact human form.
// Examples: 1ms, 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.1fs", seconds)
}
