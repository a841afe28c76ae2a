package sink

import (
	"context"
	"log/slog"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const KindLogger = "logger"

func init() { register[LoggerConfig](KindLogger) }

type LoggerConfig struct {
	Type  string `json:"type"`
	Level string `json:"level,omitempty"`
}

func (c *LoggerConfig) Kind() string { return KindLogger }

func (c *LoggerConfig) Validate() error {
	var l slog.Level
	if c.Level != "" {
		if err := l.UnmarshalText([]byte(c.Level)); err != nil {
			return pipeline.InvalidField(KindLogger, "level", err.Error())
		}
	}
	return nil
}

func (c *LoggerConfig) level() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(strings.ToUpper(c.Level)))
	return l
}

// Logger writes each record to a structured logger. Useful for dry runs.
type Logger struct {
	log *slog.Logger
}

func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l}
}

func (l *Logger) Kind() string { return KindLogger }

func (l *Logger) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[LoggerConfig](KindLogger, cfg)
	if err != nil {
		return nil, err
	}
	level := c.level()
	return deliverEach(ctx, KindLogger, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		l.log.Log(ctx, level, "record",
			"key", r.Key(),
			"source_name", r.SourceName,
			"processed_text", r.ProcessedText,
			"segmented_data", r.SegmentedData,
		)
		return StatusDelivered, nil
	})
}
