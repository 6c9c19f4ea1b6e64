package log

import (
	"fmt"
	"strings"
)

// Config is the declarative logger configuration used by ApplyConfig.
type Config struct {
	Level   string   `json:"level" mapstructure:"level"`
	Format  string   `json:"format" mapstructure:"format"`   // text|json
	Outputs []string `json:"outputs" mapstructure:"outputs"` // console|null|file:<path>
	Redact  []string `json:"redact" mapstructure:"redact"`
	// SampleInitial/SampleThereafter enable per-message sampling when thereafter > 0.
	SampleInitial    int `json:"sampleInitial" mapstructure:"sampleInitial"`
	SampleThereafter int `json:"sampleThereafter" mapstructure:"sampleThereafter"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"console"}
	}
	for _, o := range outputs {
		switch {
		case o == "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case o == "null":
			opts = append(opts, WithOutput(NewNullOutput()))
		case strings.HasPrefix(o, "file:"):
			fo, err := NewFileOutput(strings.TrimPrefix(o, "file:"))
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		default:
			return nil, fmt.Errorf("unknown log output %q", o)
		}
	}
	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedactedKeys(cfg.Redact...))
	}
	opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	return NewLogger(opts...), nil
}
