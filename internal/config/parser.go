package config

import (
	"bytes"
	"errors"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Client  *fileClient  `yaml:"client"`
	Inhibit *fileInhibit `yaml:"inhibit"`
	Notify  *fileNotify  `yaml:"notify"`
	Log     *fileLog     `yaml:"log"`
}

type fileClient struct {
	ReplyTimeout   *time.Duration `yaml:"reply_timeout"`
	StartupTimeout *time.Duration `yaml:"startup_timeout"`
}

type fileInhibit struct {
	What *string `yaml:"what"`
	Who  *string `yaml:"who"`
	Why  *string `yaml:"why"`
	Mode *string `yaml:"mode"`
}

type fileNotify struct {
	Enable *bool `yaml:"enable"`
}

type fileLog struct {
	Level *string `yaml:"level"`
}

// Parse decodes YAML content over base and validates the result.
//
// Keys absent from content keep their base value; unknown keys are an error.
func Parse(content []byte, base Config) (Config, []Warning, error) {
	var file fileConfig

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, err
	}

	cfg := base
	applyFile(&cfg, file)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func applyFile(cfg *Config, file fileConfig) {
	if c := file.Client; c != nil {
		setIf(&cfg.Client.ReplyTimeout, c.ReplyTimeout)
		setIf(&cfg.Client.StartupTimeout, c.StartupTimeout)
	}
	if in := file.Inhibit; in != nil {
		setIf(&cfg.Inhibit.What, in.What)
		setIf(&cfg.Inhibit.Who, in.Who)
		setIf(&cfg.Inhibit.Why, in.Why)
		setIf(&cfg.Inhibit.Mode, in.Mode)
	}
	if n := file.Notify; n != nil {
		setIf(&cfg.Notify.Enable, n.Enable)
	}
	if l := file.Log; l != nil {
		setIf(&cfg.Log.Level, l.Level)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
