package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSize         = 512
	DefaultHeaderOffset = 5
	DefaultSkip         = 768
	DefaultPort         = 8080
)

// DefaultLabels is the class table of the shipped model, index aligned with its output row.
var DefaultLabels = []string{"Espícula", "Normal", "Piscada", "Ruído"}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("signal.size", DefaultSize)
	v.SetDefault("signal.header_offset", DefaultHeaderOffset)
	v.SetDefault("signal.skip", DefaultSkip)
	v.SetDefault("signal.flat_value", 0.5)
	v.SetDefault("signal.default_value", 0.5)

	v.SetDefault("labels", DefaultLabels)

	v.SetDefault("format.locale", "pt-BR")
	v.SetDefault("format.decimals", 3)

	v.SetDefault("model.path", "models/model.onnx")
	v.SetDefault("model.metadata_path", "models/model_metadata.json")
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")
	v.SetDefault("model.library_path", "")

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.session_ttl", 30*time.Minute)

	v.SetDefault("render.width", 800)
	v.SetDefault("render.height", 300)
	v.SetDefault("render.y_padding", 5)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return cfg
}
