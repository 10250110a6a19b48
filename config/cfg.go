package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	ImportConfig struct {
		AcceptedTypes  []string `yaml:"accepted_types" validate:"min=1,dive,required"`
		DescriptorName string   `yaml:"descriptor_name" validate:"required"`
		PosterSuffix   string   `yaml:"poster_suffix" validate:"required"`
		Concurrency    int      `yaml:"concurrency" validate:"gte=0"`
		MaxEntrySize   int64    `yaml:"max_entry_size" validate:"gte=0"`
		StrictSchema   bool     `yaml:"strict_schema"`
		ReportEmpty    bool     `yaml:"report_empty"`
	}

	MediaConfig struct {
		Directory             string `yaml:"directory" sanitize:"path_clean" validate:"required"`
		Optimize              bool   `yaml:"optimize"`
		JPEGQuality           int    `yaml:"jpeg_quality_level" validate:"min=40,max=100"`
		MaxDimension          int    `yaml:"max_dimension" validate:"gte=0"`
		RemovePNGTransparency bool   `yaml:"remove_png_transparency"`
		RasterizeSVG          bool   `yaml:"rasterize_svg"`
		VerifyContent         bool   `yaml:"verify_content"`
	}

	LibraryConfig struct {
		Path string `yaml:"path,omitempty" validate:"omitempty,filepath"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Import    ImportConfig   `yaml:"import"`
		Media     MediaConfig    `yaml:"media"`
		Library   LibraryConfig  `yaml:"library"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// Accepts reports whether declared container type is one of configured
// archive types.
func (conf *ImportConfig) Accepts(declared string) bool {
	for _, t := range conf.AcceptedTypes {
		if t == declared {
			return true
		}
	}
	return false
}
