package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// EnvironmentFile is the YAML layout of one tenant connection file.
type EnvironmentFile struct {
	Name       string   `yaml:"name"`
	Role       string   `yaml:"role"`
	Domain     string   `yaml:"domain"`
	Token      string   `yaml:"token"`
	IsSSL      *bool    `yaml:"is_ssl"`
	Insecure   *bool    `yaml:"insecure"`
	Datamodels []string `yaml:"datamodels"`
}

// Validate checks the required connection fields.
func (f EnvironmentFile) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Domain, validation.Required, validation.By(noScheme)),
		validation.Field(&f.Token, validation.Required),
		validation.Field(&f.Role, validation.In("", "source", "target")),
	)
}

func noScheme(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "://") {
		return fmt.Errorf("must be a host name without scheme")
	}
	return nil
}

// TokenEnvVar returns the variable that overrides the token of a named
// environment, e.g. SISENSE_SOURCE_TOKEN.
func TokenEnvVar(name string) string {
	key := strings.ToUpper(name)
	key = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, key)
	return "SISENSE_" + key + "_TOKEN"
}

// LoadEnvironment reads an environment file. When the file has no name, the
// file's base name is used. A token set in the environment (see TokenEnvVar)
// wins over the file.
func LoadEnvironment(fs afero.Fs, path string) (*models.Environment, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file EnvironmentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if tok := os.Getenv(TokenEnvVar(file.Name)); tok != "" {
		file.Token = tok
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment %s: %w", path, err)
	}
	return file.Environment(), nil
}

// Environment converts the file into a model, applying defaults.
func (f EnvironmentFile) Environment() *models.Environment {
	env := &models.Environment{
		Name:       f.Name,
		Role:       f.Role,
		Domain:     f.Domain,
		Token:      f.Token,
		IsSSL:      true,
		Insecure:   true,
		Datamodels: f.Datamodels,
	}
	if f.IsSSL != nil {
		env.IsSSL = *f.IsSSL
	}
	if f.Insecure != nil {
		env.Insecure = *f.Insecure
	}
	return env
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); !ok {
			os.Setenv(k, v)
		}
	}
	return nil
}
