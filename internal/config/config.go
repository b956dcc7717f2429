// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config assembles types.Config from defaults, the config file,
// environment variables and the .secrets/ directory, and validates it.
// Precedence is flag > env > file > secret > default.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

const (
	// FileName is the config file base name looked up in ./ and
	// ~/.config/citation-crawler/.
	FileName  = "citation-crawler"
	EnvPrefix = "CITATION_CRAWLER"

	DefaultUserAgent = "citation-crawler/0.1"
)

// Secret file names under .secrets/ and the config keys they fill.
const (
	SecretOpenAlexEmail   = "openalex-email"
	SecretAnthropicAPIKey = "anthropic-api-key"
)

var secretKeys = map[string]string{
	SecretOpenAlexEmail:   "graph.contact_email",
	SecretAnthropicAPIKey: "ai.api_key",
}

// SetDefaults registers every config key with its default value. Keys
// must be registered for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("graph.timeout", 30*time.Second)
	v.SetDefault("graph.user_agent", DefaultUserAgent)
	v.SetDefault("graph.base_url", "https://api.openalex.org")
	v.SetDefault("graph.contact_email", "")
	v.SetDefault("graph.max_per_page", 200)
	v.SetDefault("graph.citing_limit", 200)
	v.SetDefault("graph.rate.anonymous_rps", 1.0)
	v.SetDefault("graph.rate.polite_rps", 10.0)
	v.SetDefault("graph.rate.burst", 1)
	v.SetDefault("graph.retry.max_attempts", 5)
	v.SetDefault("graph.retry.base_delay", time.Second)
	v.SetDefault("graph.retry.max_delay", 60*time.Second)
	v.SetDefault("graph.retry.jitter", 0.2)

	v.SetDefault("acquisition.timeout", 60*time.Second)
	v.SetDefault("acquisition.user_agent", DefaultUserAgent)
	v.SetDefault("acquisition.download_rps", 5.0)
	v.SetDefault("acquisition.retry.max_attempts", 2)
	v.SetDefault("acquisition.retry.base_delay", time.Second)
	v.SetDefault("acquisition.retry.max_delay", 10*time.Second)
	v.SetDefault("acquisition.retry.jitter", 0.2)

	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.max_tokens", 8192)
	v.SetDefault("ai.max_retries", 3)

	v.SetDefault("crawl.workers", 5)
	v.SetDefault("crawl.max_papers", 0)
	v.SetDefault("crawl.capability_timeout", 5*time.Minute)
	v.SetDefault("crawl.call_timeout", 2*time.Minute)
}

// SetupEnv maps keys to CITATION_CRAWLER_<SECTION>_<KEY>. The contact
// identifier and the API key also read their conventional variables.
func SetupEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("graph.contact_email", EnvPrefix+"_GRAPH_CONTACT_EMAIL", "OPENALEX_EMAIL"); err != nil {
		return fmt.Errorf("binding contact email env: %w", err)
	}
	if err := v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return fmt.Errorf("binding api key env: %w", err)
	}
	return nil
}

// ApplySecrets fills keys still empty after file, env and flags from the
// loaded .secrets/ values.
func ApplySecrets(v *viper.Viper, secrets map[string]string) {
	for name, key := range secretKeys {
		val, ok := secrets[name]
		if !ok || v.GetString(key) != "" {
			continue
		}
		v.Set(key, val)
	}
}

// New returns a viper instance with defaults and env bindings applied and
// the config file read when present. An explicit path must exist.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := SetupEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, crawlerr.Errorf(crawlerr.CodeConfigInvalid, "reading config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/" + FileName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, crawlerr.Errorf(crawlerr.CodeConfigInvalid, "reading config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, crawlerr.Errorf(crawlerr.CodeConfigInvalid, "unmarshalling config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Validate checks every field constraint and reports all violations at
// once, keyed by their config path.
func Validate(cfg types.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return crawlerr.Errorf(crawlerr.CodeConfigInvalid, "validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s, got %v", fieldPath(fe.Namespace()), constraint(fe), fe.Value()))
	}
	return crawlerr.New(crawlerr.CodeConfigInvalid, "invalid config: "+strings.Join(msgs, "; "))
}

// fieldPath turns "Config.graph.HTTPConfig.timeout" into "graph.timeout".
// Type names (the root and squashed embeds) keep their Go name and are
// the only capitalized segments.
func fieldPath(ns string) string {
	var out []string
	for _, p := range strings.Split(ns, ".") {
		if p == "" || unicode.IsUpper(rune(p[0])) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
