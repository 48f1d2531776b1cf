package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "EMA"

const (
	audioBackendMiniaudio = "miniaudio"
	audioBackendPortaudio = "portaudio"
)

var errMissingServer = errors.New("server address is required")

type config struct {
	Server         string `mapstructure:"server"`
	APIURL         string `mapstructure:"api-url"`
	Credential     string `mapstructure:"credential"`
	Language       string `mapstructure:"language"`
	Muted          bool   `mapstructure:"muted"`
	Conversation   string `mapstructure:"conversation"`
	DeepgramAPIKey string `mapstructure:"deepgram-api-key"`
	AudioBackend   string `mapstructure:"audio-backend"`
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("server", "", "chat websocket address, e.g. wss://host/ws")
	flags.String("api-url", "", "conversation REST API base URL (defaults to the server host)")
	flags.String("credential", "", "bearer credential for the chat server and API")
	flags.String("language", "en-US", "BCP-47 language tag for speech and messages")
	flags.Bool("muted", false, "start with spoken replies muted")
	flags.String("conversation", "", "conversation to open instead of creating one")
	flags.String("deepgram-api-key", "", "Deepgram API key for speech capture and playback")
	flags.String("audio-backend", audioBackendMiniaudio, "audio device backend: miniaudio or portaudio")
}

// loadConfig merges, in order of precedence, flags, EMA_* environment
// variables and the optional config file.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string) (config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ema-voice")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ema-voice")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.Server == "" {
		return errMissingServer
	}
	switch c.AudioBackend {
	case audioBackendMiniaudio, audioBackendPortaudio:
	default:
		return fmt.Errorf("unknown audio backend %q", c.AudioBackend)
	}
	return nil
}

// restBaseURL is the API base URL, derived from the websocket address when it
// is not configured explicitly.
func (c config) restBaseURL() (string, error) {
	if c.APIURL != "" {
		return c.APIURL, nil
	}

	server, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch server.Scheme {
	case "wss":
		server.Scheme = "https"
	case "ws":
		server.Scheme = "http"
	}
	return (&url.URL{Scheme: server.Scheme, Host: server.Host}).String(), nil
}
