package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "goon_chat/pkg/ai/providers"
	"goon_chat/pkg/chat"
	"goon_chat/pkg/config"
	"goon_chat/pkg/logging"
	"goon_chat/pkg/speech"
	"goon_chat/pkg/transport"
	"goon_chat/pkg/version"

	"github.com/joho/godotenv"
)

const usage = `Usage: goon [flags] [command]

Commands:
  chat      talk to Goon (default)
  actions   list the quick actions
  providers list the LLM providers
  models    list OpenRouter models, optionally matching a search term
  version   print build information

Flags:
`

type options struct {
	configPath string
	voiceFile  string
	refresh    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("goon", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", config.GetConfigPath(), "path to the config file")
	fs.StringVar(&opts.voiceFile, "voice-file", "", "audio file transcribed on each voice request")
	fs.BoolVar(&opts.refresh, "refresh", false, "ignore the cached model list (models command)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	command := "chat"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	switch command {
	case "version":
		fmt.Fprintln(stdout, version.Info("goon"))
		return nil
	case "actions":
		printActions(stdout)
		return nil
	case "providers":
		printProviders(stdout)
		return nil
	}

	_ = godotenv.Load()
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "models":
		return printModels(ctx, stdout, cfg, fs.Arg(1), opts.refresh)
	case "chat":
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", opts.configPath, err)
		}
		if _, err := logging.Init(cfg); err != nil {
			fmt.Fprintf(stderr, "Warning: file logging disabled: %v\n", err)
		}
		slog.Info("goon_start", "version", version.Summary(), "transport", cfg.Transport, "provider", cfg.LLMProvider)
		return runChat(ctx, cfg, opts, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return config.ApplyEnv(cfg)
}

func newController(cfg config.Config, opts options) (*chat.Controller, error) {
	client, err := transport.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	ctrlOpts := []chat.Option{
		chat.WithExchangeTimeout(time.Duration(cfg.ExchangeTimeoutSeconds) * time.Second),
	}
	if opts.voiceFile != "" {
		adapter, err := newSpeechAdapter(cfg, opts.voiceFile)
		if err != nil {
			return nil, err
		}
		ctrlOpts = append(ctrlOpts, chat.WithSpeech(adapter))
	}
	return chat.NewController(chat.NewStore(), client, ctrlOpts...), nil
}

// newSpeechAdapter transcribes voiceFile with the OpenAI audio API every
// time voice input is requested.
func newSpeechAdapter(cfg config.Config, voiceFile string) (*speech.Adapter, error) {
	transcriber, err := speech.NewOpenAITranscriber(speech.TranscriberConfig{
		APIKey:   cfg.SpeechAPIKey(),
		APIURL:   cfg.Providers.OpenAI.APIURL,
		Model:    cfg.Speech.Model,
		Language: cfg.Speech.Language,
		Timeout:  time.Duration(cfg.Providers.OpenAI.APITimeoutSeconds) * time.Second,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("voice input: %w", err)
	}
	rec := speech.NewWhisperRecognizer(speech.FileSource(voiceFile), transcriber)
	return speech.NewAdapter(rec), nil
}
