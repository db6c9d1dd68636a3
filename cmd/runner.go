package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
	"github.com/desertthunder/save-a-playlist/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from ConfigPath (and the environment) on first use.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    ui.Styles,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, configCommand, tokenCommand, sessionCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig returns the runner's config, loading it on first use.
//
// The --config flag overrides the path the runner was created with.
// The configured log level is applied to the runner's logger.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	if cmd != nil && cmd.IsSet("config") {
		path = cmd.String("config")
	}

	config, err := shared.Load(path)
	if err != nil {
		return nil, err
	}

	if config.LogLevel != "" {
		level, err := shared.ParseLogLevel(config.LogLevel)
		if err != nil {
			r.logger.Warn("ignoring log level", "level", config.LogLevel, "error", err)
		} else {
			shared.SetLogLevel(r.logger, level)
		}
	}

	r.config = config
	r.configPath = path
	return config, nil
}

// sessionManager builds the codec and manager from the session settings.
func (r *Runner) sessionManager(config *shared.Config) (*session.Manager, *session.Codec, error) {
	codec, err := session.NewCodec([]byte(config.Session.Secret), session.WithIssuer(config.Session.Issuer))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	manager, err := session.NewManager(session.ManagerOpts{
		Codec:    codec,
		TTL:      config.Session.TTL,
		StateTTL: config.Session.StateTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	return manager, codec, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain(format+"\n", args...)
}
