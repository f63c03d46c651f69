package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind         string
	minPlayers   int
	multiplier   float64
	pingInterval time.Duration
	pongWait     time.Duration
	port         int
	prefix       string
	profile      bool
	rooms        []string
	tlsCert      string
	tlsKey       string
	verbose      bool
	version      bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 1 {
		return fmt.Errorf("invalid minimum player count (must be at least 1): %d", c.minPlayers)
	}
	if c.multiplier < minMultiplier || c.multiplier > maxMultiplier {
		return fmt.Errorf("invalid default multiplier (must be between %.1f-%.1f inclusive): %v", minMultiplier, maxMultiplier, c.multiplier)
	}
	if len(c.rooms) == 0 {
		return errors.New("at least one room name must be provided")
	}
	if c.pingInterval >= c.pongWait {
		return errors.New("--ping-interval must be shorter than --pong-wait")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GUESSBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "guessbox",
		Short:         "A real-time multiplayer guess-the-target-number party game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GUESSBOX_BIND)")
	fs.IntVar(&cfg.minPlayers, "min-players", 1, "connected players required to start a round (env: GUESSBOX_MIN_PLAYERS)")
	fs.Float64Var(&cfg.multiplier, "multiplier", defaultMultiplier, "default target multiplier for new rooms (env: GUESSBOX_MULTIPLIER)")
	fs.DurationVar(&cfg.pingInterval, "ping-interval", 30*time.Second, "interval between websocket keepalive pings (env: GUESSBOX_PING_INTERVAL)")
	fs.DurationVar(&cfg.pongWait, "pong-wait", 60*time.Second, "time before an unresponsive connection is dropped (env: GUESSBOX_PONG_WAIT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GUESSBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GUESSBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GUESSBOX_PROFILE)")
	fs.StringSliceVar(&cfg.rooms, "rooms", []string{"The Secret Room", "The Room of Rooms", "The Kids' Room", "The Last Room"}, "display names of the provisioned rooms (env: GUESSBOX_ROOMS)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GUESSBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GUESSBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GUESSBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GUESSBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("guessbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
