package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Seednode/yellowcar/games/yellowcar"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind              string
	challengeDuration time.Duration
	contestWindow     time.Duration
	database          string
	pointCooldown     time.Duration
	port              int
	prefix            string
	profile           bool
	sessionTimeout    time.Duration
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool

	log *slog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.pointCooldown <= 0 {
		return fmt.Errorf("invalid point cooldown (must be positive): %s", c.pointCooldown)
	}
	if c.challengeDuration <= 0 {
		return fmt.Errorf("invalid challenge duration (must be positive): %s", c.challengeDuration)
	}
	if c.contestWindow <= 0 {
		return fmt.Errorf("invalid contest window (must be positive): %s", c.contestWindow)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// logger returns the configured logger, or one that discards everything.
func (c *Config) logger() *slog.Logger {
	if c.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.log
}

func newLogger(cfg *Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelInfo
	}

	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("YELLOWCAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "yellowcar",
		Short:         "Spot the yellow car: a shared scoreboard for road trips, with challenges and votes.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			cfg.log = newLogger(cfg)
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: YELLOWCAR_BIND)")
	fs.DurationVar(&cfg.challengeDuration, "challenge-duration", yellowcar.DefaultChallengeDuration, "time players have to vote on a challenge (env: YELLOWCAR_CHALLENGE_DURATION)")
	fs.DurationVar(&cfg.contestWindow, "contest-window", yellowcar.DefaultContestWindow, "time after a point during which it can be challenged (env: YELLOWCAR_CONTEST_WINDOW)")
	fs.StringVarP(&cfg.database, "database", "d", "", "path to sqlite database; games are kept in memory if unset (env: YELLOWCAR_DATABASE)")
	fs.DurationVar(&cfg.pointCooldown, "point-cooldown", yellowcar.DefaultCooldown, "minimum time between points from one player (env: YELLOWCAR_POINT_COOLDOWN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: YELLOWCAR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: YELLOWCAR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: YELLOWCAR_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are closed (env: YELLOWCAR_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: YELLOWCAR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: YELLOWCAR_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: YELLOWCAR_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: YELLOWCAR_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("yellowcar v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
