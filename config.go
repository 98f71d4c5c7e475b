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
	bind             string
	idleGrace        time.Duration
	lockinDelay      time.Duration
	port             int
	prefix           string
	profile          bool
	questionDuration time.Duration
	quizDir          string
	revealDelay      time.Duration
	tickInterval     time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.questionDuration <= 0 {
		return fmt.Errorf("invalid question duration: %s", c.questionDuration)
	}
	if c.lockinDelay <= 0 || c.revealDelay <= 0 || c.idleGrace <= 0 {
		return errors.New("lock-in delay, reveal delay, and idle grace must all be positive")
	}
	if c.tickInterval <= 0 || c.tickInterval > c.lockinDelay {
		return fmt.Errorf("tick interval must be positive and no longer than the lock-in delay: %s", c.tickInterval)
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
	v.SetEnvPrefix("QUIZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "A live multi-party quiz match, with a host display and phone-sized player clients.",
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOX_BIND)")
	fs.DurationVar(&cfg.idleGrace, "idle-grace", 10*time.Second, "grace period with no connected clients before the match is terminated (env: QUIZBOX_IDLE_GRACE)")
	fs.DurationVar(&cfg.lockinDelay, "lockin-delay", 4*time.Second, "length of the answer lock-in window before reveal (env: QUIZBOX_LOCKIN_DELAY)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZBOX_PROFILE)")
	fs.DurationVar(&cfg.questionDuration, "question-duration", 20*time.Second, "nominal question duration used for speed scoring (env: QUIZBOX_QUESTION_DURATION)")
	fs.StringVar(&cfg.quizDir, "quiz-dir", "", "directory of extra quiz packs, merged over the embedded ones (env: QUIZBOX_QUIZ_DIR)")
	fs.DurationVar(&cfg.revealDelay, "reveal-delay", 14*time.Second, "pause on the reveal screen before the next question (env: QUIZBOX_REVEAL_DELAY)")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", 500*time.Millisecond, "interval between countdown rebroadcasts (env: QUIZBOX_TICK_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
