package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/B4xAbhishek/aqua-ai-answers/client"
	"github.com/B4xAbhishek/aqua-ai-answers/identity"
	"github.com/B4xAbhishek/aqua-ai-answers/internal/config"
	"github.com/B4xAbhishek/aqua-ai-answers/session"
)

// settleTimeout bounds the wait for the first entitlement result.
const settleTimeout = 15 * time.Second

// flags holds the persistent flags; empty values defer to the environment.
type flags struct {
	apiURL    string
	topic     string
	mode      string
	tokenFile string
	debug     bool
	trial     bool
	plain     bool
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:           "aqua",
		Short:         "Aqua CLI for chatting with the homeowner assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := config.ParseLevel(os.Getenv("AQUA_LOG_LEVEL"))
			if f.debug {
				level = zerolog.DebugLevel
			}
			config.InitLogger(cmd.ErrOrStderr(), level)
			log.Debug().Msg("debug logging enabled")
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.apiURL, "api-url", "", "Backend base URL (default $AQUA_API_URL)")
	pf.StringVar(&f.topic, "topic", "", "Chat topic (default $AQUA_CHAT_TOPIC)")
	pf.StringVar(&f.mode, "mode", "", "Entitlement delivery: poll or stream (default $AQUA_ENTITLEMENT_MODE)")
	pf.StringVar(&f.tokenFile, "token-file", "", "Token file (default $AQUA_TOKEN_FILE)")
	pf.BoolVarP(&f.debug, "debug", "d", false, "Enable verbose debug output")
	pf.BoolVar(&f.trial, "trial", false, "Allow chatting without a subscription")
	pf.BoolVar(&f.plain, "plain", false, "Print replies without markdown rendering")

	rootCmd.AddCommand(newChatCmd(f))
	rootCmd.AddCommand(newAskCmd(f))
	rootCmd.AddCommand(newHistoryCmd(f))
	rootCmd.AddCommand(newOpenCmd(f))
	rootCmd.AddCommand(newStatusCmd(f))
	rootCmd.AddCommand(newSubscribeCmd(f))
	rootCmd.AddCommand(newPortalCmd(f))
	rootCmd.AddCommand(newDocumentsCmd(f))
	rootCmd.AddCommand(newHealthCmd(f))
	rootCmd.AddCommand(newLoginCmd(f))
	rootCmd.AddCommand(newLogoutCmd(f))
	rootCmd.AddCommand(newDevTokenCmd(f))

	return rootCmd
}

// loadConfig reads the environment and applies flag overrides.
func (f *flags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.apiURL != "" {
		cfg.APIURL = f.apiURL
	}
	if f.topic != "" {
		cfg.ChatTopic = f.topic
	}
	if f.mode != "" {
		cfg.EntitlementMode = f.mode
	}
	if f.tokenFile != "" {
		cfg.TokenFile = f.tokenFile
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (f *flags) newClient(cfg *config.Config) (*client.Client, error) {
	opts := []client.Option{client.WithHTTPTimeout(cfg.RequestTimeout), client.WithLogger(log.Logger)}
	if f.debug {
		opts = append(opts, client.WithDebugLogging(true))
	}
	return client.New(cfg.APIURL, opts...)
}

// app is one running session: identity source, backend client and manager.
type app struct {
	cfg     *config.Config
	api     *client.Client
	files   *identity.FileSource
	mgr     *session.Manager
	changed chan struct{}
	render  func(string) string

	mu   sync.Mutex
	errs []error
}

// openApp wires the identity source, client and session manager and waits
// for the first entitlement result.
func (f *flags) openApp(ctx context.Context) (*app, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	api, err := f.newClient(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, api: api, changed: make(chan struct{}, 1), render: f.renderer()}

	var ids session.IdentitySource
	if cfg.Token != "" {
		subject, err := identity.NewSubject(cfg.Token)
		if err != nil {
			return nil, err
		}
		ids = identity.NewStatic(subject)
	} else {
		files, err := identity.NewDefaultFileSource(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		if err := files.Start(ctx); err != nil {
			return nil, err
		}
		a.files = files
		ids = files
	}

	source, err := entitlementSource(cfg, api)
	if err != nil {
		a.close()
		return nil, err
	}
	a.mgr = session.New(ids, api,
		session.WithLogger(log.Logger),
		session.WithTopic(cfg.ChatTopic),
		session.WithEntitlementSource(source),
		session.WithOnChange(func(session.State) {
			select {
			case a.changed <- struct{}{}:
			default:
			}
		}),
		session.WithErrorHandler(a.recordError),
	)
	if err := a.mgr.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	if f.trial {
		a.mgr.SetTrialOverride(true)
	}
	if err := a.settle(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func entitlementSource(cfg *config.Config, api *client.Client) (session.EntitlementSource, error) {
	switch cfg.EntitlementMode {
	case config.ModeStream:
		src, err := session.NewStreamSource(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		src.Logger = log.Logger
		return src, nil
	default:
		return &session.PollSource{Fetcher: api, Interval: cfg.PollInterval}, nil
	}
}

// settle waits until the entitlement of the current identity is known.
func (a *app) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	for {
		s := a.mgr.Snapshot()
		if s.IdentityID == "" || !s.Entitlement.Loading {
			return nil
		}
		select {
		case <-a.changed:
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("waiting for subscription status: %w", ctx.Err())
		}
	}
}

func (a *app) recordError(err error) {
	log.Debug().Err(err).Msg("session error")
	a.mu.Lock()
	a.errs = append(a.errs, err)
	a.mu.Unlock()
}

// lastError returns the most recent background error, if any.
func (a *app) lastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errs) == 0 {
		return nil
	}
	return a.errs[len(a.errs)-1]
}

func (a *app) close() {
	if a.mgr != nil {
		_ = a.mgr.Close()
	}
	if a.files != nil {
		_ = a.files.Close()
	}
}

// explain turns session errors into a hint for the user.
func explain(err error) error {
	switch session.KindOf(err) {
	case session.NotAuthenticated:
		return errors.New("not signed in: run `aqua login <token>` or set AQUA_TOKEN")
	case session.NotEntitled:
		return errors.New("no active subscription: run `aqua subscribe` or pass --trial")
	case session.Busy:
		return errors.New("another request is still in flight")
	}
	return err
}

// renderer returns the markdown renderer for assistant replies.
func (f *flags) renderer() func(string) string {
	if f.plain {
		return func(s string) string { return s }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable")
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return out
	}
}
