package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gradeport/go-portal-client/governor"
	"github.com/gradeport/go-portal-client/internal/config"
	"github.com/gradeport/go-portal-client/internal/utils"
	"github.com/gradeport/go-portal-client/monitor"
	"github.com/gradeport/go-portal-client/portal"
	"github.com/gradeport/go-portal-client/signer"
	"github.com/gradeport/go-portal-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app wires the client stack from configuration. Built once per command.
type app struct {
	cfg      config.Config
	fileCfg  *config.FileConfig
	store    *store.FileStore
	governor *governor.Governor
	client   *portal.Client
}

func newApp(configPath string) (*app, error) {
	cfg := config.New()
	fileCfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] loading config file")
	}

	statePath := config.Or(fileCfg.StatePath, cfg.GetStatePath())
	if err := os.MkdirAll(filepath.Dir(statePath), 0o700); err != nil {
		return nil, errors.Wrap(err, "[newApp] creating state directory")
	}
	st, err := store.NewFileStore(statePath)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] opening state file")
	}

	loc, err := time.LoadLocation(config.Or(fileCfg.Timezone, cfg.GetSignatureTimezone()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] loading signature timezone")
	}

	appID := config.Or(fileCfg.AppID, cfg.GetAppID())
	gov := governor.New(
		governor.WithWindow(cfg.GetRateWindow(), cfg.GetRateMaxCalls()),
		governor.WithLockDuration(cfg.GetLockoutDuration()),
		governor.WithPrivilegedRoles(cfg.GetPrivilegedRoles()...),
		governor.WithRoleFunc(func() string {
			handle, err := st.Handle()
			if err != nil {
				return ""
			}
			return handle.Role
		}),
	)

	client, err := portal.NewClient(
		config.Or(fileCfg.BaseURL, cfg.GetBaseURL()),
		appID,
		gov,
		signer.New(appID, signer.WithLocation(loc)),
		st,
		portal.WithRequestTimeout(cfg.GetRequestTimeout()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] building portal client")
	}

	return &app{cfg: cfg, fileCfg: fileCfg, store: st, governor: gov, client: client}, nil
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gradeport",
		Short:         "Grades portal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to yaml config file")

	root.AddCommand(
		newLoginCommand(&configPath),
		newOAuthLoginCommand(&configPath),
		newGradesCommand(&configPath),
		newWatchCommand(&configPath),
		newLogoutCommand(&configPath),
		newLockoutCommand(&configPath),
	)
	return root
}

func newLoginCommand(configPath *string) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and establish the local session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("PORTAL_PASSWORD")
			}

			handle, err := a.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s), session %s\n", handle.Username, handle.Role, handle.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "portal username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "portal password (or PORTAL_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newOAuthLoginCommand(configPath *string) *cobra.Command {
	var code, state string

	cmd := &cobra.Command{
		Use:   "oauth-login",
		Short: "Authenticate through the configured identity provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			oauthCfg := utils.Value(a.fileCfg.OAuth)
			if oauthCfg.Issuer == "" {
				return errors.New("no oauth provider configured (set oauth.issuer in the config file)")
			}

			provider, err := portal.NewOAuthProvider(cmd.Context(),
				oauthCfg.Issuer, oauthCfg.ClientID, oauthCfg.ClientSecret, oauthCfg.RedirectURL)
			if err != nil {
				return err
			}

			if code == "" {
				fmt.Println("Visit the following URL to authenticate, then re-run with --code:")
				fmt.Println(provider.AuthCodeURL(state))
				return nil
			}

			handle, err := a.client.LoginWithProvider(cmd.Context(), provider, code)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s, session %s\n", handle.Username, handle.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code from the provider redirect")
	cmd.Flags().StringVar(&state, "state", "gradeport", "opaque state echoed by the provider")
	return cmd
}

func newGradesCommand(configPath *string) *cobra.Command {
	var term string

	cmd := &cobra.Command{
		Use:   "grades",
		Short: "Fetch the authenticated student's grades",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}

			grades, err := a.client.Grades(cmd.Context(), term)
			if err != nil {
				return err
			}
			for _, g := range grades {
				fmt.Printf("%-30s %-8s %2d cr  %6.2f\n", g.Course, g.Term, g.Credits, g.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&term, "term", "t", "", "term filter, e.g. 2025-1")
	return cmd
}

func newWatchCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the session integrity monitor until termination",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			displayAppName("gradeport")

			a.governor.Subscribe(func(e governor.LockoutEvent) {
				fmt.Printf("Locked out for %s (until %s)\n", e.Duration, e.LockedUntil.Format(time.Kitchen))
			})

			m, err := monitor.New(a.store, a.client.Sessions(), a.client.Blocklist(),
				monitor.WithWatcher(a.store),
				monitor.WithPollSchedule(a.cfg.GetPollGrace(), a.cfg.GetPollInterval()),
				monitor.WithIdleSchedule(a.cfg.GetIdleLimit(), a.cfg.GetIdleWarning(), time.Second),
			)
			if err != nil {
				return err
			}

			done := make(chan monitor.Termination, 1)
			m.OnTerminate(func(t monitor.Termination) { done <- t })
			m.OnIdleWarning(func(remaining time.Duration) {
				fmt.Printf("Idle: you will be logged out in %s\n", remaining.Round(time.Second))
			})
			m.OnIdleWarningCleared(func() {
				fmt.Println("Idle warning dismissed")
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := m.Start(ctx); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case t := <-done:
				fmt.Println("Session terminated:", t.Reason.Message())
				if t.Detail != "" {
					fmt.Println("Detail:", t.Detail)
				}
			case <-stop:
				m.Stop()
				log.Info().Msg("monitor stopped")
			}
			return nil
		},
	}
}

func newLogoutCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate sessions and clear local state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			return a.client.Logout(cmd.Context())
		},
	}
}

func newLockoutCommand(configPath *string) *cobra.Command {
	var duration time.Duration
	var release bool

	cmd := &cobra.Command{
		Use:   "lockout",
		Short: "Trip or release the traffic governor (security drill)",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			if release {
				a.governor.Reset()
				fmt.Println("Lockout released")
				return nil
			}
			a.governor.Trip(duration)
			fmt.Printf("Lockout tripped for %s\n", duration)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 180*time.Second, "lockout duration")
	cmd.Flags().BoolVar(&release, "release", false, "release an active lockout")
	return cmd
}
