package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tkrehbiel/checkin/client"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/login"
	"github.com/tkrehbiel/checkin/client/page"
	"github.com/tkrehbiel/checkin/client/places"
	"github.com/tkrehbiel/checkin/client/proxy"
	"github.com/tkrehbiel/checkin/client/storage"
	"github.com/tkrehbiel/checkin/client/summary"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// app holds the global flags and the client opened for a command
type app struct {
	configFile string
	envFile    string
	storePath  string
	verbose    bool

	cfg    client.Config
	store  storage.Store
	client *client.Client
}

func newRootCmd() *cobra.Command {
	return (&app{}).command()
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "checkin",
		Short:         "Check in to places from an ActivityPub account",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file, json or toml")
	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "environment file")
	root.PersistentFlags().StringVar(&a.storePath, "store", "", "local store path")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "trace logging")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.inboxCmd(),
		a.placesCmd(),
		a.checkinCmd(),
		a.leaveCmd(),
		a.travelCmd(),
		a.serveCmd(),
		a.proxyCmd(),
	)
	closeAfter(root, a.close)
	return root
}

// closeAfter runs cleanup after every command, whether or not it fails
func closeAfter(cmd *cobra.Command, cleanup func()) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer cleanup()
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		closeAfter(sub, cleanup)
	}
}

// loadConfig reads the config file, the environment and the flags, in
// increasing order of precedence
func (a *app) loadConfig() error {
	cfg, err := client.LoadConfig(a.configFile)
	if err != nil {
		return err
	}
	var envFiles []string
	if a.envFile != "" {
		envFiles = append(envFiles, a.envFile)
	}
	if err := cfg.ApplyEnv(envFiles...); err != nil {
		return err
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if a.verbose {
		cfg.Verbose = true
	}
	a.cfg = cfg
	return nil
}

func (a *app) open() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	store, err := storage.Open(a.cfg.Store.Driver, a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.store = store
	a.client = client.New(a.cfg, store)
	telemetry.Trace("opened %s store [%s]", a.cfg.Store.Driver, a.cfg.Store.Path)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			telemetry.Error(err, "closing store")
		}
		a.store = nil
	}
	if a.cfg.Verbose {
		telemetry.LogCounters()
	}
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.Fetch.Timeout.Duration}
}

func (a *app) loginFlow() *login.Flow {
	return login.New(a.client.Session, a.cfg.RedirectURI, a.httpClient())
}

func (a *app) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <handle>",
		Short: "Start logging in as username@domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			authURL, err := a.loginFlow().Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this url to authorize the client:")
			fmt.Fprintln(out, authURL)
			fmt.Fprintln(out, "Then run: checkin login finish <redirected url>")
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "finish <url>",
		Short: "Finish logging in with the url the server redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.loginFlow().Finish(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", a.client.Session.ActorID(cmd.Context()))
			return nil
		},
	})
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the account and everything cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.client.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) inboxCmd() *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show the latest check-ins from people you follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if !a.client.Session.LoggedIn(ctx) {
				return client.ErrNotLoggedIn
			}
			var list []activity.Object
			if cached {
				list = a.client.Inbox.Cached(ctx)
			} else {
				var err error
				list, err = a.client.Inbox.Refresh(ctx)
				if err != nil {
					telemetry.Error(err, "refreshing inbox")
					list = a.client.Inbox.Cached(ctx)
				}
			}
			printActivities(cmd.OutOrStdout(), a.client.Hydrate(ctx, list), time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "show stored activities without fetching")
	return cmd
}

func printActivities(w io.Writer, list []activity.Object, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No activities.")
		return
	}
	for _, act := range list {
		line := summary.Text(summary.Display(act))
		if ts := act.Timestamp(); !ts.IsZero() {
			line += " (" + humanize.RelTime(ts, now, "ago", "from now") + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func (a *app) placesCmd() *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "places",
		Short: "List places near a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			searcher := places.New(a.cfg.Places.URL, a.cfg.Places.CacheTTL.Duration, a.httpClient())
			defer searcher.Close()
			found, err := searcher.Search(cmd.Context(), lat, lon)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "No places found.")
			}
			for _, p := range found {
				fmt.Fprintf(out, "%s\t%s\n", p.String(activity.NameProperty), p.ID())
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}

// postFlags are shared by the commands that post an activity
type postFlags struct {
	content    string
	visibility string
}

func (p *postFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.content, "content", "", "text to post with the activity")
	cmd.Flags().StringVar(&p.visibility, "visibility", string(client.Public), "public, unlisted or followers")
}

func (a *app) post(cmd *cobra.Command, send func(ctx context.Context) (activity.Object, error)) error {
	if err := a.open(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if !a.client.Session.LoggedIn(ctx) {
		return client.ErrNotLoggedIn
	}
	act, err := send(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary.Text(summary.Display(act)))
	if id := act.ID(); id != "" {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func (a *app) checkinCmd() *cobra.Command {
	var flags postFlags
	cmd := &cobra.Command{
		Use:   "checkin <place-id>",
		Short: "Check in at a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.post(cmd, func(ctx context.Context) (activity.Object, error) {
				return a.client.Outbox.Checkin(ctx, client.CheckinRequest{
					Place:      args[0],
					Content:    flags.content,
					Visibility: client.Visibility(flags.visibility),
				})
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func (a *app) leaveCmd() *cobra.Command {
	var flags postFlags
	cmd := &cobra.Command{
		Use:   "leave <place-id>",
		Short: "Leave a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.post(cmd, func(ctx context.Context) (activity.Object, error) {
				return a.client.Outbox.Leave(ctx, client.CheckinRequest{
					Place:      args[0],
					Content:    flags.content,
					Visibility: client.Visibility(flags.visibility),
				})
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func (a *app) travelCmd() *cobra.Command {
	var flags postFlags
	cmd := &cobra.Command{
		Use:   "travel <origin-id> <target-id>",
		Short: "Travel from one place to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.post(cmd, func(ctx context.Context) (activity.Object, error) {
				return a.client.Outbox.Travel(ctx, client.TravelRequest{
					Origin:     args[0],
					Target:     args[1],
					Content:    flags.content,
					Visibility: client.Visibility(flags.visibility),
				})
			})
		},
	}
	flags.add(cmd)
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local web front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Listen = listen
			}
			searcher := places.New(a.cfg.Places.URL, a.cfg.Places.CacheTTL.Duration, a.httpClient())
			defer searcher.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			svc := page.NewService(a.cfg.Listen, a.client, a.loginFlow(), searcher)
			return svc.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config")
	return cmd
}

func (a *app) proxyCmd() *cobra.Command {
	var listen, keyFile, keyID, path string
	var tokens []string
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run a signed-fetch proxy for self-hosted accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			pemBytes, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("reading key file %s: %w", keyFile, err)
			}
			key, err := proxy.LoadPrivateKey(pemBytes)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return fmt.Errorf("at least one --token is required")
			}
			p := proxy.New(keyID, key, proxy.StaticTokens(tokens), a.httpClient())
			server := &http.Server{
				Handler:      p.Router(path),
				Addr:         listen,
				WriteTimeout: time.Second * 15,
				ReadTimeout:  time.Second * 15,
				IdleTimeout:  time.Second * 60,
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				server.Shutdown(shutdown)
			}()
			telemetry.Log("proxy listening on %s%s", listen, path)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:8081", "listen address")
	cmd.Flags().StringVar(&path, "path", "/proxy", "proxy url path")
	cmd.Flags().StringVar(&keyFile, "key", "", "PEM private key file")
	cmd.Flags().StringVar(&keyID, "key-id", "", "public key id, usually <actor>#main-key")
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "accepted bearer token, repeatable")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("key-id")
	return cmd
}

