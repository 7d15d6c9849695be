// Command inboxwatch follows a user's inbox against a running messaging
// service and prints the conversation list and notification badge whenever
// they change.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"messaging-service/internal/apperr"
	"messaging-service/internal/auth"
	"messaging-service/internal/inbox"
	"messaging-service/internal/models"
)

func main() {
	flags := pflag.NewFlagSet("inboxwatch", pflag.ExitOnError)
	flags.String("server", "http://localhost:8083", "messaging service base URL")
	flags.String("user", "", "user id to watch")
	flags.String("token", "", "bearer token for the user")
	flags.String("secret", "", "JWT secret used to mint a token when --token is empty (development only)")
	flags.String("issuer", "messaging-service", "issuer the server expects on minted tokens")
	flags.Duration("poll", 10*time.Second, "conversation poll interval")
	flags.Bool("verbose", false, "log background activity")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("INBOXWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	level := zerolog.WarnLevel
	if v.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	if err := run(v, logger, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("inboxwatch stopped")
		os.Exit(1)
	}
}

func run(v *viper.Viper, logger zerolog.Logger, out io.Writer) error {
	userID := v.GetString("user")
	if userID == "" {
		return apperr.Validation("--user is required")
	}
	token := v.GetString("token")
	if token == "" && v.GetString("secret") != "" {
		minted, err := auth.NewJWTValidator(v.GetString("secret"), v.GetString("issuer")).Issue(userID, time.Hour)
		if err != nil {
			return err
		}
		token = minted
	}
	if token == "" {
		return apperr.Validation("--token or --secret is required")
	}

	session := inbox.Session{UserID: userID, Token: token}
	server := v.GetString("server")
	realtime, err := inbox.NewRealtime(server, session, logger)
	if err != nil {
		return err
	}

	store := inbox.NewStore(session)
	var (
		mu   sync.Mutex
		last string
	)
	ctrl := inbox.NewController(inbox.NewClient(server, session, nil), store, realtime, inbox.Options{
		ConversationPoll: v.GetDuration("poll"),
		OnChange: func() {
			mu.Lock()
			defer mu.Unlock()
			if view := render(store); view != last {
				last = view
				fmt.Fprint(out, view)
			}
		},
		OnStatus: func(ev models.ApplicationStatusEvent) {
			fmt.Fprintf(out, "application %s for %q: %s\n", ev.WorkerID, ev.JobTitle, ev.Status)
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Mount(ctx); err != nil {
		return err
	}
	return ctrl.Run(ctx)
}

func render(store *inbox.Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n== notifications: %d unread ==\n", store.Badge())
	for _, c := range store.Conversations() {
		name := c.OtherUser.Name
		if name == "" {
			name = c.OtherUser.ID
		}
		marker := " "
		if c.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %-24s %-20s (%d) %s\n", marker, truncate(c.JobTitle, 24), truncate(name, 20), c.UnreadCount, truncate(c.LastMessage, 40))
	}
	for _, n := range store.Notifications() {
		if !n.Read {
			fmt.Fprintf(&b, "  ! %s\n", n.Summary())
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
