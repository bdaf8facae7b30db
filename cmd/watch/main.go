package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/client"
	"reliefdesk/internal/watch"
)

func main() {
	server := flag.String("server", envOr("RELIEFDESK_URL", "http://localhost:8080"), "reliefdesk base URL")
	token := flag.String("token", os.Getenv("RELIEFDESK_TOKEN"), "access token; read from the keyring when empty")
	save := flag.Bool("save-token", false, "store -token in the keyring for -server and exit")
	forget := flag.Bool("forget-token", false, "remove the stored token for -server and exit")
	flag.Parse()

	if *save || *forget || *token == "" {
		store, err := watch.OpenTokenStore()
		if err != nil {
			fatal(err.Error())
		}
		switch {
		case *forget:
			if err := store.Forget(*server); err != nil {
				fatal(err.Error())
			}
			fmt.Println("token removed")
			return
		case *save:
			if *token == "" {
				fatal("-save-token needs -token")
			}
			if err := store.Save(*server, *token); err != nil {
				fatal(err.Error())
			}
			fmt.Println("token saved")
			return
		}
		t, err := store.Load(*server)
		if err != nil {
			fatal("no token: pass -token, set RELIEFDESK_TOKEN or run with -save-token")
		}
		*token = t
	}

	// The TUI owns the terminal; keep client logs out of it.
	log := logrus.New()
	log.SetOutput(io.Discard)

	base := strings.TrimRight(*server, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws/notifications"

	api := client.NewAPI(base, *token, client.DefaultTimeout)
	ch := client.NewChannel(wsURL, *token, client.DefaultBackoff(), log)
	syncer := client.NewSynchronizer(api, ch, client.DefaultSyncConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := syncer.Start(ctx); err != nil {
		fatal("initial sync failed: " + err.Error())
	}
	defer syncer.Close()

	if _, err := tea.NewProgram(watch.New(syncer), tea.WithAltScreen()).Run(); err != nil {
		fatal(err.Error())
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
