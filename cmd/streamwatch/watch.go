package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/apiclient"
	"github.com/anonto42/shelfstream/internal/feed"
	"github.com/anonto42/shelfstream/internal/fetchcache"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/socket"
)

var watchTab string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a feed and keep it live. Type a tab name to switch, \"refresh\" to refetch, \"quit\" to leave.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchTab, "tab", "t", string(feed.TabGlobal),
		"Initial tab: global, personal, shelves or last-actions.")
}

type viewer struct{ id string }

func (v viewer) ID() string          { return v.id }
func (v viewer) Authenticated() bool { return v.id != "" }

// viewerFromToken reads the user id out of a token without verifying it;
// the server does that.
func viewerFromToken(token string) (viewer, error) {
	if token == "" {
		return viewer{}, nil
	}
	claims := &models.JwtCustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return viewer{}, errors.Wrap(err, "unreadable token")
	}
	if claims.UserID == "" {
		return viewer{}, errors.New("token carries no user id")
	}
	return viewer{id: claims.UserID}, nil
}

// socketURL derives the gateway endpoint from the REST base URL
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid server URL %q", base)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.JoinPath("ws").String(), nil
}

// watcher prints the active feed whenever it changes
type watcher struct {
	ctrl    *feed.Controller
	adapter *socket.Adapter
	out     io.Writer

	mu      sync.Mutex
	printer func()
}

func (w *watcher) show(tab feed.Tab) {
	view, _ := w.ctrl.View(tab)
	w.mu.Lock()
	defer w.mu.Unlock()
	render(w.out, tab, view)
}

// bindPrinter subscribes after the controller has bound its reconciler, so
// the printer always sees the merged view.
func (w *watcher) bindPrinter() {
	w.mu.Lock()
	if w.printer != nil {
		w.printer()
	}
	w.mu.Unlock()

	var disposers []func()
	for _, event := range []string{
		models.EventNewActivity,
		models.EventLastAction,
		models.EventActivityUpdated,
		models.EventActivityDeleted,
		models.EventReactionUpdate,
		models.EventCounterUpdate,
	} {
		disposers = append(disposers, w.adapter.OnEvent(event, func(json.RawMessage) {
			w.show(w.ctrl.Active())
		}))
	}

	w.mu.Lock()
	w.printer = func() {
		for _, d := range disposers {
			d()
		}
	}
	w.mu.Unlock()
}

func (w *watcher) activate(ctx context.Context, tab feed.Tab) {
	_, err := w.ctrl.Activate(ctx, tab)
	w.bindPrinter()
	if err != nil {
		fmt.Fprintf(w.out, "%s: %v\n", tab, err)
		return
	}
	w.show(tab)
}

// session is the REST client and socket shared by every subcommand
type session struct {
	api     *apiclient.Client
	adapter *socket.Adapter
	viewer  viewer
}

func openSession() (*session, error) {
	tokens := apiclient.NewFileTokenStore(tokenFile)
	token, err := tokens.Token()
	if err != nil {
		return nil, err
	}
	v, err := viewerFromToken(token)
	if err != nil {
		return nil, err
	}
	api, err := apiclient.New(serverURL, tokens)
	if err != nil {
		return nil, err
	}
	wsURL, err := socketURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &session{
		api:     api,
		adapter: socket.New(socket.Config{URL: wsURL, Token: token}),
		viewer:  v,
	}, nil
}

func (s *session) run(ctx context.Context) {
	if err := s.adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		jww.ERROR.Printf("socket stopped: %+v", err)
	}
}

// readLines yields trimmed lines of in until it ends or ctx is done
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func watch(ctx context.Context, in io.Reader, out io.Writer) error {
	tab, ok := feed.ParseTab(watchTab)
	if !ok {
		return errors.Errorf("unknown tab %q", watchTab)
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	adapter := sess.adapter
	fetcher := fetchcache.NewFetcher(fetchcache.NewStore[[]models.Activity]())
	w := &watcher{
		ctrl:    feed.NewController(fetcher, sess.api, adapter, sess.viewer),
		adapter: adapter,
		out:     out,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sess.run(ctx)

	// events missed while disconnected are recovered by refetching
	connects := 0
	adapter.OnEvent(models.EventConnect, func(json.RawMessage) {
		connects++
		if connects == 1 {
			return
		}
		go func() {
			if _, err := w.ctrl.Refresh(ctx); err != nil {
				jww.WARN.Printf("refresh after reconnect: %v", err)
				return
			}
			w.show(w.ctrl.Active())
		}()
	})

	_, err = w.ctrl.Mount(ctx, tab)
	w.bindPrinter()
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", tab, err)
	} else {
		w.show(tab)
	}
	defer w.ctrl.Unmount()

	lines := readLines(ctx, in)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			switch line {
			case "":
			case "quit", "exit":
				return nil
			case "refresh":
				if _, err := w.ctrl.Refresh(ctx); err != nil {
					fmt.Fprintf(out, "refresh: %v\n", err)
					continue
				}
				w.show(w.ctrl.Active())
			default:
				next, ok := feed.ParseTab(line)
				if !ok {
					fmt.Fprintf(out, "unknown command %q\n", line)
					continue
				}
				w.activate(ctx, next)
			}
		}
	}
}
