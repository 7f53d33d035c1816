package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/neoclaw-ai/geostream/internal/channels"
	"github.com/neoclaw-ai/geostream/internal/commands"
	"github.com/neoclaw-ai/geostream/internal/config"
	"github.com/neoclaw-ai/geostream/internal/credentials"
	"github.com/neoclaw-ai/geostream/internal/geo"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/runtime"
	"github.com/neoclaw-ai/geostream/internal/scheduler"
	"github.com/neoclaw-ai/geostream/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// app holds every long-lived component of one geostream process.
type app struct {
	cfg      *config.Config
	ctrl     *session.Controller
	handler  *commands.Handler
	hub      *channels.WebSocketHub
	telegram *channels.TelegramListener
	schedule *scheduler.Service
	server   *http.Server
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	boxes, err := cfg.Filters.Boxes()
	if err != nil {
		return nil, err
	}
	filters := geo.NewRegistry()
	for _, box := range boxes {
		if err := filters.Add(box); err != nil {
			return nil, err
		}
	}
	creds := credentials.NewStore(credentials.Credentials{
		ConsumerKey:    cfg.Credentials.ConsumerKey,
		ConsumerSecret: cfg.Credentials.ConsumerSecret,
		AccessToken:    cfg.Credentials.AccessToken,
		AccessSecret:   cfg.Credentials.AccessSecret,
	})

	a := &app{cfg: cfg}
	var outputs runtime.Fanout
	if cfg.Outputs.Console.Enabled {
		outputs = append(outputs, channels.NewConsoleOutputs(out, cfg.Outputs.Console.Raw))
	}
	if cfg.Outputs.WebSocket.Enabled {
		a.hub = channels.NewWebSocketHub()
		outputs = append(outputs, a.hub)
	}
	if tg := cfg.TelegramChannel(); tg.Enabled {
		a.telegram = channels.NewTelegram(tg.Token, tg.AllowedUsers, channels.TelegramFeed{
			ChatID:    tg.FeedChatID,
			PerMinute: tg.FeedRate,
		})
		outputs = append(outputs, a.telegram)
	}

	a.ctrl, err = session.NewController(session.Config{
		Credentials: creds,
		Filters:     filters,
		Outputs:     outputs,
		Stream: session.StreamSettings{
			Name:           cfg.Stream.ClientName,
			Hosts:          []string{cfg.Stream.Host},
			Path:           cfg.Stream.Path,
			Params:         streamParams(cfg.Stream.Params),
			BufferCapacity: cfg.Stream.BufferCapacity,
			StallTimeout:   cfg.Stream.StallTimeout,
			MaxReconnects:  cfg.Stream.MaxReconnects,
		},
	})
	if err != nil {
		a.closeOutputs()
		return nil, err
	}
	a.handler = commands.New(a.ctrl, filters, creds)
	a.schedule = newSchedulerService(cfg, a.ctrl)

	if cfg.HTTP.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, "%s\n", a.ctrl.State())
		})
		if a.hub != nil {
			mux.Handle(cfg.Outputs.WebSocket.Path, a.hub)
		}
		a.server = &http.Server{Addr: cfg.HTTP.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return a, nil
}

func streamParams(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	v := url.Values{}
	for key, value := range params {
		v.Set(key, value)
	}
	return v
}

// run starts the background surfaces, optionally autostarts the stream, and
// blocks on the foreground listener or ctx. It always shuts down before returning.
func (a *app) run(ctx context.Context, foreground runtime.Listener) (err error) {
	defer func() {
		if shutdownErr := a.shutdown(); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
	}()

	if a.server != nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", a.server.Addr, err)
		}
		logging.Logger().Info("http listening", "addr", ln.Addr().String())
		go func() {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Logger().Error("http server failed", "err", err)
			}
		}()
	}

	if a.telegram != nil {
		go func() {
			if err := a.telegram.Listen(ctx, a.handler); err != nil {
				logging.Logger().Error("telegram listener failed", "err", err)
			}
		}()
	}

	if err := a.schedule.Start(ctx); err != nil {
		return err
	}

	if a.cfg.Stream.Autostart {
		if err := a.ctrl.Start(ctx); err != nil {
			// The controller stays Idle; a control command can retry.
			logging.Logger().Warn("autostart failed", "err", err)
		}
	}

	if foreground != nil {
		return foreground.Listen(ctx, a.handler)
	}
	<-ctx.Done()
	return nil
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.schedule.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.ctrl.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}
	a.closeOutputs()
	logging.Logger().Info("geostream stopped")
	return errors.Join(errs...)
}

func (a *app) closeOutputs() {
	if a.hub != nil {
		a.hub.Close()
	}
}
