package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"errwatch/internal/bus"
	"errwatch/internal/config"
	"errwatch/internal/digest"
	"errwatch/internal/mailer"
	"errwatch/internal/report"
	"errwatch/internal/request"
	"errwatch/internal/storage"
	kit "errwatch/internal/transport"
	"errwatch/internal/transport/telegram"
	logx "errwatch/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	defer logSvc.Close()

	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error { return c.Validate() })

	host := strings.TrimSpace(cfg.Report.Host)
	if host == "" {
		host, _ = os.Hostname()
	}

	// Chat transport + bus client.
	var sender kit.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		timeout, _ := config.ParseDurationField("telegram.client_timeout", cfg.Telegram.ClientTimeout)
		adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, ClientTimeout: timeout}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		defer adapter.Close()
		sender = adapter
	}

	var busClient *bus.Client
	if sender != nil {
		busClient = bus.New(busConfig(cfg), sender, log.With(logx.String("comp", "bus")))
	}

	var adminMailer *mailer.Mailer
	if cfg.Mail.Enabled {
		mailCfg, err := mailerConfig(cfg)
		if err != nil {
			return err
		}
		adminMailer = mailer.New(mailCfg, log.With(logx.String("comp", "mailer")))
	}

	// Report history is optional; a broken store must not stop reporting.
	var store storage.Store
	if cfg.Storage != nil {
		busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busyTimeout,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			log.Warn("report history disabled", logx.Err(err))
			store = nil
		}
	}
	if store != nil {
		defer store.Close()
	}

	// Dispatcher + the two emit handlers.
	disp := report.NewDispatcher(host, log.With(logx.String("comp", "report")))
	filter := request.NewFilter()

	if busClient != nil && boolOr(cfg.Report.BusEnabled, true) {
		disp.Register("bus", &report.BusHandler{
			Bus:     busClient,
			Filter:  filter,
			Log:     log.With(logx.String("comp", "report.bus")),
			Sender:  cfg.Bus.SenderAddress,
			Channel: cfg.Report.Channel,
		})
	}
	if adminMailer != nil && adminMailer.Enabled() && boolOr(cfg.Report.MailEnabled, true) {
		disp.Register("mail", &report.MailHandler{
			Mailer:      adminMailer,
			Filter:      filter,
			Log:         log.With(logx.String("comp", "report.mail")),
			IncludeHTML: cfg.Mail.IncludeHTML,
		})
	}

	if store != nil {
		historyLog := log.With(logx.String("comp", "storage"))
		disp.SetObserver(func(ctx context.Context, o report.Outcome) {
			e := storage.ReportEntry{At: o.At, Handler: o.Handler, Subject: o.Subject, Outcome: storage.OutcomeSent}
			if o.Err != nil {
				e.Outcome = storage.OutcomeFailed
				e.Error = o.Err.Error()
			}
			if err := store.AppendReport(ctx, e); err != nil {
				historyLog.Warn("report history append failed", logx.Err(err))
			}
		})
	}

	// Route error-level log records into the dispatcher. Records arriving
	// this way carry no request; the handlers fall back accordingly.
	logSvc.SetReportSink(func(level logx.Level, line []byte) {
		disp.Report(context.Background(), report.FromLogLine(level, line))
	})

	// Scheduled digest.
	if cfg.Digest != nil && cfg.Digest.Enabled && store != nil && busClient != nil {
		dg := digest.New(digest.Config{
			Enabled:  true,
			Schedule: cfg.Digest.Schedule,
			Channel:  digestChannel(cfg),
			Sender:   cfg.Bus.SenderAddress,
		}, store, busClient, log.With(logx.String("comp", "digest")))
		if err := dg.Start(); err != nil {
			return err
		}
		defer dg.Stop()
	}

	// Hot reload: logging and bus settings apply in place.
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)
	go func() {
		for c := range sub {
			logSvc.Apply(logxConfig(c))
			if busClient != nil {
				busClient.Apply(busConfig(c))
			}
		}
	}()
	go func() { _ = mgr.Watch(ctx) }()

	// HTTP server wrapped with the reporting middleware.
	var srv *http.Server
	if cfg.HTTP.Enabled {
		addr := cfg.HTTP.Addr
		if addr == "" {
			addr = ":8080"
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
		srv = &http.Server{
			Addr:              addr,
			Handler:           request.Middleware(disp, nil, log.With(logx.String("comp", "http")))(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", logx.Err(err))
			}
		}()
		log.Info("http server listening", logx.String("addr", addr))
	}

	// systemd integration: readiness plus optional watchdog.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	log.Info("errwatchd started",
		logx.String("host", host),
		logx.Bool("bus", busClient != nil),
		logx.Bool("mail", adminMailer != nil && adminMailer.Enabled()),
		logx.Bool("history", store != nil),
	)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	return nil
}

func logxConfig(c *config.Config) logx.Config {
	lc := logx.Config{Level: c.Logging.Level, Console: c.Logging.Console}
	lc.File.Enabled = c.Logging.File.Enabled
	lc.File.Path = c.Logging.File.Path
	return lc
}

func busConfig(c *config.Config) bus.Config {
	out := bus.Config{
		SenderAddress: c.Bus.SenderAddress,
		RatePerSec:    c.Bus.RatePerSec,
		Channels:      map[string]kit.ChatTarget{},
		Users:         map[string]kit.ChatTarget{},
	}
	for name, t := range c.Bus.Channels {
		out.Channels[name] = kit.ChatTarget{ChatID: t.ChatID, ThreadID: t.ThreadID}
	}
	for name, t := range c.Bus.Users {
		out.Users[name] = kit.ChatTarget{ChatID: t.ChatID, ThreadID: t.ThreadID}
	}
	return out
}

func mailerConfig(c *config.Config) (mailer.Config, error) {
	timeout, err := config.ParseDurationOrDefault("mail.timeout", c.Mail.Timeout, 10*time.Second)
	if err != nil {
		return mailer.Config{}, err
	}
	prefix := c.Mail.SubjectPrefix
	if prefix == "" {
		prefix = "[errwatch] "
	}
	return mailer.Config{
		Host:          c.Mail.Host,
		Port:          c.Mail.Port,
		Username:      c.Mail.Username,
		Password:      c.Mail.Password,
		From:          c.Mail.From,
		Admins:        c.Mail.Admins,
		SubjectPrefix: prefix,
		FailSilently:  true,
		Timeout:       timeout,
	}, nil
}

func digestChannel(c *config.Config) string {
	if c.Digest != nil && c.Digest.Channel != "" {
		return c.Digest.Channel
	}
	if c.Report.Channel != "" {
		return c.Report.Channel
	}
	return report.DefaultChannel
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
