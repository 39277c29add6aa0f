package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/config"
	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/extract"
	"github.com/pkordes/tripcrew/backend/internal/handler"
	"github.com/pkordes/tripcrew/backend/internal/middleware"
	"github.com/pkordes/tripcrew/backend/internal/reply"
	"github.com/pkordes/tripcrew/backend/internal/repo"
	"github.com/pkordes/tripcrew/backend/internal/resolve"
	"github.com/pkordes/tripcrew/backend/internal/service"
	"github.com/pkordes/tripcrew/backend/spec"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	// --- Repositories -----------------------------------------------------
	trips := repo.NewTripRepo(pool)
	members := repo.NewMemberRepo(pool)
	sessions := repo.NewSessionRepo(pool)
	inbound := repo.NewInboundRepo(pool)
	records := repo.NewRecordRepo(pool)

	// --- Pipeline ---------------------------------------------------------
	resolver := resolve.New(trips, sessions, resolve.Options{
		InboundDomain: cfg.Email.InboundDomain,
		SessionTTL:    cfg.SessionTTL,
	}, logger)
	fetcher := content.NewHTTPFetcher(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.MediaTimeout, cfg.MediaMaxBytes)
	assembler := content.NewAssembler(fetcher, logger)
	extractor := extract.NewExtractor(extract.NewAnthropic(extract.AnthropicConfig{
		APIKey:    cfg.Extraction.APIKey,
		BaseURL:   cfg.Extraction.BaseURL,
		Model:     cfg.Extraction.Model,
		MaxTokens: cfg.Extraction.MaxTokens,
		Timeout:   cfg.Extraction.Timeout,
	}), logger)
	engine := apply.NewEngine(members, records, inbound, logger)
	dispatcher := newDispatcher(cfg, logger)

	inboundSvc := service.NewInboundService(service.InboundDeps{
		Inbound:      inbound,
		Members:      members,
		Resolver:     resolver,
		Assembler:    assembler,
		Extractor:    extractor,
		Applier:      engine,
		Replies:      dispatcher,
		ReplyTimeout: cfg.ReplyTimeout,
		Logger:       logger,
	})
	reviewSvc := service.NewReviewService(inbound, members, engine, logger)
	memberSvc := service.NewMemberService(members)

	// --- Session sweeper --------------------------------------------------
	sweeper, err := resolve.NewSweeper(sessions, cfg.SessionTTL, nil, logger).Schedule(cfg.SessionSweepSchedule, time.Minute)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() { <-sweeper.Stop().Done() }()

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID, RealIP, Logger, Recoverer,
	// body cap, CORS. Recoverer catches panics and returns HTTP 500.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))

	srv := handler.NewServer(inboundSvc, reviewSvc, memberSvc, handler.WebhookConfig{
		PublicBaseURL:   cfg.PublicBaseURL,
		TwilioAuthToken: cfg.Twilio.AuthToken,
		EmailSecret:     cfg.Email.WebhookSecret,
	}, spec.OpenAPI, logger)
	r.Mount("/", srv.Routes())

	// --- HTTP Server ------------------------------------------------------
	// WriteTimeout covers a full pipeline run: media download, extraction
	// and reply all happen inside the webhook request.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.MediaTimeout + cfg.Extraction.Timeout + cfg.ReplyTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown: give in-flight requests up to 15 seconds.
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newDispatcher wires the outbound senders that have credentials.
func newDispatcher(cfg config.Config, logger *slog.Logger) *reply.Dispatcher {
	var sms, whatsapp, email reply.Sender
	twilioCfg := func(from string) reply.TwilioConfig {
		return reply.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       from,
			Edge:       cfg.Twilio.Edge,
			Region:     cfg.Twilio.Region,
			Timeout:    cfg.ReplyTimeout,
		}
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.SMSFrom != "" {
		sms = reply.NewTwilioSender(twilioCfg(cfg.Twilio.SMSFrom))
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.WhatsAppFrom != "" {
		whatsapp = reply.NewWhatsAppSender(twilioCfg(cfg.Twilio.WhatsAppFrom))
	}
	switch cfg.Email.Provider {
	case "mailgun":
		email = reply.NewMailgunSender(cfg.Email.MailgunDomain, cfg.Email.MailgunAPIKey, cfg.Email.MailgunRegion, cfg.Email.From)
	case "smtp":
		email = reply.NewSMTPSender(reply.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			Security: cfg.Email.SMTPSecurity,
			From:     cfg.Email.From,
		})
	}
	for name, s := range map[string]reply.Sender{"sms": sms, "whatsapp": whatsapp, "email": email} {
		if s == nil {
			logger.Warn("no reply sender configured; replies on this channel will be skipped", "channel", name)
		}
	}
	return reply.NewDispatcher(sms, whatsapp, email, logger)
}
