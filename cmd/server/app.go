package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/api"
	"gainfair/internal/auth"
	"gainfair/internal/captcha"
	"gainfair/internal/catalog"
	"gainfair/internal/config"
	"gainfair/internal/content"
	"gainfair/internal/db"
	"gainfair/internal/mailer"
	"gainfair/internal/notify"
	"gainfair/internal/payment"
	"gainfair/internal/registration"
	"gainfair/internal/review"
	"gainfair/internal/store"
	"gainfair/internal/uploads"
)

const sweepInterval = time.Minute

// app is the wired server. jobs run until their context is done; Close
// releases connections in reverse order of opening.
type app struct {
	handler http.Handler
	jobs    []func(ctx context.Context)
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sqdb, err := db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.closers = append(a.closers, func() { _ = sqdb.Close() })
	applied, err := db.Migrate(sqdb)
	if err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("schema updated")
	}

	st := store.New(sqdb)
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			return nil, fmt.Errorf("bootstrap admin hash: %w", err)
		}
		if err := st.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, hash); err != nil {
			return nil, fmt.Errorf("bootstrap admin create: %w", err)
		}
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	templates, err := content.LoadTemplates(cfg.ContentTemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("load content templates: %w", err)
	}

	var probes []api.Probe

	var repo content.Repository = st.Content()
	if cfg.ContentBackend == "mongo" {
		client, err := content.OpenMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		mrepo := content.NewMongoRepository(client.Database(cfg.MongoDatabase))
		if err := mrepo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		repo = mrepo
		probes = append(probes, api.Probe{Name: "mongo", Check: func(ctx context.Context) error { return client.Ping(ctx, nil) }})
	}

	transport := mailer.NewTransport(mailer.NewSMTPSender(cfg), mailer.NewArchiver(cfg), log)
	var queue notify.Queue
	switch cfg.MailQueue {
	case "amqp":
		aq, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueueName)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, aq.Close)
		queue = aq
		probes = append(probes, api.Probe{Name: "amqp", Check: func(context.Context) error { return aq.Ping() }})
		consumer := notify.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPQueueName, cfg.MailFrom, transport, log)
		a.jobs = append(a.jobs, func(ctx context.Context) {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("mail consumer stopped")
			}
		})
	case "log":
		queue = notify.LogQueue{Log: log}
	default:
		queue = notify.NewOutboxQueue(st)
		dispatcher := notify.NewDispatcher(st, transport, cfg.MailFrom, cfg.MailPollInterval, cfg.MailMaxAttempts, log)
		a.jobs = append(a.jobs, dispatcher.Run)
	}
	if cfg.MailQueue != "log" {
		probes = append(probes, api.Probe{Name: "smtp", Check: func(ctx context.Context) error { return mailer.ProbeSMTP(ctx, cfg) }})
		if cfg.IMAPArchiveEnabled {
			probes = append(probes, api.Probe{Name: "imap", Check: func(ctx context.Context) error { return mailer.ProbeIMAP(ctx, cfg) }})
		}
	}

	var gw payment.Gateway
	if cfg.PaymentsEnabled() {
		gw = payment.NewPayPalGateway(cfg.PayPalAPIBase, cfg.PayPalClientID, cfg.PayPalClientSecret)
	} else {
		log.Warn().Msg("PayPal credentials missing; paid products cannot be checked out")
	}
	widget := payment.NewWidget(cfg.PayPalClientID, cfg.PayPalSDKBase, gw, log)
	flows := registration.NewRegistry(cat, st, widget, cfg.CheckoutTTL(), log)
	a.jobs = append(a.jobs, func(ctx context.Context) { flows.Run(ctx, sweepInterval) })

	dir, err := auth.NewRoleDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("role directory: %w", err)
	}
	if sd, ok := dir.(*auth.SQLDirectory); ok {
		a.closers = append(a.closers, func() { _ = sd.Close() })
		probes = append(probes, api.Probe{Name: "role_directory", Check: sd.Ping})
	}

	authProvider := auth.NewProvider(cfg, st, dir, log)
	a.closers = append(a.closers, authProvider.Subscribe(func(s auth.SessionState) {
		if s.Present {
			log.Info().Str("user_id", s.UserID).Str("role", s.Role).Msg("signed in")
			return
		}
		log.Info().Msg("signed out")
	}))

	up, err := uploads.NewLocalStore(cfg.UploadDir, cfg.UploadMaxBytes, log)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	a.handler = api.NewRouter(api.Deps{
		Config:  cfg,
		Log:     log,
		Store:   st,
		Catalog: cat,
		Content: content.NewService(repo, templates, log),
		Flows:   flows,
		Widget:  widget,
		Auth:    authProvider,
		Review:  review.NewService(st, cat, queue, cfg.MailReplyTo, log),
		Uploads: up,
		Captcha: captcha.NewVerifier(cfg),
		Probes:  probes,
	})
	return a, nil
}
