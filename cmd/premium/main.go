// Package main запускает HTTP-сервер сервиса премиум-аккаунтов.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/premium-ledger/internal/cache"
	"github.com/mmeshcher/premium-ledger/internal/config"
	"github.com/mmeshcher/premium-ledger/internal/gateway"
	"github.com/mmeshcher/premium-ledger/internal/handler"
	"github.com/mmeshcher/premium-ledger/internal/identity"
	"github.com/mmeshcher/premium-ledger/internal/ledger"
	"github.com/mmeshcher/premium-ledger/internal/mail"
	"github.com/mmeshcher/premium-ledger/internal/middleware"
	"github.com/mmeshcher/premium-ledger/internal/payment"
	"github.com/mmeshcher/premium-ledger/internal/repository"
	"github.com/mmeshcher/premium-ledger/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.RedisAddress != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(connectCtx, cfg.RedisAddress)
		cancel()
		if err != nil {
			// без кеша суммы голосов читаются из БД
			sugar.Warnw("votes cache disabled", "error", err.Error())
		} else {
			defer client.Close()
			ledgerOpts = append(ledgerOpts, ledger.WithCache(cache.NewVotesCache(client, cfg.VotesCacheTTL)))
		}
	}

	l, err := ledger.New(repo, cfg.VoteCost, ledgerOpts...)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}

	paypal := gateway.NewPaypalClient(cfg.Paypal, cfg.GatewayTimeout)
	processor := payment.NewProcessor(payment.NewPostgresStore(repo), l, payment.Gateways{
		Card:   paypal,
		IPN:    paypal,
		Wallet: gateway.NewGoogleWalletClient(cfg.GoogleWallet, cfg.GatewayTimeout),
	}, cfg.GatewayTimeout, logger)

	sessions := session.NewStore(repo, cfg.SessionLifetime)

	var mailer identity.Mailer = mail.NewLogMailer(logger)
	if cfg.Mail.SMTPAddress != "" {
		smtpMailer, err := mail.NewSMTPMailer(cfg.Mail.SMTPAddress, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword, cfg.Mail.From)
		if err != nil {
			sugar.Fatalw("mail initialization error", "error", err.Error())
		}
		mailer = smtpMailer
	}
	resets := identity.NewPasswordReset(repo, mailer, cfg.Mail.ResetLinkBase, identity.WithResetTTL(cfg.Mail.ResetTokenTTL))

	h := handler.NewHandler(handler.Deps{
		Users:             repo,
		Ledger:            l,
		Payments:          processor,
		Resets:            resets,
		Sessions:          sessions,
		SessionMiddleware: middleware.NewSessionMiddleware(sessions, cfg.SessionLifetime, cfg.SessionCookieSecure, logger),
		AdminEmail:        cfg.AdminEmail,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Удаление истёкших сессий
	g.Go(func() error {
		sessions.RunGC(ctx, cfg.SessionGCInterval, logger)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting premium server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
