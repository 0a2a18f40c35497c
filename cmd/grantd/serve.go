package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/config"
	"github.com/dropDatabas3/grantd/internal/events"
	httpapi "github.com/dropDatabas3/grantd/internal/http"
	"github.com/dropDatabas3/grantd/internal/jwt"
	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/secretbox"
	tokens "github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

const serviceClientKeyTTL = 5 * time.Minute

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Named("serve")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// The listener never starts on a store that cannot answer.
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}

	ks, err := openKeystore(cfg)
	if err != nil {
		return err
	}
	issuer := jwt.NewIssuer(cfg.JWT.Issuer, ks, cfg.JWT.IDTokenTTL.Std())

	sclients, err := buildServiceClients(cfg)
	if err != nil {
		return err
	}

	verifier := oauth.NewHTTPAssertionVerifier(cfg.Assertion.VerifierURL, cfg.Assertion.Timeout.Std())
	svc := oauth.NewService(st, verifier, issuer, sclients, oauth.Options{
		CodeTTL:          cfg.Expiration.CodeTTL.Std(),
		UntrustedScopes:  scope.New(cfg.OAuth.UntrustedScopes...),
		LocalRedirects:   cfg.OAuth.LocalRedirects,
		GrandfatherEpoch: cfg.Expiration.GrandfatherEpoch,
		TokenEndpoint:    strings.TrimRight(cfg.JWT.Issuer, "/") + "/v1/token",
	})

	whitelist, err := httpapi.CompileWhitelist(cfg.OAuth.AdminWhitelist)
	if err != nil {
		return fmt.Errorf("admin whitelist: %w", err)
	}
	metricsHandler, err := httpapi.RegisterMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	api := httpapi.NewAPI(svc, st, ks, whitelist)
	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.NewRouter(api, metricsHandler))

	if cfg.Events.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Events.Redis.Addr,
			DB:   cfg.Events.Redis.DB,
		})
		defer rdb.Close()
		consumer := events.NewConsumer(rdb, cfg.Events.Redis.Channel, st)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		if err := httpapi.Shutdown(srv, 10*time.Second); err != nil {
			return err
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	scfg := store.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxAccessTTL: cfg.Expiration.AccessMaxTTL.Std(),
	}
	scfg.Postgres.MaxConns = cfg.Storage.Postgres.MaxConns
	scfg.Postgres.MinConns = cfg.Storage.Postgres.MinConns
	scfg.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime.Std()
	st, err := store.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func openKeystore(cfg *config.Config) (*jwt.Keystore, error) {
	box, err := secretbox.New(cfg.Security.SecretBoxMasterKey)
	if err != nil {
		return nil, fmt.Errorf("secretbox master key: %w", err)
	}
	ks, err := jwt.NewKeystore(cfg.JWT.KeyDir, box, cfg.JWT.KeyRotationGrace.Std())
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return ks, nil
}

func buildServiceClients(cfg *config.Config) (*oauth.ServiceClients, error) {
	if len(cfg.ServiceClients) == 0 {
		return nil, nil
	}
	scs := make([]*oauth.ServiceClient, 0, len(cfg.ServiceClients))
	for _, sc := range cfg.ServiceClients {
		id, err := hex.DecodeString(sc.ID)
		if err != nil || len(id) != tokens.ClientIDLen {
			return nil, fmt.Errorf("service client %q: bad id %q", sc.Name, sc.ID)
		}
		scs = append(scs, &oauth.ServiceClient{
			Name:    sc.Name,
			ID:      id,
			Scope:   sc.Scope,
			JWKSURL: sc.JWKSURL,
		})
	}
	return oauth.NewServiceClients(scs, serviceClientKeyTTL), nil
}
