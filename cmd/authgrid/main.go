package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/authgrid/authgrid/internal/common/config"
	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/jwt"
	"github.com/authgrid/authgrid/internal/server"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
	"github.com/authgrid/authgrid/pkg/helper"
	"github.com/authgrid/authgrid/pkg/logger"
	"github.com/authgrid/authgrid/pkg/metrics"
	"github.com/authgrid/authgrid/pkg/utils"
	"github.com/authgrid/authgrid/pkg/version"
)

var (
	configPath string
	pidFile    string
	seedDev    bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of authgrid",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("authgrid version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "authgrid",
		Short: "OAuth2 authorization server",
		Long:  `authgrid issues, refreshes, introspects and revokes OAuth2 tokens`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "authgrid.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid", "", "path to PID file (empty disables it)")
	rootCmd.PersistentFlags().BoolVar(&seedDev, "seed-dev", false, "seed a development client and user at startup")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting authgrid",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	if pidFile != "" {
		pm := utils.NewPIDManager(helper.GetPIDPath(pidFile))
		if err := pm.WritePID(); err != nil {
			zapLogger.Fatal("failed to write PID file", zap.Error(err))
		}
		defer func() {
			_ = pm.RemovePID()
		}()
	}

	store, err := storage.NewStore(zapLogger, &cfg.Storage)
	if err != nil {
		zapLogger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		_ = store.Close()
	}()

	publisher, err := events.NewPublisher(zapLogger, &cfg.Events)
	if err != nil {
		zapLogger.Fatal("failed to initialize event publisher", zap.Error(err))
	}
	defer func() {
		_ = publisher.Close()
	}()

	clk := clock.New()
	signer, err := jwt.NewService(jwt.Config{
		SecretKey: cfg.JWT.SecretKey,
		Issuer:    cfg.JWT.Issuer,
	}, clk)
	if err != nil {
		zapLogger.Fatal("failed to initialize token signer", zap.Error(err))
	}
	clients := engine.NewClientAuthority(zapLogger, store, publisher, clk)
	tokens := engine.NewTokenEngine(zapLogger, store, signer, publisher, clk, engine.TokenOptions{
		AccessTokenTTL:       cfg.OAuth.AccessTokenTTL,
		RefreshTokenTTL:      cfg.OAuth.RefreshTokenTTL,
		RefreshTokenRotation: cfg.OAuth.RefreshTokenRotation,
		AllowArbitraryScopes: cfg.OAuth.AllowArbitraryScopes,
	})
	authz := engine.NewAuthorizationEngine(zapLogger, store, tokens, publisher, clk, engine.AuthorizationOptions{
		CodeTTL:              cfg.OAuth.AuthorizationCodeTTL,
		AllowArbitraryScopes: cfg.OAuth.AllowArbitraryScopes,
	})

	if seedDev {
		if err := seedDevFixtures(zapLogger, clients, store); err != nil {
			zapLogger.Fatal("failed to seed development fixtures", zap.Error(err))
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	server.NewServer(zapLogger, cfg, clients, authz, tokens, m).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		zapLogger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("failed to shutdown server", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
