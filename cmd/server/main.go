package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"contacts-api/internal/auth"
	"contacts-api/internal/config"
	"contacts-api/internal/email"
	apphttp "contacts-api/internal/http"
	"contacts-api/internal/repository/sqlite"
	"contacts-api/internal/service"
	"contacts-api/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	hasher := auth.NewBcryptHasher()
	tokens := auth.NewTokenService(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.Auth.RefreshTTLHours)*time.Hour,
		time.Duration(cfg.Auth.VerifyTTLHours)*time.Hour,
		time.Duration(cfg.Auth.ResetTTLMinutes)*time.Minute,
	)

	sender := buildSender(cfg, logger)

	verification := service.NewVerificationService(userRepo, tokens, hasher, sender, logger)
	authService := service.NewAuthService(userRepo, hasher, tokens, verification, logger)

	limiters := apphttp.RateLimiters{
		Register: auth.NewRateLimiter(auth.RateLimiterConfig{
			Limit:  cfg.RateLimit.RegisterLimit,
			Window: time.Duration(cfg.RateLimit.RegisterWindowSeconds) * time.Second,
		}),
		Login: auth.NewRateLimiter(auth.RateLimiterConfig{
			Limit:  cfg.RateLimit.LoginLimit,
			Window: time.Duration(cfg.RateLimit.LoginWindowSeconds) * time.Second,
		}),
		Me: auth.NewRateLimiter(auth.RateLimiterConfig{
			Limit:  cfg.RateLimit.MeLimit,
			Window: time.Duration(cfg.RateLimit.MeWindowSeconds) * time.Second,
		}),
	}
	defer limiters.Register.Close()
	defer limiters.Login.Close()
	defer limiters.Me.Close()

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Warnf("avatar storage disabled: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(authService, verification, storageSvc, limiters, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildSender(cfg config.Config, logger *logrus.Logger) email.Sender {
	if cfg.Mail.Host == "" {
		logger.Warn("smtp not configured, account mail disabled")
		return email.NopSender{}
	}

	sender, err := email.NewSMTPSender(email.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
		BaseURL:  cfg.Mail.BaseURL,
	})
	if err != nil {
		logger.Fatalf("setup mail sender: %v", err)
	}
	logger.Infof("sending account mail via %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	return sender
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("storing avatars in s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix, cfg.Storage.Region, cfg.Storage.PublicURL), nil
}
