package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"

	"github.com/kgrill/auth-core/internal/cache"
	"github.com/kgrill/auth-core/internal/config"
	"github.com/kgrill/auth-core/internal/database"
	"github.com/kgrill/auth-core/internal/handler"
	"github.com/kgrill/auth-core/internal/mail"
	"github.com/kgrill/auth-core/internal/middleware"
	"github.com/kgrill/auth-core/internal/queue"
	"github.com/kgrill/auth-core/internal/repository"
	"github.com/kgrill/auth-core/internal/router"
	"github.com/kgrill/auth-core/internal/service"
	"github.com/kgrill/auth-core/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()
	logger := log.New(os.Stderr, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatalf("db: %v", err)
	}
	cancel()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	revocations := cache.NewRevocationCache(rdb, cfg.RevocationPrefix)

	// Outbound mail: the API publishes, the consumer below delivers.
	var mailer queue.Mailer = mail.LogMailer{Log: logger}
	if cfg.Mail.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.Mail)
	}
	consumer := queue.NewConsumer(cfg.Mail.AMQPURL, cfg.Mail.Queue, mailer, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("mail-consumer: stopped: %v", err)
		}
	}()
	publisher := queue.NewPublisher(cfg.Mail.AMQPURL, cfg.Mail.Queue, logger)
	templates, err := mail.NewTemplates()
	if err != nil {
		log.Fatalf("mail templates: %v", err)
	}

	codes, err := utils.NewCodeGenerator(cfg.Activation.CodeLength, cfg.Activation.Alphabet)
	if err != nil {
		log.Fatalf("activation: %v", err)
	}
	var verifier service.IDTokenVerifier
	if cfg.GoogleClientID != "" {
		verifier = utils.NewGoogleVerifier(cfg.GoogleClientID)
	} else {
		// google-signin stays routed but answers 401
		logger.Printf("GOOGLE_CLIENT_ID not set: federated sign-in disabled")
	}

	accountRepo := repository.NewAccountRepo(db)
	codeRepo := repository.NewActivationCodeRepo(db)
	sessionRepo := repository.NewSessionRepo(db)
	hasher := utils.NewBcryptHasher(cfg.BcryptCost)
	signer := utils.NewTokenSigner(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	clock := service.SystemClock

	activation := service.NewActivationManager(cfg.Activation, codeRepo, accountRepo, codes, templates, publisher, clock, logger)
	registrar := service.NewRegistrar(accountRepo, hasher, activation, clock)
	authenticator := service.NewAuthenticator(accountRepo, hasher, verifier, clock, logger)
	issuer := service.NewSessionIssuer(sessionRepo, signer, revocations, clock, logger)
	refresher := service.NewSessionRefresher(sessionRepo, accountRepo, signer, revocations, clock, logger)
	logouts := service.NewLogoutHandler(sessionRepo, revocations, clock, logger)
	guard := service.NewSessionGuard(sessionRepo, revocations, clock, logger)
	admin := service.NewAccountAdmin(accountRepo, revocations, clock, logger)

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	jwtAuth := middleware.JWTAuth(signer, guard, clock)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(registrar, activation, authenticator, issuer, refresher, logouts), jwtAuth)
	router.RegisterAdmin(e, handler.NewAccountHandler(admin), jwtAuth)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func logLevel(s string) glog.Lvl {
	switch s {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	}
	return glog.INFO
}
