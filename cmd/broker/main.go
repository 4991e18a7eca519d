// Command broker is the credential broker's entry point: wires the caching
// delegate, JWT decoder, gateway client, Mongo-backed metadata stores, the
// identity/issuance/revocation services, the SQS/SNS event transport, and
// the HTTP surface, then serves until signalled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/hee-tis/credential-broker/internal/api"
	"github.com/hee-tis/credential-broker/internal/cache"
	"github.com/hee-tis/credential-broker/internal/config"
	"github.com/hee-tis/credential-broker/internal/events"
	"github.com/hee-tis/credential-broker/internal/gateway"
	"github.com/hee-tis/credential-broker/internal/identity"
	"github.com/hee-tis/credential-broker/internal/issuance"
	"github.com/hee-tis/credential-broker/internal/jwtdecoder"
	"github.com/hee-tis/credential-broker/internal/logger"
	"github.com/hee-tis/credential-broker/internal/revocation"
	"github.com/hee-tis/credential-broker/internal/store"
)

func main() {
	cfg := config.MustLoad()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.NewStore(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisCache.Close()

	mongoClient, err := store.New(ctx, store.Config{
		Host:           cfg.MongoHost,
		Port:           cfg.MongoPort,
		User:           cfg.MongoUser,
		Password:       cfg.MongoPassword,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: time.Duration(cfg.MongoConnectTimeout) * time.Second,
		RetryAttempts:  cfg.MongoRetryAttempts,
		RetryInterval:  time.Duration(cfg.MongoRetryIntervalMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDatabase)

	if err := store.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure mongo indexes")
	}

	metadataStore := store.NewCredentialMetadataStore(mongoDB)
	fingerprintStore := store.NewRecordFingerprintStore(mongoDB)

	gatewayClient := gateway.New(gateway.Config{
		Host:         cfg.GatewayHost,
		ClientID:     cfg.GatewayClientID,
		ClientSecret: cfg.GatewayClientSecret,
		Timeout:      time.Duration(cfg.GatewayRequestTimeoutSeconds) * time.Second,
	})

	decoder := jwtdecoder.New(ctx, gatewayClient.JWKSURL())

	identitySvc := identity.New(redisCache, decoder, gatewayClient,
		time.Duration(cfg.UnverifiedSessionTTLSeconds)*time.Second,
		time.Duration(cfg.VerifiedSessionTTLSeconds)*time.Second,
		cfg.GatewayVerifyRedirectURI)

	issuanceSvc := issuance.New(redisCache, decoder, gatewayClient,
		metadataStore, fingerprintStore,
		time.Duration(cfg.CodeVerifierTTLSeconds)*time.Second,
		[]byte(cfg.GatewayTokenSigningKey), cfg.GatewayIssuingRedirectURI)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load aws config")
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	snsClient := sns.NewFromConfig(awsCfg)

	publisher := events.NewPublisher(snsClient, cfg.RevocationTopicARN)
	revocationSvc := revocation.New(metadataStore, fingerprintStore, gatewayClient, publisher)

	listener := events.NewListener(sqsClient, revocationSvc, events.ListenerConfig{
		DeletePlacementQueueURL:           cfg.DeletePlacementQueueURL,
		DeleteProgrammeMembershipQueueURL: cfg.DeleteProgrammeMembershipQueueURL,
		UpdatePlacementQueueURL:           cfg.UpdatePlacementQueueURL,
		UpdateProgrammeMembershipQueueURL: cfg.UpdateProgrammeMembershipQueueURL,
	})

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listener.Start(ctx)
	}()

	handler := api.NewHandler(identitySvc, issuanceSvc, map[string]api.HealthChecker{
		"redis": redisCache.Ping,
		"mongo": store.Healthcheck(mongoClient),
	})
	router := api.NewRouter(handler, []byte(cfg.SignatureSecretKey), fingerprintStore, decoder, redisCache)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("broker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			log.Info().Msg("SIGHUP received, flushing JWKS cache")
			decoder.Flush(context.Background(), gatewayClient.JWKSURL())
			_ = redisCache.FlushCache(context.Background(), cache.CacheJWKS)
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	signal.Stop(hup)
	close(hup)
	<-listenerDone

	log.Info().Msg("broker stopped")
}
