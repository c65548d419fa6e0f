package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	kafkaadp "github.com/bookingcontrol/booker-slot-svc/internal/adapter/kafka"
	postgresadp "github.com/bookingcontrol/booker-slot-svc/internal/adapter/postgres"
	redisadp "github.com/bookingcontrol/booker-slot-svc/internal/adapter/redis"
	"github.com/bookingcontrol/booker-slot-svc/internal/config"
	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	kafkainfra "github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/kafka"
	postgresinfra "github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/postgres"
	redisinfra "github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/redis"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/tracing"
	"github.com/bookingcontrol/booker-slot-svc/internal/placeinfo"
	"github.com/bookingcontrol/booker-slot-svc/internal/usecase/reservation"
	"github.com/bookingcontrol/booker-slot-svc/internal/usecase/schedule"
	outboxworker "github.com/bookingcontrol/booker-slot-svc/internal/worker/outbox"
	"github.com/bookingcontrol/booker-slot-svc/internal/worker/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Tracing
	shutdownTracer, err := tracing.InitTracer("slot-svc", cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer shutdownTracer()

	// PostgreSQL
	pg, err := postgresinfra.New(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB, cfg.PostgresUser, cfg.PostgresPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	// Redis
	redisClient := redisinfra.NewClient(cfg.RedisAddr, cfg.RedisPassword)

	// Kafka producer with retry logic
	kafkaBrokers := strings.Split(cfg.KafkaBrokers, ",")
	sweepTimeout := time.Duration(cfg.SweepTimeoutMS) * time.Millisecond
	var infraProducer *kafkainfra.Producer
	maxRetries := 20
	retryDelay := 3 * time.Second
	log.Info().Strs("brokers", kafkaBrokers).Msg("Attempting to connect to Kafka...")
	for i := 0; i < maxRetries; i++ {
		infraProducer, err = kafkainfra.NewProducer(kafkaBrokers, sweepTimeout)
		if err == nil {
			log.Info().Msg("Kafka producer connected successfully")
			break
		}
		if i < maxRetries-1 {
			log.Warn().Err(err).Int("attempt", i+1).Int("max_retries", maxRetries).Dur("retry_delay", retryDelay).Msg("Failed to create Kafka producer, retrying...")
			time.Sleep(retryDelay)
		} else {
			log.Fatal().Err(err).Int("total_attempts", maxRetries).Msg("Failed to create Kafka producer after all retries")
		}
	}
	defer infraProducer.Close()

	consumerGroup, err := kafkainfra.NewConsumerGroup(kafkaBrokers, cfg.ConsumerGroupID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	// Adapters
	slotRepo := postgresadp.NewSlotRepository(pg)
	outboxRepo := postgresadp.NewOutboxRepository(pg)
	policyRepo := postgresadp.NewPolicyRepository(pg)
	taskLock := redisadp.NewTaskLock(redisClient, time.Duration(cfg.LockMinIntervalSec)*time.Second)
	producer := kafkaadp.NewProducer(infraProducer)
	unitResolver := placeinfo.NewResolver(nil, dom.SlotUnit(cfg.FallbackSlotUnit))

	// Outbox workers
	dispatcher := outboxworker.NewDispatcher(
		outboxRepo,
		producer,
		cfg.DispatcherWorkers,
		cfg.DispatcherQueueSize,
		time.Duration(cfg.DispatchTimeoutMS)*time.Millisecond,
	)
	sweeper := outboxworker.NewSweeper(
		outboxRepo,
		producer,
		taskLock,
		time.Duration(cfg.SweepIntervalSec)*time.Second,
		time.Duration(cfg.MarkFailedIntervalSec)*time.Second,
		time.Duration(cfg.CleanupIntervalHours)*time.Hour,
		sweepTimeout,
		cfg.SweepBatchSize,
		cfg.OutboxMaxRetries,
		time.Duration(cfg.PublishedRetentionDays)*24*time.Hour,
	)

	// Use cases
	reservationService := reservation.NewService(pg, slotRepo, outboxRepo, dispatcher)
	scheduleService := schedule.NewService(pg, slotRepo, policyRepo, unitResolver, cfg.HorizonDays, cfg.RetentionDays)

	// Rolling window & recovery
	sched := scheduler.New(taskLock,
		scheduler.Task{
			Name:     "slot-rolling-window",
			Interval: time.Duration(cfg.WindowIntervalHours) * time.Hour,
			MaxHold:  time.Duration(cfg.LockMaxHoldMinutes) * time.Minute,
			Run:      scheduleService.MaintainWindow,
		},
		scheduler.Task{
			Name:     "slot-restore-pending",
			Interval: time.Duration(cfg.RecoveryIntervalMinutes) * time.Minute,
			MaxHold:  time.Duration(cfg.LockMaxHoldMinutes) * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := reservationService.RestoreExpiredPending(ctx, time.Duration(cfg.PendingTTLMinutes)*time.Minute)
				return err
			},
		},
	)

	// Inbound listener
	listener := kafkaadp.NewListener(consumerGroup, scheduleService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dispatcher")
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweeper")
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	listener.Start(ctx)

	log.Info().Msg("Slot service started")

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := listener.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close listener")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown timed out")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Dispatcher shutdown timed out")
	}
	if err := sweeper.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Sweeper shutdown timed out")
	}
	log.Info().Msg("Slot service stopped")
}
