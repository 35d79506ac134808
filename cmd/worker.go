package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mediaflow/src/core/generation"
	jobctrl "mediaflow/src/infrastructure/job"
	"mediaflow/src/infrastructure/queue"
	"mediaflow/src/log"
	"mediaflow/src/storage/minioctrl"
	pgjobctrl "mediaflow/src/storage/postgres/jobctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background poll worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"))
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	jobRepo, err := pgjobctrl.NewJobRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job repository: %v", err)
	}
	registry := jobctrl.NewRegistry(jobRepo)

	// Initialize object store for finished artifacts
	objectStore, err := minioctrl.NewObjectStore(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetString("minio.media_bucket"),
		viper.GetString("minio.domain"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %v", err)
	}
	if err := objectStore.EnsureBucket(cmd.Context()); err != nil {
		return fmt.Errorf("failed to ensure media bucket: %v", err)
	}

	// Initialize AMQP publisher for re-scheduling poll attempts
	amqpPublisher, err := amqp.NewPublisher(
		queue.NewConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := queue.NewConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	// Initialize generation providers and the poll worker
	providers, err := buildProviders(cmd.Context())
	if err != nil {
		return err
	}
	pollWorker := generation.NewPollWorker(
		providers,
		registry,
		objectStore,
		queue.NewScheduler(amqpPublisher),
		viper.GetDuration("poll.interval"),
		viper.GetInt("poll.max_attempts"),
	)

	router.AddNoPublisherHandler(
		"generation_poll",
		queue.PollTopic,
		amqpSubscriber,
		pollWorker.HandleMessage,
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")
	return nil
}
