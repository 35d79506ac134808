package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "mediaflow/handler/http"
	"mediaflow/src/core/generation"
	"mediaflow/src/core/signedurl"
	"mediaflow/src/infrastructure/integrations/googleai"
	jobctrl "mediaflow/src/infrastructure/job"
	"mediaflow/src/infrastructure/queue"
	"mediaflow/src/log"
	"mediaflow/src/storage/cachectrl"
	"mediaflow/src/storage/minioctrl"
	pgjobctrl "mediaflow/src/storage/postgres/jobctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	Long:  `The serve command starts the HTTP server exposing the job registry and generation endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	settingDefaultConfig()
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	// Initialize job registry
	jobRepo, err := pgjobctrl.NewJobRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job repository: %v", err)
	}
	registry := jobctrl.NewRegistry(jobRepo)

	// Initialize object store
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
	if err := objectStore.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure media bucket: %v", err)
	}

	// Initialize presigned URL cache
	urlCache, err := cachectrl.NewRistrettoCache()
	if err != nil {
		return fmt.Errorf("failed to initialize url cache: %v", err)
	}
	defer urlCache.Close()
	urls := signedurl.NewService(urlCache, objectStore)

	// Initialize AMQP publisher for poll scheduling
	amqpPublisher, err := amqp.NewPublisher(
		queue.NewConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize amqp publisher: %v", err)
	}
	defer amqpPublisher.Close()
	scheduler := queue.NewScheduler(amqpPublisher)

	// Initialize generation providers
	providers, err := buildProviders(ctx)
	if err != nil {
		return err
	}
	dispatcher := generation.NewDispatcher(
		providers,
		registry,
		scheduler,
		viper.GetDuration("poll.initial_delay"),
	)

	// Setup gin router
	r := gin.Default()
	httpHdlr.NewHandler(registry, dispatcher, urls).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
		}
	}()
	log.Info("Server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}
	log.Info("Server exited")
	return nil
}

// buildProviders maps the configured model identifiers to provider
// implementations.
func buildProviders(ctx context.Context) (map[string]generation.Provider, error) {
	googleClient, err := googleai.NewClient(ctx, viper.GetString("googleai.api_key"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize googleai client: %v", err)
	}

	return map[string]generation.Provider{
		viper.GetString("googleai.video_model"): googleClient,
		viper.GetString("googleai.image_model"): googleClient,
	}, nil
}
