package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rmscall/internal/auth"
	"rmscall/internal/backend"
	"rmscall/internal/callevent"
	"rmscall/internal/config"
	"rmscall/internal/domain"
	"rmscall/internal/handler"
	"rmscall/internal/notify"
	"rmscall/internal/platform"
	"rmscall/internal/redis"
	"rmscall/internal/repository"
	"rmscall/internal/service"
	"rmscall/internal/service/s3"
	"rmscall/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("RMSCALL_CONFIG"), "path to config file")
	flag.Parse()

	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к базе журнала загрузок
	db, err := repository.Open(&appConfig.Database, 5, 5*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Инициализация репозиториев
	credentialRepo := repository.NewCredentialRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	// Клиент RMS и сессия пользователя
	client := backend.NewClient(appConfig.Backend.BaseURL, appConfig.Backend.Timeout, credentialRepo)
	authService := auth.NewService(client, credentialRepo)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), appConfig.Backend.Timeout)
	if user, err := authService.Restore(startupCtx); err != nil {
		if errors.Is(err, domain.ErrNotAuthenticated) {
			log.Printf("No saved session, login required")
		} else {
			log.Printf("Failed to restore session: %v", err)
		}
	} else {
		log.Printf("Restored session for user %s", user.UserID)
	}
	cancelStartup()

	// Redis нужен только для хранения сессии звонка или событий телефонии
	var redisClient *redis.Client
	if appConfig.Platform.SessionBackend == "redis" || appConfig.Platform.EventSource == "redis" {
		redisClient, err = redis.NewRedisClient(&appConfig.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var sessions session.Store
	switch appConfig.Platform.SessionBackend {
	case "redis":
		sessions = session.NewRedisStore(redisClient)
	default:
		sessions = session.NewMemoryStore()
	}

	var (
		source callevent.Source
		intake handler.PhoneStateIntake
	)
	switch appConfig.Platform.EventSource {
	case "redis":
		redisSource := callevent.NewRedisSource(redisClient, appConfig.Platform.EventChannel)
		source = redisSource
		intake = redisSource.Publish
	default:
		webhookSource := callevent.NewWebhookSource()
		source = webhookSource
		intake = func(_ context.Context, u callevent.PhoneStateUpdate) error {
			return webhookSource.Push(u)
		}
	}
	listener := callevent.NewListener(source)

	// Платформа: разрешения и звонилка
	var prompter platform.Prompter
	if len(appConfig.Platform.PermissionCmd) > 0 {
		prompter = platform.NewExecPrompter(appConfig.Platform.PermissionCmd)
	} else {
		prompter = platform.NewStaticPrompter(appConfig.Platform.GrantedPerms)
	}
	dialer := platform.NewExecDialer(appConfig.Platform.DialCommand)

	// Инициализация сервисов
	notifier := notify.New(appConfig.Pipeline.NotificationsCap)
	permissionService := service.NewPermissionService(appConfig.Platform.OS, appConfig.Platform.SDKVersion, prompter)
	recordingService := service.NewRecordingService(afero.NewOsFs())
	folderService := service.NewFolderService(client, folderRepo, appConfig.Recordings.StorageRoot)

	var archiveService *service.ArchiveService
	if appConfig.S3.Enabled {
		s3Config := s3.NewConfig(&appConfig.S3)
		s3Client, err := s3.NewClient(s3Config, true)
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		archiveService = service.NewArchiveService(s3Client, s3Config.Prefix, uploadRepo)
	}

	var transcodeService *service.TranscodeService
	if appConfig.Transcode.Enabled {
		transcodeService, err = service.NewTranscodeService(appConfig.Transcode.Formats, appConfig.Transcode.OutputDir)
		if err != nil {
			log.Printf("Transcoding disabled: %v", err)
		}
	}

	pipeline := service.NewPipelineService(service.PipelineDeps{
		Permissions:   permissionService,
		Locator:       recordingService,
		Uploader:      client,
		Folders:       folderService,
		Users:         authService,
		Sessions:      sessions,
		Listener:      listener,
		Dialer:        dialer,
		Uploads:       uploadRepo,
		Notifier:      notifier,
		Transcoder:    transcodeService,
		Archive:       archiveService,
		OnAuthExpired: authService.Invalidate,
	}, service.PipelineOptions{
		Timeout:      appConfig.Pipeline.Timeout,
		SettleDelay:  appConfig.Pipeline.SettleDelay,
		MaxAttempts:  appConfig.Pipeline.MaxAttempts,
		RetryBackoff: appConfig.Pipeline.RetryBackoff,
		RequireFresh: appConfig.Pipeline.RequireFresh,
	})

	// Инициализация хендлеров
	authHandler := handler.NewAuthHandler(authService, pipeline)
	router := handler.NewRouter(handler.Handlers{
		Auth:      authHandler,
		Tickets:   handler.NewTicketHandler(client, authHandler),
		Folders:   handler.NewFolderHandler(folderService, authHandler),
		Calls:     handler.NewCallHandler(pipeline, dialer, appConfig.Platform.CountryCode),
		Pipeline:  handler.NewPipelineHandler(pipeline, intake),
		Recording: handler.NewRecordingHandler(recordingService, folderService, uploadRepo, pipeline, notifier, authHandler),
	}, appConfig.Pipeline.Timeout+appConfig.Backend.Timeout)

	// Конвейер подключается при старте, как экран профиля при открытии
	if err := pipeline.Attach(context.Background()); err != nil {
		log.Printf("Recording pipeline not attached: %v", err)
	}

	// gRPC сервер отдает только health check
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: router,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}
		log.Printf("Starting gRPC health server on port %s", appConfig.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down agent...")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	// Отсоединяем конвейер и ждем обработчики, которые уже работают
	pipeline.Detach()
	listener.Wait()

	grpcServer.GracefulStop()

	log.Println("Agent exited properly")
}
