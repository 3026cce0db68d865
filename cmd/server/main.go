package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/audioforge/api/internal/artifact"
	"github.com/audioforge/api/internal/client"
	"github.com/audioforge/api/internal/config"
	"github.com/audioforge/api/internal/handler"
	"github.com/audioforge/api/internal/middleware"
	"github.com/audioforge/api/internal/service"
	ws "github.com/audioforge/api/internal/websocket"
	"github.com/audioforge/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize backend clients
	comfyClient := client.NewComfyUIClient(&cfg.ComfyUI)
	localAIClient := client.NewLocalAIClient(&cfg.LocalAI)
	rvcClient := client.NewRVCClient(&cfg.RVC)
	uvr5Client := client.NewUVR5Client(&cfg.UVR5)

	// Artifact storage, with an optional R2 mirror
	store := artifact.NewStore(cfg.Output.Dir)

	var mirror client.ArtifactMirror
	var mirrorState handler.MirrorReporter
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("R2 mirror disabled: %v", err)
	} else {
		mirror = r2
		mirrorState = r2
	}

	// Initialize services
	generateService := service.NewGenerateService(redisClient, asynqClient, comfyClient)
	separationService := service.NewSeparationService(redisClient, asynqClient, uvr5Client)
	speechService := service.NewSpeechService(localAIClient, store, mirror)
	voiceService := service.NewVoiceService(rvcClient, store, mirror)

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	separateHandler := handler.NewSeparateHandler(separationService, validate)
	speechHandler := handler.NewSpeechHandler(speechService, validate)
	voiceHandler := handler.NewVoiceHandler(voiceService, validate)
	backendsHandler := handler.NewBackendsHandler(map[string]handler.HealthProber{
		"comfyui": comfyClient,
		"localai": localAIClient,
		"rvc":     rvcClient,
		"uvr5":    uvr5Client,
	}, mirrorState)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    100 * 1024 * 1024, // 100MB, audio uploads
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1")

	// Backend probes
	v1.Get("/backends", backendsHandler.Status)

	// Generation routes. /queue before /:jobId so it is not captured
	// as a job ID.
	generate := v1.Group("/generate")
	generate.Post("/", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Start)
	generate.Get("/queue", generateHandler.Queue)
	generate.Get("/:jobId", generateHandler.Status)
	generate.Get("/:jobId/result", generateHandler.Result)
	generate.Post("/:jobId/cancel", generateHandler.Cancel)

	// Speech routes
	speech := v1.Group("/speech", rateLimiter.SpeechLimit(cfg.RateLimit.SpeechPerMin))
	speech.Post("/", speechHandler.Synthesize)
	speech.Post("/transcriptions", speechHandler.Transcribe)
	speech.Get("/models", speechHandler.Models)
	v1.Post("/audio", rateLimiter.SpeechLimit(cfg.RateLimit.SpeechPerMin), speechHandler.GenerateAudio)

	// Voice conversion routes
	voice := v1.Group("/voice")
	voice.Post("/conversions", rateLimiter.VoiceLimit(cfg.RateLimit.VoicePerMin), voiceHandler.Convert)
	voice.Get("/models", voiceHandler.Models)
	voice.Get("/models/:name", voiceHandler.ModelInfo)

	// Separation routes
	separations := v1.Group("/separations")
	separations.Post("/", rateLimiter.SeparateLimit(cfg.RateLimit.SeparatePerHour), separateHandler.Start)
	separations.Get("/models", separateHandler.Models)
	separations.Get("/:jobId", separateHandler.Status)
	separations.Get("/:jobId/result", separateHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, generateService, separationService, comfyClient, uvr5Client, store, mirror, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	generateService *service.GenerateService,
	separationService *service.SeparationService,
	comfyClient *client.ComfyUIClient,
	uvr5Client *client.UVR5Client,
	store *artifact.Store,
	mirror client.ArtifactMirror,
	hub *ws.Hub,
) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"generate": 6,
				"separate": 4,
			},
		},
	)

	// Create workers
	generateWorker := worker.NewGenerateWorker(generateService, comfyClient, store, mirror, hub, &cfg.ComfyUI)
	separationWorker := worker.NewSeparationWorker(separationService, uvr5Client, store, mirror, hub, &cfg.UVR5)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeSeparate, separationWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
