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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/vnkhanh/podcast-studio/config"
	"github.com/vnkhanh/podcast-studio/controllers"
	"github.com/vnkhanh/podcast-studio/repository"
	"github.com/vnkhanh/podcast-studio/routes"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/utils"
	"github.com/vnkhanh/podcast-studio/workspace"
	"github.com/vnkhanh/podcast-studio/ws"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("Không tìm thấy file .env")
	}
	cfg := config.Load()
	config.InitDB()
	repo := repository.New(config.DB)

	ctx := context.Background()

	// Dịch vụ sinh nội dung: ưu tiên service riêng nếu có GENERATION_API_URL
	var (
		generator services.Generator
		summary   services.TextGenerator
	)
	if cfg.GenerationAPIURL != "" {
		generator = services.NewRemoteGenerator(cfg.GenerationAPIURL, cfg.GenerationAPIKey)
		log.Println("Sinh nội dung qua", cfg.GenerationAPIURL)
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("Không thể khởi tạo Gemini:", err)
		}
		defer gemini.Close()
		summary = gemini
		if generator == nil {
			generator = gemini
		}
	}
	if generator == nil {
		log.Fatal("Cần GEMINI_API_KEY hoặc GENERATION_API_URL")
	}

	deps := workspace.Deps{
		Repo:      repo,
		Generator: generator,
		Publisher: ws.H,
		Options: workspace.Options{
			RecentWindow: cfg.ContextRecentWindow,
			Debounce:     cfg.AutosaveDebounce,
			Interval:     cfg.AutosaveInterval,
		},
	}

	var files controllers.FileRemover
	if storage, err := utils.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket); err != nil {
		log.Println("Không upload export/audio:", err)
	} else {
		deps.Uploader = storage
		files = storage
	}

	tts := controllers.NewTTSController(nil)
	if cfg.GoogleCredentials != "" {
		narrator, err := services.NewNarrator(ctx, cfg.GoogleCredentials)
		if err != nil {
			log.Println("Không bật đọc audio:", err)
		} else {
			defer narrator.Close()
			deps.Narrator = narrator
			tts = controllers.NewTTSController(narrator)
		}
	}

	sessions := workspace.NewManager(deps)

	// Dọn phiên nhàn rỗi định kỳ
	stopCleanup := make(chan struct{})
	utils.StartCleanupJob("đóng phiên nhàn rỗi", time.Minute, stopCleanup, func() {
		if n := sessions.CloseIdle(context.Background(), cfg.SessionIdleTimeout); n > 0 {
			log.Printf("Đã đóng %d phiên nhàn rỗi", n)
		}
	})

	sqlDB, err := config.DB.DB()
	if err != nil {
		log.Fatal("Không thể lấy sql.DB từ gorm:", err)
	}

	r := gin.Default()

	//Bật CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Auth-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r = routes.SetupRouter(r, routes.Handlers{
		Users: repo,
		Hub:   ws.H,
		Access: func(ctx context.Context, podcastID, userID uuid.UUID) error {
			_, err := repo.GetPodcast(ctx, podcastID, userID)
			return err
		},
		Health:    controllers.NewHealthController(sqlDB, ws.H, sessions.Len),
		Auth:      controllers.NewAuthController(repo, cfg.GoogleClientID),
		Podcasts:  controllers.NewPodcastController(repo, sessions, files, summary),
		Workspace: controllers.NewWorkspaceController(sessions),
		TTS:       tts,
		Stats:     controllers.NewStatsController(repo),
	})

	r.GET("/", func(c *gin.Context) {
		c.String(200, "Podcast studio server is running")
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Println("Server running at Port:" + cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server lỗi:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Đang tắt server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Tắt HTTP server lỗi:", err)
	}
	close(stopCleanup)
	// lưu lần cuối mọi podcast đang mở
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Println("Lưu phiên khi tắt lỗi:", err)
	}
}
