package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vnkhanh/podcast-studio/autosave"
	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/prompt"
)

var DB *gorm.DB

// Config gom toàn bộ biến môi trường của server
type Config struct {
	Port           string
	AllowedOrigins []string

	GeminiAPIKey      string
	GeminiModel       string
	GenerationAPIURL  string
	GenerationAPIKey  string
	GoogleCredentials string
	GoogleClientID    string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	AutosaveDebounce    time.Duration
	AutosaveInterval    time.Duration
	ContextRecentWindow int
	SessionIdleTimeout  time.Duration
}

// Load đọc env, thiếu thì lấy giá trị mặc định
func Load() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GenerationAPIURL:  os.Getenv("GENERATION_API_URL"),
		GenerationAPIKey:  os.Getenv("GENERATION_API_KEY"),
		GoogleCredentials: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		GoogleClientID:    os.Getenv("GOOGLE_CLIENT_ID"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_KEY"),
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "uploads"),

		AutosaveDebounce:    getDuration("AUTOSAVE_DEBOUNCE", autosave.DefaultDebounce),
		AutosaveInterval:    getDuration("AUTOSAVE_INTERVAL", autosave.DefaultInterval),
		ContextRecentWindow: getInt("CONTEXT_RECENT_WINDOW", prompt.DefaultRecentWindow),
		SessionIdleTimeout:  getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
	}
}

func InitDB() {
	// DSN cho PostgreSQL
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=Asia/Ho_Chi_Minh",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"), getEnv("DB_PORT", "5432"), getEnv("DB_SSLMODE", "disable"),
	)

	// Kết nối DB với logger
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(os.Getenv("DB_LOG_LEVEL"))),
	})
	if err != nil {
		log.Fatal("Không thể kết nối database:", err)
	}

	DB = db

	// Lấy *sql.DB để config connection pooling
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Không thể lấy sql.DB từ gorm:", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	err = DB.AutoMigrate(
		&models.User{},
		&models.Podcast{},
		&models.Node{},
		&models.GenerationHistory{},
		&models.SavedPodcast{},
	)
	if err != nil {
		log.Fatal("autoMigrate lỗi: ", err)
	}
	log.Println("postgreSQL connected & migrated successfully!")
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getDuration nhận "3s", "1m" hoặc số giây
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("Giá trị %s=%q không hợp lệ, dùng mặc định %s", key, v, def)
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Giá trị %s=%q không hợp lệ, dùng mặc định %d", key, v, def)
		return def
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func logLevel(v string) logger.LogLevel {
	switch strings.ToLower(v) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	}
	return logger.Info
}
