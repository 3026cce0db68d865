package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	ComfyUI   ComfyUIConfig
	LocalAI   LocalAIConfig
	RVC       RVCConfig
	UVR5      UVR5Config
	Output    OutputConfig
	R2        R2Config
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ComfyUIConfig holds the workflow engine endpoint settings.
type ComfyUIConfig struct {
	BaseURL      string
	Timeout      int // seconds
	WorkflowPath string
	PollInterval int // seconds
	MaxWait      int // seconds
}

type LocalAIConfig struct {
	BaseURL string
	Timeout int // seconds
}

type RVCConfig struct {
	BaseURL string
	Timeout int // seconds
}

type UVR5Config struct {
	BaseURL      string
	Timeout      int // seconds
	PollInterval int // seconds
	MaxWait      int // seconds
}

// OutputConfig controls where downloaded artifacts are written.
type OutputConfig struct {
	Dir string
}

type RateLimitConfig struct {
	GeneratePerHour int
	SeparatePerHour int
	SpeechPerMin    int
	VoicePerMin     int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("comfyui.base_url", "COMFYUI_BASE_URL")
	_ = viper.BindEnv("comfyui.timeout", "COMFYUI_TIMEOUT")
	_ = viper.BindEnv("comfyui.workflow_path", "COMFYUI_WORKFLOW_PATH")
	_ = viper.BindEnv("comfyui.poll_interval", "COMFYUI_POLL_INTERVAL")
	_ = viper.BindEnv("comfyui.max_wait", "COMFYUI_MAX_WAIT")
	_ = viper.BindEnv("localai.base_url", "LOCALAI_BASE_URL")
	_ = viper.BindEnv("localai.timeout", "LOCALAI_TIMEOUT")
	_ = viper.BindEnv("rvc.base_url", "RVC_BASE_URL")
	_ = viper.BindEnv("rvc.timeout", "RVC_TIMEOUT")
	_ = viper.BindEnv("uvr5.base_url", "UVR5_BASE_URL")
	_ = viper.BindEnv("uvr5.timeout", "UVR5_TIMEOUT")
	_ = viper.BindEnv("uvr5.poll_interval", "UVR5_POLL_INTERVAL")
	_ = viper.BindEnv("uvr5.max_wait", "UVR5_MAX_WAIT")
	_ = viper.BindEnv("output.dir", "AUDIO_OUTPUT_DIR")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.separate_per_hour", "RATELIMIT_SEPARATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.speech_per_min", "RATELIMIT_SPEECH_PER_MIN")
	_ = viper.BindEnv("ratelimit.voice_per_min", "RATELIMIT_VOICE_PER_MIN")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// ComfyUI defaults; generation can take minutes
	viper.SetDefault("comfyui.base_url", "http://localhost:8188")
	viper.SetDefault("comfyui.timeout", 300)
	viper.SetDefault("comfyui.poll_interval", 2)
	viper.SetDefault("comfyui.max_wait", 300)

	// LocalAI defaults
	viper.SetDefault("localai.base_url", "http://localhost:8080")
	viper.SetDefault("localai.timeout", 60)

	// RVC defaults
	viper.SetDefault("rvc.base_url", "http://localhost:7865")
	viper.SetDefault("rvc.timeout", 300)

	// UVR5 defaults; separation is the slowest backend
	viper.SetDefault("uvr5.base_url", "http://localhost:5000")
	viper.SetDefault("uvr5.timeout", 600)
	viper.SetDefault("uvr5.poll_interval", 2)
	viper.SetDefault("uvr5.max_wait", 600)

	viper.SetDefault("output.dir", "./output")

	viper.SetDefault("ratelimit.generate_per_hour", 20)
	viper.SetDefault("ratelimit.separate_per_hour", 10)
	viper.SetDefault("ratelimit.speech_per_min", 30)
	viper.SetDefault("ratelimit.voice_per_min", 10)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		ComfyUI: ComfyUIConfig{
			BaseURL:      viper.GetString("comfyui.base_url"),
			Timeout:      viper.GetInt("comfyui.timeout"),
			WorkflowPath: viper.GetString("comfyui.workflow_path"),
			PollInterval: viper.GetInt("comfyui.poll_interval"),
			MaxWait:      viper.GetInt("comfyui.max_wait"),
		},
		LocalAI: LocalAIConfig{
			BaseURL: viper.GetString("localai.base_url"),
			Timeout: viper.GetInt("localai.timeout"),
		},
		RVC: RVCConfig{
			BaseURL: viper.GetString("rvc.base_url"),
			Timeout: viper.GetInt("rvc.timeout"),
		},
		UVR5: UVR5Config{
			BaseURL:      viper.GetString("uvr5.base_url"),
			Timeout:      viper.GetInt("uvr5.timeout"),
			PollInterval: viper.GetInt("uvr5.poll_interval"),
			MaxWait:      viper.GetInt("uvr5.max_wait"),
		},
		Output: OutputConfig{
			Dir: viper.GetString("output.dir"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			SeparatePerHour: viper.GetInt("ratelimit.separate_per_hour"),
			SpeechPerMin:    viper.GetInt("ratelimit.speech_per_min"),
			VoicePerMin:     viper.GetInt("ratelimit.voice_per_min"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}
