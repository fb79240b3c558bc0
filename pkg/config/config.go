package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig — корневая структура конфигурации.
// Она зеркалит структуру config.yaml.
type AppConfig struct {
	Models     ModelsConfig     `yaml:"models"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Video      VideoConfig      `yaml:"video"`
	Immich     ImmichConfig     `yaml:"immich"`
	Move       MoveConfig       `yaml:"move"`
	Cache      CacheConfig      `yaml:"cache"`
	S3         S3Config         `yaml:"s3"`
	App        AppSpecific      `yaml:"app"`
}

// ImmichConfig — настройки подключения к Immich серверу.
type ImmichConfig struct {
	URL           string `yaml:"url"`            // Базовый URL сервера (например, http://192.168.1.100:2283)
	APIKey        string `yaml:"api_key"`        // Поддерживает ${VAR}
	RateLimit     int    `yaml:"rate_limit"`     // Запросов в минуту
	BurstLimit    int    `yaml:"burst_limit"`    // Burst для rate limiter
	RetryAttempts int    `yaml:"retry_attempts"` // Количество retry попыток
	Timeout       string `yaml:"timeout"`        // Timeout для HTTP запросов (например, "30s")
	PageSize      int    `yaml:"page_size"`      // Размер страницы для пагинации
	Tag           string `yaml:"tag"`            // Основной тег для миграции (default: Watercolor)
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *ImmichConfig) GetDefaults() ImmichConfig {
	result := *c

	if result.RateLimit == 0 {
		result.RateLimit = 120 // запросов в минуту
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 5
	}
	if result.RetryAttempts == 0 {
		result.RetryAttempts = 3
	}
	if result.Timeout == "" {
		result.Timeout = "30s"
	}
	if result.PageSize == 0 {
		result.PageSize = 1000
	}
	if result.Tag == "" {
		result.Tag = "Watercolor"
	}

	return result
}

// PathMapping — одна пара префиксов remote → local.
// Порядок записей в YAML определяет порядок применения: первый совпавший выигрывает.
type PathMapping struct {
	Remote string `yaml:"remote"` // Префикс пути на сервере Immich (например, /usr/src/app/photos)
	Local  string `yaml:"local"`  // Локальный префикс (например, /mnt/photos)
}

// MoveConfig — настройки миграции помеченных ассетов.
type MoveConfig struct {
	DestinationRoot   string        `yaml:"destination_root"`    // Корень дерева назначения
	PathMappings      []PathMapping `yaml:"path_mappings"`       // Упорядоченный список маппингов
	DryRun            bool          `yaml:"dry_run"`             // Симуляция без изменений файловой системы
	MaxSuffixAttempts int           `yaml:"max_suffix_attempts"` // Лимит числовых суффиксов при коллизии имён
	TransactionLog    string        `yaml:"transaction_log"`     // Путь к NDJSON журналу
	CSVReport         string        `yaml:"csv_report"`          // Путь к CSV отчёту
	DeleteFromImmich  bool          `yaml:"delete_from_immich"`  // Удалять ассет из Immich после успешного move
	MirrorToS3        bool          `yaml:"mirror_to_s3"`        // Дублировать перемещённые файлы в S3 архив
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *MoveConfig) GetDefaults() MoveConfig {
	result := *c

	if result.MaxSuffixAttempts == 0 {
		result.MaxSuffixAttempts = 1000
	}
	if result.TransactionLog == "" {
		result.TransactionLog = fmt.Sprintf("move_log_%s.ndjson", time.Now().Format("20060102_150405"))
	}
	if result.CSVReport == "" {
		result.CSVReport = fmt.Sprintf("move_report_%s.csv", time.Now().Format("20060102_150405"))
	}

	return result
}

// ClassifierConfig — пороги классификации.
type ClassifierConfig struct {
	Threshold      float64 `yaml:"threshold"`        // Минимальная вероятность watercolor (default: 0.85)
	StrictMode     bool    `yaml:"strict_mode"`      // Мультиусловная строгая проверка
	MinMargin      float64 `yaml:"min_margin"`       // Минимальный отрыв от второго места (strict)
	MaxPhotoProb   float64 `yaml:"max_photo_prob"`   // Максимум для "a photograph" (strict)
	MaxDigitalProb float64 `yaml:"max_digital_prob"` // Максимум для "digital art" (strict)
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *ClassifierConfig) GetDefaults() ClassifierConfig {
	result := *c

	if result.Threshold == 0 {
		result.Threshold = 0.85
	}
	if result.MinMargin == 0 {
		result.MinMargin = 0.15
	}
	if result.MaxPhotoProb == 0 {
		result.MaxPhotoProb = 0.3
	}
	if result.MaxDigitalProb == 0 {
		result.MaxDigitalProb = 0.3
	}

	return result
}

// VideoConfig — настройки обработки видео.
type VideoConfig struct {
	SampleIntervalSec  float64 `yaml:"sample_interval_sec"` // Секунд между сэмплируемыми кадрами
	MinFrames          int     `yaml:"min_frames"`          // Минимум кадров на видео
	DetectionThreshold float64 `yaml:"detection_threshold"` // Доля watercolor-кадров для положительного вердикта
	FFmpegPath         string  `yaml:"ffmpeg_path"`         // Путь к ffmpeg (default: "ffmpeg" из PATH)
	FFprobePath        string  `yaml:"ffprobe_path"`        // Путь к ffprobe (default: "ffprobe" из PATH)
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *VideoConfig) GetDefaults() VideoConfig {
	result := *c

	if result.SampleIntervalSec == 0 {
		result.SampleIntervalSec = 1.0
	}
	if result.MinFrames == 0 {
		result.MinFrames = 3
	}
	if result.DetectionThreshold == 0 {
		result.DetectionThreshold = 0.3
	}
	if result.FFmpegPath == "" {
		result.FFmpegPath = "ffmpeg"
	}
	if result.FFprobePath == "" {
		result.FFprobePath = "ffprobe"
	}

	return result
}

// CacheConfig — настройки sqlite кэша результатов классификации.
type CacheConfig struct {
	Path string `yaml:"path"` // Путь к файлу базы (default: classification_cache.db)
}

// ModelsConfig — настройки AI моделей.
type ModelsConfig struct {
	DefaultVision string              `yaml:"default_vision"` // Алиас по умолчанию (например, "glm-4.6v-flash")
	Definitions   map[string]ModelDef `yaml:"definitions"`    // Словарь определений моделей
}

// ModelDef — параметры конкретной модели.
type ModelDef struct {
	Provider    string        `yaml:"provider"`   // "zai", "openai" и т.д.
	ModelName   string        `yaml:"model_name"` // Реальное имя в API
	APIKey      string        `yaml:"api_key"`    // Поддерживает ${VAR}
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // Go умеет парсить строки вида "60s", "1m"
	BaseURL     string        `yaml:"base_url"`
}

// S3Config — настройки объектного хранилища для архивного зеркала.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// ImageProcConfig — настройки обработки изображений перед отправкой в vision модель.
type ImageProcConfig struct {
	MaxWidth int `yaml:"max_width"`
	Quality  int `yaml:"quality"`
}

// AppSpecific — общие настройки приложения.
type AppSpecific struct {
	Debug           bool            `yaml:"debug"`
	ImageProcessing ImageProcConfig `yaml:"image_processing"`
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	// 1. Проверяем существование файла
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	// 2. Читаем файл целиком
	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 3. Подставляем переменные окружения.
	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(rawBytes))

	// 4. Парсим YAML в структуру
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	// 5. Валидируем критические настройки
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate проверяет обязательные поля.
func (c *AppConfig) validate() error {
	if c.Immich.URL == "" {
		return fmt.Errorf("immich.url is required")
	}
	if c.Immich.APIKey == "" {
		return fmt.Errorf("immich.api_key is required")
	}
	if c.Models.DefaultVision != "" {
		if _, ok := c.Models.Definitions[c.Models.DefaultVision]; !ok {
			return fmt.Errorf("default_vision model '%s' is not defined in definitions", c.Models.DefaultVision)
		}
	}
	if c.Move.MirrorToS3 {
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when move.mirror_to_s3 is enabled")
		}
		if c.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required when move.mirror_to_s3 is enabled")
		}
	}
	return nil
}

// Helper методы для удобства доступа (Syntactic sugar)

// GetVisionModel возвращает конфигурацию модели по умолчанию или по имени.
func (c *AppConfig) GetVisionModel(name string) (ModelDef, bool) {
	if name == "" {
		name = c.Models.DefaultVision
	}
	m, ok := c.Models.Definitions[name]
	return m, ok
}

// CacheDBPath возвращает путь к sqlite кэшу с дефолтом.
func (c *AppConfig) CacheDBPath() string {
	if c.Cache.Path == "" {
		return "classification_cache.db"
	}
	return c.Cache.Path
}
