package config

import (
	"fmt"
	"log"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Config 结构体用于存储应用程序的配置信息
type Config struct {
	HTTPPort string `env:"HTTP_PORT,default=8080"`
	Debug    bool   `env:"DEBUG,default=false"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	DBHost                 string `env:"DB_HOST"`
	DBPort                 string `env:"DB_PORT,default=3306"`
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBName                 string `env:"DB_NAME"`
	DBMaxOpenConns         int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	LockWaitTimeoutSeconds int    `env:"LOCK_WAIT_TIMEOUT_SECONDS,default=5"`
	AutoMigrate            bool   `env:"AUTO_MIGRATE,default=false"`

	JWTSecret   string `env:"JWT_SECRET"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:5173"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	StorageDriver      string `env:"STORAGE_DRIVER,default=local"`
	LocalStoragePath   string `env:"LOCAL_STORAGE_PATH,default=./uploads"`
	S3Region           string `env:"S3_REGION,default=us-west-2"`
	S3Bucket           string `env:"S3_BUCKET"`
	GCSProjectID       string `env:"GCS_PROJECT_ID"`
	GCSBucketName      string `env:"GCS_BUCKET_NAME"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`

	RedisAddr                string `env:"REDIS_ADDR"`
	RedisPassword            string `env:"REDIS_PASSWORD"`
	RedisDB                  int    `env:"REDIS_DB,default=0"`
	SettlementLockTTLSeconds int    `env:"SETTLEMENT_LOCK_TTL_SECONDS,default=60"`

	KafkaBrokers      string `env:"KAFKA_BROKERS"`
	KafkaPaymentTopic string `env:"KAFKA_PAYMENT_TOPIC,default=payment-notifications"`
	KafkaGroupID      string `env:"KAFKA_GROUP_ID,default=ztuff-orders"`

	PaymentGatewayURL     string `env:"PAYMENT_GATEWAY_URL"`
	PaymentServerKey      string `env:"PAYMENT_SERVER_KEY"`
	GatewayTimeoutSeconds int    `env:"GATEWAY_TIMEOUT_SECONDS,default=30"`

	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME,default=ztuff-backend"`

	ReturnWindowSweepSpec string `env:"RETURN_WINDOW_SWEEP_SPEC,default=@every 1h"`
}

// AppConfig 是全局配置变量
var AppConfig Config

// Init 函数用于初始化配置
func Init() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告：无法加载 .env 文件: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("错误：%v", err)
	}
	AppConfig = *cfg

	if AppConfig.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("应用程序运行在调试模式")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("应用程序运行在生产模式")
	}

	log.Printf("配置加载完成。数据库：%s:%s", AppConfig.DBHost, AppConfig.DBPort)
}

// Load 从环境变量读取并校验配置
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN MySQL 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Brokers 拆分逗号分隔的 Kafka 地址
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) validate() error {
	if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
		return fmt.Errorf("数据库配置不完整")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if c.LockWaitTimeoutSeconds <= 0 {
		return fmt.Errorf("LOCK_WAIT_TIMEOUT_SECONDS 必须大于 0")
	}
	switch c.StorageDriver {
	case "local", "s3", "gcs":
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.StorageDriver)
	}
	return nil
}
