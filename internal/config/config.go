package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Payment modes of the purchase flow.
const (
	PaymentContract = "contract"
	PaymentDirect   = "direct"
)

// Config holds every setting of the agora binary.
type Config struct {
	Env            string        `validate:"required,oneof=development production test"`
	HTTPAddr       string        `validate:"required"`
	DBPath         string        `validate:"required"`
	UploadDir      string        `validate:"required"`
	DeploymentFile string        `validate:"required"`
	RedisURL       string        `validate:"omitempty,url"`
	JWTKey         string        `validate:"omitempty,hexadecimal"`
	WalletRPCURL   string        `validate:"omitempty"`
	EthRPCURL      string        `validate:"omitempty"`
	APIURL         string        `validate:"required,url"`
	SessionFile    string        `validate:"required"`
	SessionKey     string        `validate:"required"`
	PromptTimeout  time.Duration `validate:"gt=0"`
	PollInterval   time.Duration `validate:"gt=0"`
	DeployerKey    string        `validate:"omitempty,hexadecimal"`
	PaymentMode    string        `validate:"oneof=contract direct"`
}

var validate = validator.New()

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	promptTimeout, err := GetDuration("AGORA_PROMPT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	pollInterval, err := GetDuration("AGORA_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:            GetEnv("AGORA_ENV", "development"),
		HTTPAddr:       GetEnv("AGORA_HTTP_ADDR", ":9000"),
		DBPath:         GetEnv("AGORA_DB_PATH", "agora.db"),
		UploadDir:      GetEnv("AGORA_UPLOAD_DIR", "uploads"),
		DeploymentFile: GetEnv("AGORA_DEPLOYMENT_FILE", "static/deployedAddress.json"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTKey:         os.Getenv("AGORA_JWT_KEY"),
		WalletRPCURL:   os.Getenv("WALLET_RPC_URL"),
		EthRPCURL:      GetEnv("ETH_RPC_URL", "http://localhost:8545"),
		APIURL:         GetEnv("AGORA_API_URL", "http://localhost:9000"),
		SessionFile:    GetEnv("AGORA_SESSION_FILE", defaultSessionFile()),
		SessionKey:     GetEnv("AGORA_SESSION_KEY", "agora:walletState"),
		PromptTimeout:  promptTimeout,
		PollInterval:   pollInterval,
		DeployerKey:    os.Getenv("DEPLOYER_KEY"),
		PaymentMode:    GetEnv("AGORA_PAYMENT_MODE", PaymentContract),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the value of key, or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// GetDuration parses key as a time.Duration.
func GetDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".agora-wallet.json"
	}
	return dir + string(os.PathSeparator) + "agora" + string(os.PathSeparator) + "wallet.json"
}
