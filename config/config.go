package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del cliente.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Poll    PollConfig    `yaml:"poll"`
	Funding FundingConfig `yaml:"funding"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`

	// AuthorityKey es la clave del emisor para mints y top-ups.
	// Solo se lee de la variable de entorno AUTHORITY_KEY, nunca del YAML.
	AuthorityKey string `yaml:"-"`
}

// ChainConfig contiene el RPC y las direcciones de los programas del ledger.
type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         int64  `yaml:"chain_id"`
	MarketAddress   string `yaml:"market_address"`   // programa de préstamos
	OracleAddress   string `yaml:"oracle_address"`   // oracle de precios
	RegistryAddress string `yaml:"registry_address"` // allow-lists de tokens
	TokenAddress    string `yaml:"token_address"`    // token sintético
}

// PollConfig controla los intervalos de polling del read cache.
// Precios y health son los más rápidos; catálogos los más lentos.
type PollConfig struct {
	PriceSeconds   int `yaml:"price_seconds"`
	ParamsSeconds  int `yaml:"params_seconds"`
	CatalogSeconds int `yaml:"catalog_seconds"`
}

// FundingConfig controla el gas mínimo y el tamaño del top-up.
type FundingConfig struct {
	MinGasBalance        float64 `yaml:"min_gas_balance"`
	TopUpAmount          float64 `yaml:"top_up_amount"`
	LiquidationBufferPct float64 `yaml:"liquidation_buffer_pct"` // margen sobre la deuda al mintear
}

// StorageConfig controla dónde se persiste el mirror local.
// Las wallets viven en un archivo separado del mirror.
type StorageConfig struct {
	DSN         string `yaml:"dsn"`          // ruta al archivo SQLite, o ":memory:"
	KeystoreDSN string `yaml:"keystore_dsn"` // ruta al archivo de wallets
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// AUTHORITY_KEY y los overrides de log vienen siempre del entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PriceInterval devuelve el intervalo de polling de precios.
func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.Poll.PriceSeconds) * time.Second
}

// ParamsInterval devuelve el intervalo de polling de parámetros de riesgo.
func (c *Config) ParamsInterval() time.Duration {
	return time.Duration(c.Poll.ParamsSeconds) * time.Second
}

// CatalogInterval devuelve el intervalo de polling de catálogos.
func (c *Config) CatalogInterval() time.Duration {
	return time.Duration(c.Poll.CatalogSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	cfg.AuthorityKey = os.Getenv("AUTHORITY_KEY")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID <= 0 {
		cfg.Chain.ChainID = 137
	}
	if cfg.Poll.PriceSeconds <= 0 {
		cfg.Poll.PriceSeconds = 5
	}
	if cfg.Poll.ParamsSeconds <= 0 {
		cfg.Poll.ParamsSeconds = 30
	}
	if cfg.Poll.CatalogSeconds <= 0 {
		cfg.Poll.CatalogSeconds = 120
	}
	if cfg.Funding.MinGasBalance <= 0 {
		cfg.Funding.MinGasBalance = 0.05
	}
	if cfg.Funding.TopUpAmount <= 0 {
		cfg.Funding.TopUpAmount = 0.2
	}
	if cfg.Funding.LiquidationBufferPct <= 0 {
		cfg.Funding.LiquidationBufferPct = 0.01
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "lendbot.db"
	}
	if cfg.Storage.KeystoreDSN == "" {
		cfg.Storage.KeystoreDSN = "wallets.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
