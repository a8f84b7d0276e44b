package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vestake/core/genesis"
	"vestake/crypto"
	"vestake/storage"
)

const (
	DatabaseLevelDB = "leveldb"
	DatabaseMemory  = "memory"
)

// Config describes where the ledger keeps its state and how it is seeded.
type Config struct {
	DataDir              string `toml:"DataDir"`
	Database             string `toml:"Database"`
	GenesisFile          string `toml:"GenesisFile"`
	AllowAutogenesis     bool   `toml:"AllowAutogenesis"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	NetworkName          string `toml:"NetworkName"`
}

// Load loads the configuration from the given path, creating a default file
// and operator key when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %q", path, undecoded[0].String())
	}

	normalize(path, cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func normalize(configPath string, cfg *Config) {
	cfg.Database = strings.ToLower(strings.TrimSpace(cfg.Database))
	if cfg.Database == "" {
		cfg.Database = DatabaseLevelDB
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vestake-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vestake-data"
	}
	if cfg.OperatorKeystorePath == "" {
		cfg.OperatorKeystorePath = defaultKeystorePath(configPath)
	}
}

// ValidateConfig checks the settings that cannot be defaulted.
func ValidateConfig(cfg *Config) error {
	switch cfg.Database {
	case DatabaseLevelDB, DatabaseMemory:
	default:
		return fmt.Errorf("unsupported Database %q (want %s or %s)", cfg.Database, DatabaseLevelDB, DatabaseMemory)
	}
	if strings.TrimSpace(cfg.GenesisFile) == "" && !cfg.AllowAutogenesis {
		return fmt.Errorf("GenesisFile is required unless AllowAutogenesis is set")
	}
	return nil
}

// OpenDatabase opens the configured state database.
func (c *Config) OpenDatabase() (storage.Database, error) {
	if c.Database == DatabaseMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(c.DataDir, "ledger"))
}

// ResolveGenesis loads the genesis file. When it is absent and autogenesis is
// allowed, a development genesis administered by the operator key is written
// first.
func (c *Config) ResolveGenesis(passphrase string) (*genesis.Genesis, error) {
	path := strings.TrimSpace(c.GenesisFile)
	if path == "" {
		path = filepath.Join(c.DataDir, "genesis.json")
	}
	if _, err := os.Stat(path); err == nil {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return nil, err
		}
		return spec.Build()
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	if !c.AllowAutogenesis {
		return nil, fmt.Errorf("genesis file %s not found and autogenesis disabled", path)
	}
	key, err := crypto.LoadFromKeystore(c.OperatorKeystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load operator key: %w", err)
	}
	spec := genesis.DefaultSpec(key.Address())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := genesis.WriteGenesisSpec(path, spec); err != nil {
		return nil, err
	}
	return spec.Build()
}

// createDefault creates and saves a default configuration file together
// with an operator keystore.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:              "./vestake-data",
		Database:             DatabaseLevelDB,
		GenesisFile:          "",
		AllowAutogenesis:     true,
		OperatorKeystorePath: keystorePath,
		NetworkName:          "vestake-local",
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
