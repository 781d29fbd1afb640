// Package config reads the hose-pay settings from flags, the environment
// and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Config is the validated harness configuration.
type Config struct {
	PrivateKeyHex string
	Mnemonic      string
	Network       primitives.NetworkInfo

	DBPath         string
	NodeHost       string
	OgmiosURL      string
	KupoURL        string
	GenesisByron   string
	GenesisShelley string
	EvaluatorWasm  string

	LogLevel string
	LogJSON  bool

	// Payment
	To       string
	Amount   uint64
	Absorb   bool
	DryRun   bool
	ShowHelp bool
}

// Flags holds the raw flag values before environment fallback.
type Flags struct {
	PrivateKeyHex  string
	Mnemonic       string
	Network        string
	DBPath         string
	NodeHost       string
	OgmiosURL      string
	KupoURL        string
	GenesisByron   string
	GenesisShelley string
	EvaluatorWasm  string
	EnvFile        string
	LogLevel       string
	LogJSON        bool
	To             string
	Amount         string
	Absorb         bool
	DryRun         bool
	Help           bool

	// Explicitly-set bool flags.
	SetLogJSON bool
	SetAbsorb  bool
	SetDryRun  bool
}

// envNames maps flag names to their environment variables.
var envNames = map[string]string{
	"private-key-hex": "PRIVATE_KEY_HEX",
	"mnemonic":        "MNEMONIC",
	"network":         "NETWORK",
	"db-path":         "DB_PATH",
	"node-host":       "NODE_HOST",
	"ogmios-url":      "OGMIOS_URL",
	"kupo-url":        "KUPO_URL",
	"genesis-byron":   "GENESIS_BYRON",
	"genesis-shelley": "GENESIS_SHELLEY",
	"evaluator-wasm":  "EVALUATOR_WASM",
	"log-level":       "LOG_LEVEL",
	"log-json":        "LOG_JSON",
	"to":              "PAY_TO",
	"amount":          "PAY_AMOUNT",
	"absorb-change":   "ABSORB_CHANGE",
	"dry-run":         "DRY_RUN",
}

// ParseFlags parses args into Flags. Usage goes to out.
func ParseFlags(args []string, out io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("hose-pay", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")

	// Wallet
	fs.StringVar(&f.PrivateKeyHex, "private-key-hex", "", "Hex ed25519 signing key")
	fs.StringVar(&f.Mnemonic, "mnemonic", "", "BIP39 mnemonic, used when no private key is given")

	// Chain
	fs.StringVar(&f.Network, "network", "", "Network: mainnet, testnet, preview, preprod or a numeric id 0..15")
	fs.StringVar(&f.DBPath, "db-path", "", "UTxO index location (directory for Badger, *.db for bbolt)")
	fs.StringVar(&f.NodeHost, "node-host", "", "Cardano node host:port")
	fs.StringVar(&f.OgmiosURL, "ogmios-url", "", "Ogmios endpoint")
	fs.StringVar(&f.KupoURL, "kupo-url", "", "Kupo endpoint")
	fs.StringVar(&f.GenesisByron, "genesis-byron", "", "Byron genesis file")
	fs.StringVar(&f.GenesisShelley, "genesis-shelley", "", "Shelley genesis file")
	fs.StringVar(&f.EvaluatorWasm, "evaluator-wasm", "", "Local Plutus evaluator module")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "Environment file to load")

	// Payment
	fs.StringVar(&f.To, "to", "", "Recipient bech32 address (default: own address)")
	fs.StringVar(&f.Amount, "amount", "", "Lovelace to send")
	fs.BoolVar(&f.Absorb, "absorb-change", false, "Add a change remainder below the minimum deposit to the fee")
	fs.BoolVar(&f.DryRun, "dry-run", false, "Build and sign without submitting")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.SetAbsorb = isFlagSet(fs, "absorb-change")
	f.SetDryRun = isFlagSet(fs, "dry-run")
	return f, nil
}

// Load resolves flags against getenv and validates the result.
func Load(f *Flags, getenv func(string) string) (*Config, error) {
	pick := func(flagValue, name string) string {
		if flagValue != "" {
			return flagValue
		}
		return strings.TrimSpace(getenv(envNames[name]))
	}
	pickBool := func(flagValue, set bool, name string) (bool, error) {
		if set {
			return flagValue, nil
		}
		raw := getenv(envNames[name])
		if raw == "" {
			return false, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("%s: %w", envNames[name], err)
		}
		return v, nil
	}

	cfg := &Config{
		PrivateKeyHex:  pick(f.PrivateKeyHex, "private-key-hex"),
		Mnemonic:       pick(f.Mnemonic, "mnemonic"),
		DBPath:         pick(f.DBPath, "db-path"),
		NodeHost:       pick(f.NodeHost, "node-host"),
		OgmiosURL:      pick(f.OgmiosURL, "ogmios-url"),
		KupoURL:        pick(f.KupoURL, "kupo-url"),
		GenesisByron:   pick(f.GenesisByron, "genesis-byron"),
		GenesisShelley: pick(f.GenesisShelley, "genesis-shelley"),
		EvaluatorWasm:  pick(f.EvaluatorWasm, "evaluator-wasm"),
		LogLevel:       pick(f.LogLevel, "log-level"),
		To:             pick(f.To, "to"),
		ShowHelp:       f.Help,
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	var err error
	if cfg.LogJSON, err = pickBool(f.LogJSON, f.SetLogJSON, "log-json"); err != nil {
		return nil, err
	}
	if cfg.Absorb, err = pickBool(f.Absorb, f.SetAbsorb, "absorb-change"); err != nil {
		return nil, err
	}
	if cfg.DryRun, err = pickBool(f.DryRun, f.SetDryRun, "dry-run"); err != nil {
		return nil, err
	}
	if cfg.Network, err = primitives.ParseNetwork(pick(f.Network, "network")); err != nil {
		return nil, err
	}
	if raw := pick(f.Amount, "amount"); raw != "" {
		if cfg.Amount, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that a usable backend and wallet are configured.
func (c *Config) Validate() error {
	if c.ShowHelp {
		return nil
	}
	var errs []error
	if c.PrivateKeyHex == "" && c.Mnemonic == "" {
		errs = append(errs, errors.New("PRIVATE_KEY_HEX or MNEMONIC is required"))
	}
	if c.OgmiosURL == "" {
		errs = append(errs, errors.New("OGMIOS_URL is required"))
	}
	if c.KupoURL == "" && c.DBPath == "" {
		errs = append(errs, errors.New("KUPO_URL or DB_PATH is required for UTxO lookups"))
	}
	if c.NodeHost != "" {
		if _, _, err := net.SplitHostPort(c.NodeHost); err != nil {
			errs = append(errs, fmt.Errorf("NODE_HOST: %w", err))
		}
	}
	for name, path := range map[string]string{
		"GENESIS_BYRON":   c.GenesisByron,
		"GENESIS_SHELLEY": c.GenesisShelley,
		"EVALUATOR_WASM":  c.EvaluatorWasm,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.EvaluatorWasm != "" && c.GenesisShelley == "" {
		errs = append(errs, errors.New("EVALUATOR_WASM needs GENESIS_SHELLEY for the slot configuration"))
	}
	return errors.Join(errs...)
}

// isFlagSet checks if a flag was explicitly set on the command line.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
