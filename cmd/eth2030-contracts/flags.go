package main

import (
	"flag"
	"fmt"

	"github.com/eth2030/eth2030-contracts/core/config"
)

// cliConfig holds every flag this command accepts: a subset of the
// executor's Schedule exposed for tuning, plus the inputs to one
// upload+instantiate(+call) run.
type cliConfig struct {
	Verbosity int

	DeletionQueueDepth uint64
	DepositPerByte     uint64
	DepositPerItem     uint64
	MaxCodeLen         uint64
	CallStackDepth     uint64

	Deployer           string
	InitialBalance     uint64
	CodePath           string
	Input              string
	Salt               string
	Value              uint64
	GasRefTime         uint64
	GasProofSize       uint64
	DepositLimit       uint64
	AllowIndeterminism bool
	CallInput          string
}

// defaultCLIConfig seeds cliConfig from config.DefaultSchedule() so flag
// defaults never drift out of sync with the executor's own defaults.
func defaultCLIConfig() cliConfig {
	d := config.DefaultSchedule()
	return cliConfig{
		Verbosity:          2,
		DeletionQueueDepth: uint64(d.DeletionQueueDepth),
		DepositPerByte:     d.DepositPerByte,
		DepositPerItem:     d.DepositPerItem,
		MaxCodeLen:         uint64(d.MaxCodeLen),
		CallStackDepth:     uint64(d.CallStackDepth),
		Deployer:           "alice",
		InitialBalance:     1_000_000_000,
		GasRefTime:         10_000_000,
		GasProofSize:       10_000_000,
		DepositLimit:       1_000_000,
	}
}

// resolveSchedule builds a config.Schedule from the tunable subset of flags,
// leaving every untunable field (instruction/host-fn weights, memory/stack
// limits) at its DefaultSchedule() value.
func (c cliConfig) resolveSchedule() config.Schedule {
	s := config.DefaultSchedule()
	s.DeletionQueueDepth = uint32(c.DeletionQueueDepth)
	s.DepositPerByte = c.DepositPerByte
	s.DepositPerItem = c.DepositPerItem
	s.MaxCodeLen = uint32(c.MaxCodeLen)
	s.CallStackDepth = uint32(c.CallStackDepth)
	return s
}

// parseFlags parses CLI arguments into a cliConfig. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (cliConfig, bool, int) {
	cfg := defaultCLIConfig()
	fs := flag.NewFlagSet("eth2030-contracts", flag.ContinueOnError)

	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-3 (0=error .. 3=debug)")
	fs.Uint64Var(&cfg.DeletionQueueDepth, "deletion-queue-depth", cfg.DeletionQueueDepth, "deletion queue capacity")
	fs.Uint64Var(&cfg.DepositPerByte, "deposit-per-byte", cfg.DepositPerByte, "storage deposit charged per byte")
	fs.Uint64Var(&cfg.DepositPerItem, "deposit-per-item", cfg.DepositPerItem, "storage deposit charged per item")
	fs.Uint64Var(&cfg.MaxCodeLen, "max-code-len", cfg.MaxCodeLen, "maximum accepted pristine code length")
	fs.Uint64Var(&cfg.CallStackDepth, "call-stack-depth", cfg.CallStackDepth, "maximum nested call depth")

	fs.StringVar(&cfg.Deployer, "deployer", cfg.Deployer, "deployer account id seed (arbitrary string, padded/truncated to 32 bytes)")
	fs.Uint64Var(&cfg.InitialBalance, "initial-balance", cfg.InitialBalance, "balance credited to the deployer before running")
	fs.StringVar(&cfg.CodePath, "code", cfg.CodePath, "path to a Wasm binary to upload and instantiate")
	fs.StringVar(&cfg.Input, "input", cfg.Input, "hex-encoded constructor input")
	fs.StringVar(&cfg.Salt, "salt", cfg.Salt, "hex-encoded instantiation salt")
	fs.Uint64Var(&cfg.Value, "value", cfg.Value, "value transferred at instantiation")
	fs.Uint64Var(&cfg.GasRefTime, "gas-ref-time", cfg.GasRefTime, "compute gas limit (RefTime dimension)")
	fs.Uint64Var(&cfg.GasProofSize, "gas-proof-size", cfg.GasProofSize, "compute gas limit (ProofSize dimension)")
	fs.Uint64Var(&cfg.DepositLimit, "deposit-limit", cfg.DepositLimit, "storage_deposit_limit for the run")
	fs.BoolVar(&cfg.AllowIndeterminism, "allow-indeterminism", cfg.AllowIndeterminism, "upload as AllowIndeterminism and stop (such code cannot be instantiated)")
	fs.StringVar(&cfg.CallInput, "call-input", cfg.CallInput, "hex-encoded input for an additional seal `call` export invocation after instantiation")

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(fs.Output(), "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("eth2030-contracts %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}
