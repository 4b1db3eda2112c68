// Command eth2030-contracts drives a single in-process contract executor
// against an uploaded Wasm module: upload, instantiate, and (optionally)
// call, printing the resolved Schedule, the derived contract address, and
// the run's output/events. It is a dry harness for exercising the executor
// outside of the surrounding chain's dispatch layer; the extrinsic decoder,
// weight tables and RPC wrappers live elsewhere, and this just drives the
// Executor's public operations directly.
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eth2030/eth2030-contracts/core/executor"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	eclog "github.com/eth2030/eth2030-contracts/log"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := eclog.New(verbosityToLevel(cfg.Verbosity))
	eclog.SetDefault(logger)

	sched := cfg.resolveSchedule()
	if err := sched.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid schedule: %v\n", err)
		return 1
	}

	logger.Info("eth2030-contracts starting", "version", version, "commit", commit)
	logger.Info("resolved schedule",
		"deletion_queue_depth", sched.DeletionQueueDepth,
		"deposit_per_byte", sched.DepositPerByte,
		"deposit_per_item", sched.DepositPerItem,
		"max_code_len", sched.MaxCodeLen,
		"call_stack_depth", sched.CallStackDepth,
	)

	if cfg.CodePath == "" {
		fmt.Fprintln(os.Stderr, "error: --code is required (path to a Wasm binary to upload and instantiate)")
		return 2
	}
	codeBytes, err := os.ReadFile(cfg.CodePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading --code: %v\n", err)
		return 1
	}

	ex, err := executor.NewExecutor(sched, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: constructing executor: %v\n", err)
		return 1
	}
	ex.SetBlockInfo(1, uint64(time.Now().Unix()))

	deployer := types.BytesToAccountID([]byte(cfg.Deployer))
	ex.CreditBalance(deployer, new(types.Balance).SetUint64(cfg.InitialBalance))

	input, err := hexOrEmpty(cfg.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: --input is not valid hex: %v\n", err)
		return 1
	}
	salt, err := hexOrEmpty(cfg.Salt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: --salt is not valid hex: %v\n", err)
		return 1
	}

	gasLimit := gas.Weight{RefTime: cfg.GasRefTime, ProofSize: cfg.GasProofSize}
	depositLimit := new(types.Balance).SetUint64(cfg.DepositLimit)
	value := new(types.Balance).SetUint64(cfg.Value)

	if cfg.AllowIndeterminism {
		// Indeterministic code cannot back a contract account (it is only
		// reachable via delegate_call in dry-run contexts), so this mode
		// stops at the upload.
		codeHash, err := ex.UploadCode(deployer, codeBytes, depositLimit, types.AllowIndeterminism)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
			return 1
		}
		logger.Info("uploaded", "code_hash", codeHash.String(), "determinism", types.AllowIndeterminism.String())
		for _, ev := range ex.Events {
			logger.Info("event", "name", ev.Name)
		}
		return 0
	}

	addr, out, reverted, err := ex.InstantiateWithCode(deployer, value, gasLimit, depositLimit, codeBytes, input, salt, types.Deterministic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "instantiate failed: %v\n", err)
		return 1
	}
	logger.Info("instantiated", "contract", addr.String(), "reverted", reverted, "output_bytes", len(out))

	if cfg.CallInput != "" {
		callInput, err := hexOrEmpty(cfg.CallInput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: --call-input is not valid hex: %v\n", err)
			return 1
		}
		out, reverted, err = ex.Call(deployer, addr, types.ZeroBalance(), gasLimit, depositLimit, callInput, types.Deterministic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
			return 1
		}
		logger.Info("called", "contract", addr.String(), "reverted", reverted, "output_hex", hex.EncodeToString(out))
	}

	for _, ev := range ex.Events {
		logger.Info("event", "name", ev.Name)
	}
	return 0
}

func hexOrEmpty(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
