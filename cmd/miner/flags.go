package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Flags holds the process-level invocation parameters: everything a
// human chooses per run, as distinct from the environment-backed
// tunables internal/config.Load reads. The two surfaces stay separate
// deliberately.
type Flags struct {
	WalletDir     string `short:"w" long:"walletdir" description:"Directory holding the wallet store's addresses file" default:"./wallet"`
	AddressesFile string `short:"a" long:"addresses" description:"Path to the addresses file exported by the wallet store" default:"addresses.json"`
	ConfigFile    string `short:"c" long:"configfile" description:"Optional KEY=VALUE file applied to the process environment before config is loaded"`
	DryRun        bool   `long:"dry-run" description:"Run with a deterministic fake hash engine instead of a real one"`
}

// parseFlags parses argv into a Flags value.
func parseFlags(argv []string) (*Flags, error) {
	f := &Flags{}
	if _, err := flags.ParseArgs(f, argv); err != nil {
		return nil, err
	}
	return f, nil
}

// addressesPath resolves the addresses file relative to the wallet
// directory unless AddressesFile is already absolute.
func (f *Flags) addressesPath() string {
	if strings.HasPrefix(f.AddressesFile, "/") {
		return f.AddressesFile
	}
	return strings.TrimSuffix(f.WalletDir, "/") + "/" + f.AddressesFile
}

// applyConfigFile applies KEY=VALUE lines from path to the process
// environment, letting operators supply env overrides from a file
// instead of real environment variables. Blank lines and lines
// starting with # are skipped. Existing environment variables are not
// overwritten, matching the usual "flags and files set defaults, the
// real environment wins" precedence.
func applyConfigFile(path string) error {
	if path == "" {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set %s from config file: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
