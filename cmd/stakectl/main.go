package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"stakeledger/cmd/internal/secret"
	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/services/stakingd"
	"stakeledger/services/stakingd/snapshot"
	"stakeledger/storage"
)

const secretEnv = "STAKINGD_HMAC_SECRET"

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, secret.NewSource(secretEnv, "stakingd hmac secret: ")); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "stakectl: %v\n", err)
		os.Exit(1)
	}
}

type secretGetter interface {
	Get() (string, error)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stakectl <command> [flags]")
	fmt.Fprintln(w, "  token   -subject ADDR [-ttl 1h] [-issuer ISS] [-audience AUD]   issue a stakingd bearer token")
	fmt.Fprintln(w, "  export  -data DIR -out FILE                                    write staker records to parquet")
	fmt.Fprintln(w, "  digest  -data DIR                                              print the pool digest")
}

func run(args []string, stdout, stderr io.Writer, secrets secretGetter) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "token":
		return runToken(args[1:], stdout, stderr, secrets)
	case "export":
		return runExport(args[1:], stdout, stderr, true)
	case "digest":
		return runExport(args[1:], stdout, stderr, false)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func runToken(args []string, stdout, stderr io.Writer, secrets secretGetter) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "caller address placed in the sub claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "iss claim, must match the daemon's auth.issuer")
	audience := fs.String("audience", "", "aud claim, must match the daemon's auth.audience")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}
	caller, err := crypto.NormalizeAddress(*subject)
	if err != nil {
		return err
	}
	key, err := secrets.Get()
	if err != nil {
		return err
	}
	auth, err := stakingd.NewAuthenticator(stakingd.AuthConfig{HMACSecret: key, Issuer: *issuer, Audience: *audience}, nil)
	if err != nil {
		return err
	}
	token, err := auth.Issue(caller, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runExport(args []string, stdout, stderr io.Writer, write bool) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "data/stakingd", "stakingd data directory")
	out := fs.String("out", "", "parquet output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if write && *out == "" {
		return fmt.Errorf("-out is required")
	}
	db, err := storage.NewLevelDB(*dataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := snapshot.Take(staking.NewStore(db))
	if err != nil {
		return err
	}
	if write {
		if err := snap.WriteParquet(*out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d stakers to %s\n", len(snap.Stakers), *out)
	}
	fmt.Fprintf(stdout, "digest %s\n", snap.DigestHex())
	return nil
}
