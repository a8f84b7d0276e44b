package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultAPIURL = "http://127.0.0.1:8080"
	envAPIURL     = "VESTAKE_API_URL"
	envAPIToken   = "VESTAKE_API_TOKEN"
	envAuthSecret = "VESTAKE_AUTH_SECRET"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(c *cli, args []string) int
}

var commands = []command{
	{"keygen", "keygen [--out path] [--force]", "create an encrypted account keystore", runKeygen},
	{"token", "token --subject <address> [--ttl 1h] [--issuer i] [--audience a]", "issue an API bearer token (reads " + envAuthSecret + ")", runToken},
	{"deposit", "deposit <amount>", "approve and stake base asset", runDeposit},
	{"withdraw", "withdraw <amount>", "unstake base asset", runWithdraw},
	{"claim", "claim", "settle and mint pending rewards", runClaim},
	{"pending", "pending <address>", "quote the claimable reward", runPending},
	{"user", "user <address>", "show a staking position", runUser},
	{"global", "global", "show the accumulator and totals", runGlobal},
	{"params", "params", "show reward parameters", runParams},
	{"set-param", "set-param <name> <value>", "update a reward parameter (admin)", runSetParam},
	{"approve", "approve <spender> <amount>", "set a base asset allowance", runApprove},
	{"events", "events [--account a] [--type t] [--limit n] [--export csv|jsonl|parquet] [--out file]", "list indexed ledger events", runEvents},
}

// cli carries the global options shared by every subcommand.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	client *apiClient
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint := envOr(envAPIURL, defaultAPIURL)
	token := strings.TrimSpace(os.Getenv(envAPIToken))
	args, endpoint, token, err := parseGlobalFlags(args, endpoint, token)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	c := &cli{stdout: stdout, stderr: stderr, client: newAPIClient(endpoint, token)}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(c, args[1:])
		}
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return 0
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", args[0])
	printUsage(stderr)
	return 2
}

// parseGlobalFlags strips --api and --token from anywhere before the
// subcommand name.
func parseGlobalFlags(args []string, endpoint, token string) ([]string, string, string, error) {
	for len(args) > 0 && strings.HasPrefix(args[0], "--") {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(args[0], "--"), "=")
		if name != "api" && name != "token" {
			break
		}
		if !hasValue {
			if len(args) < 2 {
				return nil, "", "", fmt.Errorf("--%s requires a value", name)
			}
			value = args[1]
			args = args[1:]
		}
		args = args[1:]
		if name == "api" {
			endpoint = value
		} else {
			token = value
		}
	}
	return args, endpoint, token, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vestakectl [--api URL] [--token JWT] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-58s %s\n", cmd.usage, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The API URL and token default to $%s and $%s.\n", envAPIURL, envAPIToken)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
