package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"vestake/crypto"
)

const requestTimeout = 20 * time.Second

type amountBody struct {
	Amount string `json:"amount"`
}

type assetInfo struct {
	Module string `json:"module"`
}

func requireArgs(c *cli, args []string, n int, usage string) bool {
	if len(args) != n {
		fmt.Fprintf(c.stderr, "Usage: vestakectl %s\n", usage)
		return false
	}
	return true
}

func parseAmountArg(c *cli, raw string) (string, bool) {
	amount, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil || amount.IsZero() {
		fmt.Fprintf(c.stderr, "Error: amount must be a positive integer in base units, got %q\n", raw)
		return "", false
	}
	return amount.Dec(), true
}

func parseAddressArg(c *cli, raw string) (string, bool) {
	addr, err := crypto.ParseAccount(raw)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return "", false
	}
	return addr.Hex(), true
}

// report prints the API response as indented JSON or the error on stderr.
func (c *cli) report(err error, result any) int {
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	encoder := json.NewEncoder(c.stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runDeposit(c *cli, args []string) int {
	if !requireArgs(c, args, 1, "deposit <amount>") {
		return 1
	}
	amount, ok := parseAmountArg(c, args[0])
	if !ok {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var info assetInfo
	if err := c.client.get(ctx, "/v1/asset", nil, &info); err != nil {
		return c.report(err, nil)
	}
	approval := map[string]string{"spender": info.Module, "amount": amount}
	if err := c.client.post(ctx, "/v1/asset/approve", approval, nil); err != nil {
		return c.report(err, nil)
	}
	var result json.RawMessage
	err := c.client.post(ctx, "/v1/stake/deposit", amountBody{Amount: amount}, &result)
	return c.report(err, result)
}

func runWithdraw(c *cli, args []string) int {
	if !requireArgs(c, args, 1, "withdraw <amount>") {
		return 1
	}
	amount, ok := parseAmountArg(c, args[0])
	if !ok {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var result json.RawMessage
	err := c.client.post(ctx, "/v1/stake/withdraw", amountBody{Amount: amount}, &result)
	return c.report(err, result)
}

func runClaim(c *cli, args []string) int {
	if !requireArgs(c, args, 0, "claim") {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var result json.RawMessage
	err := c.client.post(ctx, "/v1/stake/claim", nil, &result)
	return c.report(err, result)
}

func runPending(c *cli, args []string) int {
	return c.getAccount(args, "pending <address>", "/v1/stake/users/%s/pending")
}

func runUser(c *cli, args []string) int {
	return c.getAccount(args, "user <address>", "/v1/stake/users/%s")
}

func (c *cli) getAccount(args []string, usage, pathFormat string) int {
	if !requireArgs(c, args, 1, usage) {
		return 1
	}
	addr, ok := parseAddressArg(c, args[0])
	if !ok {
		return 1
	}
	return c.getJSON(fmt.Sprintf(pathFormat, addr), nil)
}

func runGlobal(c *cli, args []string) int {
	if !requireArgs(c, args, 0, "global") {
		return 1
	}
	return c.getJSON("/v1/stake/global", nil)
}

func runParams(c *cli, args []string) int {
	if !requireArgs(c, args, 0, "params") {
		return 1
	}
	return c.getJSON("/v1/stake/params", nil)
}

func (c *cli) getJSON(path string, query url.Values) int {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var result json.RawMessage
	err := c.client.get(ctx, path, query, &result)
	return c.report(err, result)
}

func runSetParam(c *cli, args []string) int {
	if !requireArgs(c, args, 2, "set-param <name> <value>") {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var result json.RawMessage
	path := "/v1/admin/params/" + url.PathEscape(strings.TrimSpace(args[0]))
	err := c.client.post(ctx, path, map[string]string{"value": strings.TrimSpace(args[1])}, &result)
	return c.report(err, result)
}

func runApprove(c *cli, args []string) int {
	if !requireArgs(c, args, 2, "approve <spender> <amount>") {
		return 1
	}
	spender, ok := parseAddressArg(c, args[0])
	if !ok {
		return 1
	}
	// Zero is a valid allowance here; it revokes.
	amount, err := uint256.FromDecimal(strings.TrimSpace(args[1]))
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: invalid amount %q\n", args[1])
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var result json.RawMessage
	err = c.client.post(ctx, "/v1/asset/approve", map[string]string{"spender": spender, "amount": amount.Dec()}, &result)
	return c.report(err, result)
}

func runEvents(c *cli, args []string) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	account := fs.String("account", "", "filter by account")
	eventType := fs.String("type", "", "filter by event type")
	limit := fs.Int("limit", 0, "maximum number of events")
	export := fs.String("export", "", "download as csv, jsonl or parquet instead of listing")
	out := fs.String("out", "", "file to write the export to (defaults to events.<format>)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	query := url.Values{}
	if *account != "" {
		addr, ok := parseAddressArg(c, *account)
		if !ok {
			return 1
		}
		query.Set("account", addr)
	}
	if *eventType != "" {
		query.Set("type", *eventType)
	}
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	if *export == "" {
		return c.getJSON("/v1/events/", query)
	}
	format := strings.ToLower(strings.TrimSpace(*export))
	target := *out
	if target == "" {
		target = "events." + format
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	data, checksum, err := c.client.download(ctx, "/v1/events/export."+url.PathEscape(format), query)
	if err != nil {
		return c.report(err, nil)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return c.report(fmt.Errorf("write %s: %w", target, err), nil)
	}
	return c.report(nil, map[string]any{"file": target, "bytes": len(data), "sha256": checksum})
}
