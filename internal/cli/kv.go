package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/runguard/internal/infra/kv"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Inspect persisted runtime state",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a persisted value",
	Args:  cobra.ExactArgs(1),
	Run:   runKVGet,
}

var kvSetCmd = &cobra.Command{
	Use:   "set <key> <json>",
	Short: "Store a JSON value",
	Args:  cobra.ExactArgs(2),
	Run:   runKVSet,
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a persisted value",
	Args:  cobra.ExactArgs(1),
	Run:   runKVDelete,
}

func init() {
	kvCmd.AddCommand(kvGetCmd, kvSetCmd, kvDeleteCmd)
	rootCmd.AddCommand(kvCmd)
}

func openStore() (kv.Store, context.Context, context.CancelFunc) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	store, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		cancel()
		slog.Error("Failed to open kv store", "error", err)
		os.Exit(1)
	}
	return store, ctx, cancel
}

func runKVGet(cmd *cobra.Command, args []string) {
	store, ctx, cancel := openStore()
	defer cancel()
	defer func() {
		_ = store.Close()
	}()

	raw, found, err := store.GetRaw(ctx, args[0])
	if err != nil {
		slog.Error("Failed to read key", "key", args[0], "error", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "%s: not found\n", args[0])
		os.Exit(1)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Malformed values are printed as stored
		fmt.Println(raw)
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func runKVSet(cmd *cobra.Command, args []string) {
	if !json.Valid([]byte(args[1])) {
		slog.Error("Value is not valid JSON", "value", args[1])
		os.Exit(1)
	}

	store, ctx, cancel := openStore()
	defer cancel()
	defer func() {
		_ = store.Close()
	}()

	if err := store.SetRaw(ctx, args[0], args[1]); err != nil {
		slog.Error("Failed to write key", "key", args[0], "error", err)
		os.Exit(1)
	}
}

func runKVDelete(cmd *cobra.Command, args []string) {
	store, ctx, cancel := openStore()
	defer cancel()
	defer func() {
		_ = store.Close()
	}()

	if err := store.Delete(ctx, args[0]); err != nil {
		slog.Error("Failed to delete key", "key", args[0], "error", err)
		os.Exit(1)
	}
}
