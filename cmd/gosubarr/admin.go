package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/amaumene/gosubarr/internal/config"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/spf13/cobra"
)

// openStore opens the database named by the configuration. The daemon holds
// the file lock, so these commands fail fast while it runs.
func openStore() (*store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return store.Open(cfg.DatabaseFile)
}

func parseScopes(names []string) ([]models.Scope, error) {
	if len(names) == 0 {
		return models.Scopes, nil
	}
	scopes := make([]models.Scope, 0, len(names))
	for _, name := range names {
		scope, err := store.ParseScope(name)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

func newLedgerCommand() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and reset persistent state (tasks, subs, ignore)",
	}

	ledgerCmd.AddCommand(newLedgerDumpCommand())
	ledgerCmd.AddCommand(newLedgerResetCommand())

	return ledgerCmd
}

func newLedgerDumpCommand() *cobra.Command {
	var scopes []string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every record of the given scopes as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			return dumpScopes(cmd.OutOrStdout(), db, selected)
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to dump: tasks, subs, ignore (default all)")
	return cmd
}

func newLedgerResetCommand() *cobra.Command {
	var scopes []string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the given scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(scopes) == 0 {
				return errors.New("--scope is required")
			}
			selected, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			return resetScopes(cmd.OutOrStdout(), db, selected)
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to reset: tasks, subs, ignore")
	return cmd
}

func dumpScopes(out io.Writer, db *store.DB, scopes []models.Scope) error {
	dump := make(map[models.Scope]any, len(scopes))
	var failed []error
	for _, scope := range scopes {
		records, err := db.Dump(scope)
		if err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", scope, err)
			failed = append(failed, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		dump[scope] = records
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return err
	}
	return errors.Join(failed...)
}

// resetScopes clears each scope on its own and reports every result
func resetScopes(out io.Writer, db *store.DB, scopes []models.Scope) error {
	var failed []error
	for _, scope := range scopes {
		if err := db.Reset(scope); err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", scope, err)
			failed = append(failed, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		fmt.Fprintf(out, "%s: reset\n", scope)
	}
	return errors.Join(failed...)
}

func newIgnoreCommand() *cobra.Command {
	ignoreCmd := &cobra.Command{
		Use:   "ignore",
		Short: "Manage sections, series and items excluded from acquisition",
	}

	var title string
	addCmd := &cobra.Command{
		Use:   "add <sections|series|items> <id>",
		Short: "Ignore an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseIgnoreKind(args[0])
			if err != nil {
				return err
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Ignore.Add(kind, args[1], title); err != nil {
				return fmt.Errorf("failed to add ignore entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s %s\n", kind, args[1])
			return nil
		},
	}
	addCmd.Flags().StringVar(&title, "title", "", "Display title")

	removeCmd := &cobra.Command{
		Use:   "remove <sections|series|items> <id>",
		Short: "Stop ignoring an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseIgnoreKind(args[0])
			if err != nil {
				return err
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Ignore.Remove(kind, args[1]); err != nil {
				return fmt.Errorf("failed to remove ignore entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "No longer ignoring %s %s\n", kind, args[1])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [sections|series|items]",
		Short: "List ignored entities",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.IgnoreKind
			if len(args) == 1 {
				k, err := parseIgnoreKind(args[0])
				if err != nil {
					return err
				}
				kind = k
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			entries, err := db.Ignore.List(kind)
			if err != nil {
				return fmt.Errorf("failed to list ignore entries: %w", err)
			}
			printIgnoreEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	ignoreCmd.AddCommand(addCmd, removeCmd, listCmd)
	return ignoreCmd
}

func parseIgnoreKind(s string) (models.IgnoreKind, error) {
	kind := models.IgnoreKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("invalid kind %q: want sections, series or items", s)
	}
	return kind, nil
}

func printIgnoreEntries(out io.Writer, entries []models.IgnoreEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Ignore list is empty")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tTITLE\tADDED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.ID, e.Title, e.AddedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
