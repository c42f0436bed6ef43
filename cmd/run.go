package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/engine"
	"github.com/hallgrim/uplift/internal/inject"
	"github.com/hallgrim/uplift/internal/observability"
	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/storage"
	"github.com/hallgrim/uplift/internal/uitree"
	"github.com/hallgrim/uplift/internal/uitree/cdptree"
)

// newRunCmd creates the `run` command: attach to the page, optionally run
// injections, then keep capturing page state until interrupted.
func newRunCmd() *cobra.Command {
	var (
		injectURLs []string
		slotIndex  int
		stableID   string
		dryRunFile string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to the target page and drive its upload slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			if dryRunFile != "" {
				return dryRun(cmd.Context(), dryRunFile, logger)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := attachBrowser(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			durable, err := storage.OpenSQLite(cfg.Snapshot.DBPath)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer durable.Close()

			eng, err := engine.New(engine.Options{
				Tree:     sess.Tree,
				Bus:      sess.Bus,
				Durable:  durable,
				Notifier: cdptree.NewToast(sess.Tree, logger),
			}, cfg, logger)
			if err != nil {
				return err
			}

			for _, u := range injectURLs {
				sel := selectorFromFlags(slotIndex, stableID)
				if ok := eng.Inject(ctx, u, sel); !ok {
					logger.Warn("Injection did not complete", zap.String("url", u))
				}
			}

			logger.Info("Session attached; capturing page state until interrupt.")
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	runCmd.Flags().StringArrayVarP(&injectURLs, "inject", "i", nil, "Image URL to inject after attach. Repeatable; injections run in order.")
	runCmd.Flags().IntVarP(&slotIndex, "slot", "s", -1, "Slot index to target. Defaults to automatic selection.")
	runCmd.Flags().StringVar(&stableID, "id", "", "Stable slot identity to target (e.g. image-upload#0).")
	runCmd.Flags().StringVar(&dryRunFile, "dry-run", "", "Run discovery against a saved HTML file and print the slot table instead of attaching.")

	return runCmd
}

// selectorFromFlags maps the CLI targeting flags onto a slot selector.
func selectorFromFlags(index int, id string) inject.Selector {
	switch {
	case id != "":
		return inject.ByStableID(id)
	case index >= 0:
		return inject.ByIndex(index)
	default:
		return inject.Auto()
	}
}

// dryRun exercises discovery and identity assignment against an HTML
// fixture and prints the resulting slot table.
func dryRun(ctx context.Context, path string, logger *zap.Logger) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	tree, err := uitree.ParseHTMLTree(string(src), "/create/image")
	if err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	disc := slots.NewDiscoverer(tree, logger)
	found, err := disc.Discover(ctx)
	if err != nil {
		return err
	}
	view := slots.NewAssignor(logger).Assign(found)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTABLE ID\tPRIORITY\tHINT\tOCCUPIED")
	for i, s := range view {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%v\n", i, s.StableID, s.Priority, s.ContainerHint, s.HasContent)
	}
	return w.Flush()
}
