package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hallgrim/uplift/internal/engine"
	"github.com/hallgrim/uplift/internal/observability"
	"github.com/hallgrim/uplift/internal/storage"
	"github.com/hallgrim/uplift/internal/uitree/cdptree"
)

// newRestoreCmd creates the `restore` command: replay the stored page state
// onto a freshly loaded page, or capture the current one with --capture.
func newRestoreCmd() *cobra.Command {
	var capture bool

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Capture or replay page state across a reload",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

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

			if capture {
				if err := eng.Capture(ctx); err != nil {
					return err
				}
				fmt.Println("Page state captured.")
				return nil
			}

			if ok := eng.Restore(ctx); !ok {
				fmt.Println("Nothing restored: no fresh snapshot for this page.")
				return nil
			}
			fmt.Println("Page state restored.")
			return nil
		},
	}

	restoreCmd.Flags().BoolVar(&capture, "capture", false, "Capture and store the current page state instead of restoring.")
	return restoreCmd
}
