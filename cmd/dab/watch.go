package main

import (
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gamewizzzz/data-api-builder/metadata"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the entity configuration and reload it on change",
	Long: `Watch validates the entity configuration, then keeps it loaded and
re-validates on every change to the file. A failed reload keeps the
previous store in place, the way a serving process would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := viper.GetString("config")
		reloader, err := metadata.NewReloader(ctx, metadata.FileSource(path))
		if err != nil {
			return err
		}
		slog.Info("configuration loaded", "path", path, "entities", len(reloader.Store().Entities()))

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := watcher.Close(); cerr != nil {
				slog.Warn("close watcher", "error", cerr)
			}
		}()
		// Watch the directory, not the file: editors replace files on
		// save, which drops a file-level watch.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return err
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != abs {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				store, err := reloader.Refresh(ctx)
				if err != nil {
					slog.Error("reload failed, keeping previous store", "error", err)
					continue
				}
				slog.Info("configuration reloaded", "entities", len(store.Entities()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				slog.Warn("watch error", "error", err)
			}
		}
	},
}
