package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
)

// watchExtensions lists the file types the watcher ingests.
var watchExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".csv":      true,
	".txt":      true,
	".docx":     true,
}

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and ingest changed files",
	Long: `Watches a directory and automatically ingests files as they are
created or modified. Hidden files and unsupported extensions are
skipped. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watch target must be a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	cmd.Printf("Watching %s (ctrl-c to stop)\n", dir)

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !shouldIngestEvent(event) {
				continue
			}
			cmd.Printf("Ingesting %s\n", event.Name)
			if err := ingestFile(ctx, ingestService, event.Name); err != nil {
				logger.Warn("Watch: ingest %s: %v", event.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch: %v", err)
		}
	}
}

// shouldIngestEvent filters watch events down to created or written
// regular files with a supported extension.
func shouldIngestEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !watchExtensions[strings.ToLower(filepath.Ext(base))] {
		return false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return false
	}
	return true
}

// ingestFile submits the file and waits for the job so failures
// surface in order, one file at a time.
func ingestFile(ctx context.Context, svc driving.IngestService, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	receipt, err := svc.Submit(ctx, driving.IngestRequest{
		Filename: filepath.Base(path),
		Content:  content,
	})
	if err != nil {
		return err
	}

	job, err := svc.Wait(ctx, receipt.JobID)
	if err != nil {
		return err
	}
	if len(job.Errors) > 0 {
		return errors.New(job.Errors[len(job.Errors)-1])
	}
	return nil
}
