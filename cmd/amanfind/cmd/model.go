package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage local embedding models",
	}
	cmd.AddCommand(newModelPullCmd())
	return cmd
}

func newModelPullCmd() *cobra.Command {
	var modelURL string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the native text model",
		Long: `Download the model file used by the native text backend.

The file is fetched from embeddings.model_url (or --url) and stored at
embeddings.model_path, or under ~/.amanfind/models when no path is set.
Concurrent pulls of the same model wait for each other; an existing file is
left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			src := cfg.Embeddings.ModelURL
			if modelURL != "" {
				src = modelURL
			}

			dir, name, err := modelDestination(cfg.Embeddings.ModelPath, src)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			mgr := embed.NewModelManager(dir)
			if mgr.Exists(name) {
				_, _ = fmt.Fprintf(out, "Model already present: %s\n", filepath.Join(dir, name))
				return nil
			}

			_, _ = fmt.Fprintf(out, "Downloading %s\n", name)
			dest, err := mgr.Ensure(ctx, name, src, downloadProgress(out))
			_, _ = fmt.Fprintln(out)
			if err != nil {
				return err
			}
			slog.Info("model_pulled", slog.String("path", dest))
			_, _ = fmt.Fprintf(out, "Saved %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelURL, "url", "", "Download from this URL instead of embeddings.model_url")
	return cmd
}

// modelDestination picks the directory and file name a model is saved as.
func modelDestination(modelPath, src string) (dir, name string, err error) {
	if modelPath != "" {
		return filepath.Dir(modelPath), filepath.Base(modelPath), nil
	}
	if src == "" {
		return "", "", fmt.Errorf("no model to pull: set embeddings.model_path or embeddings.model_url")
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", "", fmt.Errorf("invalid model URL %q: %w", src, err)
	}
	name = path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", "", fmt.Errorf("cannot derive a file name from %q; set embeddings.model_path", src)
	}
	return embed.DefaultModelsDir(), name, nil
}

// downloadProgress redraws a single progress line in place.
func downloadProgress(w io.Writer) embed.ProgressFunc {
	last := -1
	return func(downloaded, total int64) {
		if total <= 0 {
			_, _ = fmt.Fprintf(w, "\r  %s", ui.FormatBytes(downloaded))
			return
		}
		pct := int(downloaded * 100 / total)
		if pct == last {
			return
		}
		last = pct
		_, _ = fmt.Fprintf(w, "\r  %3d%%  %s / %s", pct, ui.FormatBytes(downloaded), ui.FormatBytes(total))
	}
}
