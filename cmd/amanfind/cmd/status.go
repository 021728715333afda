package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the index:
  - Number of indexed files, by type, and their total size
  - How many files carry text and image embeddings
  - The last indexing run and its outcome
  - Which embedding providers are configured and whether their models exist`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, cfg, engineOptions{mustExist: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	info, err := collectStatus(ctx, cfg, eng.store)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), !ui.IsTTY(cmd.OutOrStdout()))
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config, st *store.Store) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		StorePath:     st.Path(),
		SchemaVersion: st.Version(),
		ByType:        make(map[string]int),
	}

	var err error
	if info.Files, err = st.Count(ctx); err != nil {
		return info, err
	}
	if info.TotalBytes, err = st.TotalSize(ctx); err != nil {
		return info, err
	}
	emb, err := st.EmbeddingStats(ctx)
	if err != nil {
		return info, err
	}
	info.WithText, info.WithImage = emb.WithText, emb.WithImage

	byType, err := st.CountByType(ctx)
	if err != nil {
		return info, err
	}
	for t, n := range byType {
		info.ByType[string(t)] = n
	}

	if fi, err := os.Stat(st.Path()); err == nil {
		info.StoreSize = fi.Size()
	}

	run, err := st.LastRun(ctx)
	if err != nil {
		return info, err
	}
	if run != nil {
		info.LastRun = &ui.RunStatus{
			Status:     run.Status,
			Roots:      run.Roots,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Indexed:    run.Indexed,
			Skipped:    run.Skipped,
			Failed:     run.Failed,
		}
	}

	info.TextModel = textModelStatus(cfg)
	info.ImageModel = imageModelStatus(cfg)
	return info, nil
}

// textModelStatus reports the configured text provider without loading it.
// Native models are "missing" until their file exists.
func textModelStatus(cfg *config.Config) ui.ModelStatus {
	e := cfg.Embeddings
	ms := ui.ModelStatus{Provider: strings.ToLower(e.Provider), Model: e.Model, Status: "ready"}
	switch ms.Provider {
	case "stub":
		ms.Model = ""
	case "native":
		ms.Model = e.ModelPath
		ms.Status = fileStatus(e.ModelPath)
	}
	return ms
}

func imageModelStatus(cfg *config.Config) ui.ModelStatus {
	im := cfg.Images
	ms := ui.ModelStatus{Provider: strings.ToLower(im.Provider), Status: "ready"}
	if !im.Enabled {
		ms.Status = "disabled"
		return ms
	}
	if ms.Provider == "native" {
		ms.Model = im.ModelPath
		ms.Status = fileStatus(im.ModelPath)
	}
	return ms
}

func fileStatus(path string) string {
	if path == "" {
		return "missing"
	}
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return "missing"
	case err != nil:
		return "error"
	case fi.Size() == 0:
		return "missing"
	default:
		return "ready"
	}
}
