package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanfind/internal/store"
)

// FormatResults formats ranked files as markdown under a "## <title>" header.
func FormatResults(title, query string, results []*store.SearchResult) string {
	valid := filterValidResults(results)

	if len(valid) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s Results for \"%s\"\n\n", title, query)
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range valid {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// filterValidResults removes results without an entity.
func filterValidResults(results []*store.SearchResult) []*store.SearchResult {
	valid := make([]*store.SearchResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Entity != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

func formatResult(sb *strings.Builder, num int, r *store.SearchResult) {
	e := r.Entity
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, e.Name, r.Score)
	fmt.Fprintf(sb, "- **Path:** `%s`\n", e.Path)
	fmt.Fprintf(sb, "- **Type:** %s (%s)\n", e.Type, MimeTypeForPath(e.Path))
	fmt.Fprintf(sb, "- **Size:** %s\n", formatBytes(e.Size))
	fmt.Fprintf(sb, "- **Modified:** %s\n\n", e.ModTime.Format("2006-01-02 15:04"))
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
