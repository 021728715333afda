package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/store"
)

type searchOutput struct {
	Query   string       `json:"query"`
	Results []resultJSON `json:"results"`
}

func decodeResults(t *testing.T, out string) searchOutput {
	t.Helper()
	var so searchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &so), out)
	return so
}

func indexedCorpus(t *testing.T) string {
	t.Helper()
	dir := newProject(t, map[string]string{
		"notes/budget.md": "quarterly budget review",
		"notes/trip.md":   "packing list for the mountains",
		"src/budget.go":   "package budget",
	})
	indexProject(t, dir)
	return dir
}

func TestSearchCmd_ExactContentRanksFirst(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	// When: searching for one file's exact content
	out, err := runCLI(t, "-p", dir, "search", "--json", "quarterly", "budget", "review")
	require.NoError(t, err)

	// Then: that file is the best match
	res := decodeResults(t, out)
	assert.Equal(t, "quarterly budget review", res.Query)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, filepath.Join(dir, "notes", "budget.md"), res.Results[0].Path)
	assert.InDelta(t, 1.0, res.Results[0].Score, 1e-4)
	assert.Len(t, res.Results, 3)
}

func TestSearchCmd_TypeAndDirFilters(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	// When: restricting to code files
	out, err := runCLI(t, "-p", dir, "search", "--json", "--type", "code", "budget")
	require.NoError(t, err)
	res := decodeResults(t, out)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "code", res.Results[0].Type)

	// And: restricting to the notes directory
	out, err = runCLI(t, "-p", dir, "search", "--json", "--dir", filepath.Join(dir, "notes"), "budget")
	require.NoError(t, err)
	res = decodeResults(t, out)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.Contains(t, r.Path, filepath.Join(dir, "notes"))
	}
}

func TestSearchCmd_LimitAndSort(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	out, err := runCLI(t, "-p", dir, "search", "--json", "--limit", "2", "--sort", "name", "anything")
	require.NoError(t, err)

	res := decodeResults(t, out)
	require.Len(t, res.Results, 2)
	assert.LessOrEqual(t, res.Results[0].Name, res.Results[1].Name)
}

func TestSearchCmd_TextOutput(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	out, err := runCLI(t, "-p", dir, "search", "packing list for the mountains")

	require.NoError(t, err)
	assert.Contains(t, out, " 1. 1.000  "+filepath.Join(dir, "notes", "trip.md"))
}

func TestSearchCmd_UnknownType(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	_, err := runCLI(t, "-p", dir, "search", "--type", "spreadsheet", "budget")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file type")
}

func TestSearchCmd_NoIndex(t *testing.T) {
	isolate(t)
	dir := newProject(t, nil)

	_, err := runCLI(t, "-p", dir, "search", "budget")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSimilarCmd_ExcludesSource(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)
	src := filepath.Join(dir, "notes", "budget.md")

	// When: finding files similar to an indexed file
	out, err := runCLI(t, "-p", dir, "similar", "--json", src)
	require.NoError(t, err)

	// Then: the others come back without the file itself
	res := decodeResults(t, out)
	assert.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.NotEqual(t, src, r.Path)
	}
}

func TestSimilarCmd_UnindexedFile(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	_, err := runCLI(t, "-p", dir, "similar", filepath.Join(dir, "missing.md"))

	assert.Error(t, err)
}

func TestVisualCmd_ArgumentValidation(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	_, err := runCLI(t, "-p", dir, "visual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, err = runCLI(t, "-p", dir, "visual", "--image", "cat.png", "a cat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestVisualCmd_ImagesDisabled(t *testing.T) {
	isolate(t)
	dir := indexedCorpus(t)

	// Images are off by default, so no image provider is loaded.
	_, err := runCLI(t, "-p", dir, "visual", "a red square")

	assert.Error(t, err)
}

func TestBuildSearchOptions(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Search.MaxResults = 7
	cfg.Search.MinScore = 0.2

	tests := []struct {
		name string
		in   searchOptions
		want search.Options
	}{
		{
			name: "config defaults",
			in:   searchOptions{minScore: -2},
			want: search.Options{MaxResults: 7, MinScore: 0.2, Descending: true},
		},
		{
			name: "flags override",
			in:   searchOptions{limit: 3, minScore: 0.5, types: []string{"Code", "text"}},
			want: search.Options{
				MaxResults: 3,
				MinScore:   0.5,
				Types:      []store.FileType{store.FileTypeCode, store.FileTypeText},
				Descending: true,
			},
		},
		{
			name: "name sorts ascending",
			in:   searchOptions{minScore: -2, sortBy: "name"},
			want: search.Options{MaxResults: 7, MinScore: 0.2, SortBy: search.SortName},
		},
		{
			name: "reverse flips",
			in:   searchOptions{minScore: -2, sortBy: "size", reverse: true},
			want: search.Options{MaxResults: 7, MinScore: 0.2, SortBy: search.SortSize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSearchOptions(cfg, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSearchOptions_BadSort(t *testing.T) {
	_, err := buildSearchOptions(config.NewConfig(), searchOptions{minScore: -2, sortBy: "colour"})
	assert.Error(t, err)
}
