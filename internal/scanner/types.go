// Package scanner discovers indexable files under a root and classifies
// them by extension. It owns the crawl policy (hidden files, size cutoff,
// glob excludes); the indexer decides what to do with each match.
package scanner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// FileInfo describes a file found during a crawl.
type FileInfo struct {
	Path     string // Absolute path
	Name     string // Base name
	Size     int64
	ModTime  time.Time
	Type     store.FileType
	Language string // go, python, markdown, ... ("" when unknown)
}

// DefaultMaxFileSize is the size cutoff used when a Policy leaves it zero.
const DefaultMaxFileSize = 100 * 1024 * 1024

// languageMap maps file extensions to languages of embeddable files.
var languageMap = map[string]string{
	// Go
	".go": "go",

	// JavaScript/TypeScript
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	// Python
	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	// JVM
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",

	// C family
	".c":   "c",
	".h":   "c",
	".cc":  "cpp",
	".cpp": "cpp",
	".cxx": "cpp",
	".hpp": "cpp",
	".cs":  "csharp",
	".m":   "objc",
	".mm":  "objc",

	// Others
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".lua":   "lua",
	".pl":    "perl",
	".r":     "r",
	".sql":   "sql",
	".zig":   "zig",

	// Web
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",
	".sass": "sass",
	".less": "less",
	".vue":  "vue",

	// Data/Config
	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".xml":        "xml",
	".ini":        "ini",
	".conf":       "config",
	".properties": "properties",
	".csv":        "csv",
	".tsv":        "csv",

	// Documentation
	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",
	".log":      "text",
	".tex":      "latex",
	".org":      "org",

	// Shell
	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",
	".fish": "shell",
	".ps1":  "powershell",
}

// specialFiles maps extensionless file names to languages.
var specialFiles = map[string]string{
	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",
	"Jenkinsfile": "groovy",
	"Gemfile":     "ruby",
	"Rakefile":    "ruby",
	"README":      "text",
	"LICENSE":     "text",
	"CHANGELOG":   "text",
}

// textLanguages are classified as text rather than code.
var textLanguages = map[string]bool{
	"markdown": true,
	"rst":      true,
	"text":     true,
	"latex":    true,
	"org":      true,
	"csv":      true,
}

// typeByExtension covers the metadata-only types.
var typeByExtension = map[string]store.FileType{
	// Documents
	".pdf":  store.FileTypeDocument,
	".doc":  store.FileTypeDocument,
	".docx": store.FileTypeDocument,
	".odt":  store.FileTypeDocument,
	".rtf":  store.FileTypeDocument,
	".xls":  store.FileTypeDocument,
	".xlsx": store.FileTypeDocument,
	".ods":  store.FileTypeDocument,
	".ppt":  store.FileTypeDocument,
	".pptx": store.FileTypeDocument,
	".odp":  store.FileTypeDocument,
	".epub": store.FileTypeDocument,
	".key":  store.FileTypeDocument,

	// Images outside the embeddable allow-list
	".svg":  store.FileTypeImage,
	".ico":  store.FileTypeImage,
	".heic": store.FileTypeImage,
	".heif": store.FileTypeImage,
	".raw":  store.FileTypeImage,
	".psd":  store.FileTypeImage,

	// Audio
	".mp3":  store.FileTypeAudio,
	".wav":  store.FileTypeAudio,
	".flac": store.FileTypeAudio,
	".aac":  store.FileTypeAudio,
	".ogg":  store.FileTypeAudio,
	".m4a":  store.FileTypeAudio,
	".aiff": store.FileTypeAudio,

	// Video
	".mp4":  store.FileTypeVideo,
	".mov":  store.FileTypeVideo,
	".mkv":  store.FileTypeVideo,
	".avi":  store.FileTypeVideo,
	".webm": store.FileTypeVideo,
	".m4v":  store.FileTypeVideo,
	".wmv":  store.FileTypeVideo,

	// Archives
	".zip": store.FileTypeArchive,
	".tar": store.FileTypeArchive,
	".gz":  store.FileTypeArchive,
	".tgz": store.FileTypeArchive,
	".bz2": store.FileTypeArchive,
	".xz":  store.FileTypeArchive,
	".7z":  store.FileTypeArchive,
	".rar": store.FileTypeArchive,
	".zst": store.FileTypeArchive,
	".dmg": store.FileTypeArchive,
	".iso": store.FileTypeArchive,
}

// DetectLanguage returns the language of an embeddable file, or "" when
// the extension is not a known text or code format.
func DetectLanguage(path string) string {
	name := filepath.Base(path)
	if lang, ok := specialFiles[name]; ok {
		return lang
	}
	return languageMap[strings.ToLower(filepath.Ext(name))]
}

// Classify returns the file type implied by the extension of path.
func Classify(path string) store.FileType {
	if embed.IsSupportedImage(path) {
		return store.FileTypeImage
	}
	if lang := DetectLanguage(path); lang != "" {
		if textLanguages[lang] {
			return store.FileTypeText
		}
		return store.FileTypeCode
	}
	if t, ok := typeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return store.FileTypeUnknown
}
