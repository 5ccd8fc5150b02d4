package config

import (
	"os"
	"path"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CrawlFilters holds the keyword and extension sets the crawler consults
// before enqueueing a discovered link. Fields left empty in a user-provided
// file fall back to the built-in defaults.
type CrawlFilters struct {
	// DocKeywords accept a URL path regardless of crawl depth.
	DocKeywords []string `yaml:"doc_keywords"`

	// IgnoreKeywords reject a URL path outright (marketing, legal, auth, ...).
	IgnoreKeywords []string `yaml:"ignore_keywords"`

	// IgnoreExtensions reject URL paths ending in non-document payloads.
	IgnoreExtensions []string `yaml:"ignore_extensions"`
}

// DefaultCrawlFilters returns the built-in filter sets.
func DefaultCrawlFilters() *CrawlFilters {
	return &CrawlFilters{
		DocKeywords: []string{
			"/docs", "/doc/", "/documentation", "/guide", "/guides",
			"/reference", "/manual", "/tutorial", "/tutorials", "/learn",
			"/handbook", "/api/", "/getting-started", "/quickstart",
			"/faq", "/examples", "/how-to", "/knowledge-base", "/help",
		},
		IgnoreKeywords: []string{
			"marketing", "pricing", "legal", "privacy", "terms", "cookie",
			"blog", "careers", "jobs", "login", "signin", "sign-in",
			"signup", "sign-up", "register", "logout", "account",
			"billing", "checkout", "cart", "contact", "press", "events",
			"webinar", "sales", "partners", "customers", "case-stud",
			"testimonial", "investors", "brand", "affiliate", "advertise",
			"twitter", "facebook", "linkedin", "youtube", "instagram",
		},
		IgnoreExtensions: []string{
			".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".rar", ".7z",
			".exe", ".msi", ".dmg", ".pkg", ".deb", ".rpm", ".apk",
			".jar", ".bin", ".iso",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
			".bmp", ".mp3", ".wav", ".ogg", ".mp4", ".webm", ".avi",
			".mov", ".mkv", ".pdf",
			".woff", ".woff2", ".ttf", ".otf", ".eot",
			".css", ".js", ".mjs", ".map", ".json", ".xml", ".yaml",
			".yml", ".csv",
			".go", ".py", ".rb", ".java", ".c", ".cpp", ".h", ".rs",
			".swift", ".kt", ".cs", ".php", ".sh",
		},
	}
}

// LoadCrawlFilters reads a YAML filter file and merges it over the defaults.
// An empty path returns the defaults unchanged. Environment references in
// the file use {{.VAR_NAME}} template syntax (see ExpandEnv).
func LoadCrawlFilters(filePath string) (*CrawlFilters, error) {
	defaults := DefaultCrawlFilters()
	if filePath == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, NewLoadError(filePath, err)
	}

	var user CrawlFilters
	if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
		return nil, NewLoadError(filePath, ErrInvalidYAML)
	}

	// Fields the user left empty fall back to the built-in sets.
	if err := mergo.Merge(&user, defaults); err != nil {
		return nil, NewLoadError(filePath, err)
	}
	return &user, nil
}

// MatchesDocKeyword reports whether the URL path contains any doc keyword.
func (f *CrawlFilters) MatchesDocKeyword(urlPath string) bool {
	return containsAny(strings.ToLower(urlPath), f.DocKeywords)
}

// MatchesIgnoreKeyword reports whether the URL path contains any ignore keyword.
func (f *CrawlFilters) MatchesIgnoreKeyword(urlPath string) bool {
	return containsAny(strings.ToLower(urlPath), f.IgnoreKeywords)
}

// HasIgnoredExtension reports whether the URL path ends in an ignored extension.
func (f *CrawlFilters) HasIgnoredExtension(urlPath string) bool {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return false
	}
	for _, ignored := range f.IgnoreExtensions {
		if ext == ignored {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

var localeSegment = regexp.MustCompile(`^[a-z]{2}(?:-[a-z]{2})?$`)

// HasNonEnglishLocale reports whether any non-terminal URL path segment
// looks like a locale code other than English ("en", "en-us", ...).
// Terminal segments never count: "/ja/docs" is a locale path, "/docs/ja"
// is not.
func HasNonEnglishLocale(urlPath string) bool {
	segments := strings.Split(urlPath, "/")
	last := len(segments) - 1
	for i, seg := range segments {
		if i == last && seg != "" {
			break
		}
		if seg == "" {
			continue
		}
		if localeSegment.MatchString(seg) && !strings.HasPrefix(seg, "en") {
			return true
		}
	}
	return false
}
