package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Source kinds.
const (
	// KindCrawl is a link-structured archive walked by the frontier.
	KindCrawl = "crawl"

	// KindCatalog is a paginated catalog whose entries point at archives.
	KindCatalog = "catalog"
)

// Defaults for crawl sources. They describe a static, old-fashioned text
// archive laid out as tradition index, work index and chapter pages.
const (
	// DefaultMinDelay and DefaultMaxDelay bound the jittered delay in front
	// of every request.
	DefaultMinDelay = 3 * time.Second
	DefaultMaxDelay = 5 * time.Second

	// DefaultPauseEvery is how many authorizations pass between courtesy
	// pauses. DefaultPauseDuration is how long each pause lasts.
	DefaultPauseEvery    = 100
	DefaultPauseDuration = 10 * time.Second

	// DefaultMetadataWindow is how many leading characters of a leaf page
	// are searched for translator and year credits.
	DefaultMetadataWindow = 5000
)

// SourceConfig describes how to harvest one source.
type SourceConfig struct {
	// Name is written into every record's source field.
	Name string `yaml:"name,omitempty"`

	// Kind is KindCrawl or KindCatalog. Empty means KindCrawl.
	Kind string `yaml:"kind,omitempty"`

	// StartURLs seed the frontier (crawl) or the first listing page
	// (catalog).
	StartURLs []string `yaml:"startURLs,omitempty"`

	// AllowedHosts limits the crawl. Empty means the hosts of StartURLs.
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`

	// MaxDepth limits discovery depth from the start URLs. Zero means no limit.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// RoleRules map a discovered link's path to a role. First match wins.
	RoleRules []RoleRule `yaml:"roleRules,omitempty"`

	// ExcludeLinks are href or link-text substrings never followed
	// (navigation, search, purchase, help).
	ExcludeLinks []string `yaml:"excludeLinks,omitempty"`

	// IgnorePatterns are URL path globs never followed.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// ContentExclusions remove elements from leaf pages before text
	// extraction.
	ContentExclusions []ElementRule `yaml:"contentExclusions,omitempty"`

	// MinDelay and MaxDelay bound the jittered per-request delay.
	MinDelay time.Duration `yaml:"minDelay,omitempty"`
	MaxDelay time.Duration `yaml:"maxDelay,omitempty"`

	// PauseEvery and PauseDuration define the courtesy pause cadence.
	PauseEvery    int           `yaml:"pauseEvery,omitempty"`
	PauseDuration time.Duration `yaml:"pauseDuration,omitempty"`

	// Cookie is an HTTP cookie sent with every request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnoreRobots disables the robots.txt check. Like the other boolean
	// switches it is a pointer: nil inherits, so a source can turn off what
	// the defaults turned on.
	IgnoreRobots *bool `yaml:"ignoreRobots,omitempty"`

	// MetadataWindow is how many leading characters of a leaf are searched
	// for translator and year credits.
	MetadataWindow int `yaml:"metadataWindow,omitempty"`

	// FollowLeaves makes leaf links found on index pages produce records.
	// Off by default: loose leaves on an index are usually commentary,
	// while works are reached through their work index.
	FollowLeaves *bool `yaml:"followLeaves,omitempty"`

	// PreferTextDownload makes leaf pages that offer a plain-text download
	// link fetch that file instead of scraping the page.
	PreferTextDownload *bool `yaml:"preferTextDownload,omitempty"`

	// StripGutenberg removes Project Gutenberg license envelopes from text.
	StripGutenberg *bool `yaml:"stripGutenberg,omitempty"`

	// Subjects are the catalog subjects to walk (catalog kind only).
	Subjects []string `yaml:"subjects,omitempty"`

	// SubjectURL is the listing URL template for a subject; "%s" is
	// replaced with the subject (catalog kind only).
	SubjectURL string `yaml:"subjectURL,omitempty"`

	// DedupCatalog is a catalog file from a higher-priority source. Works
	// whose title matches one of its titles are skipped.
	DedupCatalog string `yaml:"dedupCatalog,omitempty"`
}

// RoleRule maps link paths to roles.
//
// Design decision: Which path shapes are indexes, work indexes or leaves is
// a convention of each site's layout, so the mapping is data in the source
// configuration rather than thresholds in code.
type RoleRule struct {
	// Pattern is a glob matched against the URL path or its last segment
	// (see MatchPattern).
	Pattern string `yaml:"pattern"`

	// MinDepth and MaxDepth bound the path depth, the number of non-empty
	// path segments. MaxDepth 0 means no upper bound.
	MinDepth int `yaml:"minDepth,omitempty"`
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// Role assigned to matching links.
	Role model.Role `yaml:"role,omitempty"`

	// Skip drops matching links instead of assigning a role.
	Skip bool `yaml:"skip,omitempty"`
}

// Matches reports whether the rule applies to path.
func (r RoleRule) Matches(path string) bool {
	depth := PathDepth(path)
	if depth < r.MinDepth {
		return false
	}
	if r.MaxDepth > 0 && depth > r.MaxDepth {
		return false
	}
	return MatchPattern(r.Pattern, path)
}

// ResolveRole returns the role of the first rule matching path. ok is false
// when no rule matches or the matching rule is a skip rule.
func ResolveRole(rules []RoleRule, path string) (role model.Role, ok bool) {
	for _, rule := range rules {
		if !rule.Matches(path) {
			continue
		}
		if rule.Skip {
			return model.RoleIndex, false
		}
		return rule.Role, true
	}
	return model.RoleIndex, false
}

// PathDepth counts the non-empty segments of a URL path.
// "/hin/rigveda/index.htm" has depth 3.
func PathDepth(path string) int {
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		path = u.Path
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

// ElementRule removes HTML elements with a given tag and, optionally, class.
type ElementRule struct {
	Tag   string `yaml:"tag"`
	Class string `yaml:"class,omitempty"`
}

// Matches reports whether an element with tag and class attribute value
// classAttr is covered by the rule. An empty rule class matches any class.
func (r ElementRule) Matches(tag, classAttr string) bool {
	if !strings.EqualFold(r.Tag, tag) {
		return false
	}
	if r.Class == "" {
		return true
	}
	for _, c := range strings.Fields(classAttr) {
		if strings.EqualFold(c, r.Class) {
			return true
		}
	}
	return false
}

// DefaultRoleRules returns the rules for a tradition/work/chapter archive:
//   - a root-level index.htm is the site index and is skipped
//   - a second-level index.htm is a tradition index
//   - a deeper index.htm is a work's table of contents
//   - any other .htm or .txt page is a leaf
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Pattern: "*index.htm", MinDepth: 1, MaxDepth: 1, Skip: true},
		{Pattern: "*index.htm", MinDepth: 2, MaxDepth: 2, Role: model.RoleIndex},
		{Pattern: "*index.htm", MinDepth: 3, Role: model.RoleWorkIndex},
		{Pattern: "*.htm", Role: model.RoleLeaf},
		{Pattern: "*.txt", Role: model.RoleLeaf},
	}
}

// DefaultExcludeLinks returns the navigation and storefront link markers
// never followed.
func DefaultExcludeLinks() []string {
	return []string{"cdshop", "contact", "search", "faq", "cnote", "tos"}
}

// DefaultContentExclusions returns the element rules stripped from leaf
// pages before text extraction.
func DefaultContentExclusions() []ElementRule {
	return []ElementRule{
		{Tag: "table", Class: "nav"},
		{Tag: "table", Class: "header"},
		{Tag: "table", Class: "footer"},
		{Tag: "div", Class: "nav"},
		{Tag: "div", Class: "header"},
		{Tag: "div", Class: "footer"},
		{Tag: "script"},
		{Tag: "style"},
		{Tag: "noscript"},
	}
}

// DefaultSourceConfig returns the base every configured source is merged
// onto.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Kind:              KindCrawl,
		RoleRules:         DefaultRoleRules(),
		ExcludeLinks:      DefaultExcludeLinks(),
		ContentExclusions: DefaultContentExclusions(),
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		PauseEvery:        DefaultPauseEvery,
		PauseDuration:     DefaultPauseDuration,
		MetadataWindow:    DefaultMetadataWindow,
	}
}

// Hosts returns the hosts the crawl may visit, lowercased.
func (s SourceConfig) Hosts() []string {
	hosts := make([]string, 0, len(s.AllowedHosts)+len(s.StartURLs))
	seen := make(map[string]bool)
	add := func(h string) {
		h = strings.ToLower(h)
		if h != "" && !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	for _, h := range s.AllowedHosts {
		add(h)
	}
	if len(hosts) > 0 {
		return hosts
	}
	for _, raw := range s.StartURLs {
		if u, err := url.Parse(raw); err == nil {
			add(u.Host)
		}
	}
	return hosts
}

// Bool returns a pointer to v, for setting the switches of a SourceConfig.
func Bool(v bool) *bool {
	return &v
}

// RobotsIgnored reports whether the robots.txt check is disabled.
func (s SourceConfig) RobotsIgnored() bool {
	return s.IgnoreRobots != nil && *s.IgnoreRobots
}

// LeavesFollowed reports whether leaf links on index pages produce records.
func (s SourceConfig) LeavesFollowed() bool {
	return s.FollowLeaves != nil && *s.FollowLeaves
}

// TextDownloadPreferred reports whether plain-text downloads replace
// scraped leaf pages.
func (s SourceConfig) TextDownloadPreferred() bool {
	return s.PreferTextDownload != nil && *s.PreferTextDownload
}

// GutenbergStripped reports whether Project Gutenberg envelopes are removed.
func (s SourceConfig) GutenbergStripped() bool {
	return s.StripGutenberg != nil && *s.StripGutenberg
}

// IsCatalog reports whether the source is a catalog source.
func (s SourceConfig) IsCatalog() bool {
	return s.Kind == KindCatalog
}

// Validate checks a merged source configuration.
func (s SourceConfig) Validate() error {
	if len(s.StartURLs) == 0 && (!s.IsCatalog() || len(s.Subjects) == 0 || s.SubjectURL == "") {
		return ErrNoStartURL
	}
	if s.MinDelay < 0 || s.MaxDelay < 0 || s.MinDelay > s.MaxDelay {
		return ErrInvalidDelay
	}
	if s.PauseEvery < 0 || s.PauseDuration < 0 {
		return ErrInvalidPause
	}
	for _, r := range s.RoleRules {
		if r.Pattern == "" || (r.MaxDepth > 0 && r.MaxDepth < r.MinDepth) {
			return ErrInvalidRoleRule
		}
	}
	return nil
}

// mergeSource overlays the non-zero fields of override onto base. Boolean
// switches are taken from override whenever it sets them, false included.
func mergeSource(base, override SourceConfig) SourceConfig {
	result := base

	if override.Name != "" {
		result.Name = override.Name
	}
	if override.Kind != "" {
		result.Kind = override.Kind
	}
	if len(override.StartURLs) > 0 {
		result.StartURLs = override.StartURLs
	}
	if len(override.AllowedHosts) > 0 {
		result.AllowedHosts = override.AllowedHosts
	}
	if override.MaxDepth != 0 {
		result.MaxDepth = override.MaxDepth
	}
	if len(override.RoleRules) > 0 {
		result.RoleRules = override.RoleRules
	}
	if len(override.ExcludeLinks) > 0 {
		result.ExcludeLinks = override.ExcludeLinks
	}
	if len(override.IgnorePatterns) > 0 {
		result.IgnorePatterns = override.IgnorePatterns
	}
	if len(override.ContentExclusions) > 0 {
		result.ContentExclusions = override.ContentExclusions
	}
	if override.MinDelay != 0 {
		result.MinDelay = override.MinDelay
	}
	if override.MaxDelay != 0 {
		result.MaxDelay = override.MaxDelay
	}
	if override.PauseEvery != 0 {
		result.PauseEvery = override.PauseEvery
	}
	if override.PauseDuration != 0 {
		result.PauseDuration = override.PauseDuration
	}
	if override.Cookie != "" {
		result.Cookie = override.Cookie
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(override.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if override.MetadataWindow != 0 {
		result.MetadataWindow = override.MetadataWindow
	}
	if len(override.Subjects) > 0 {
		result.Subjects = override.Subjects
	}
	if override.SubjectURL != "" {
		result.SubjectURL = override.SubjectURL
	}
	if override.DedupCatalog != "" {
		result.DedupCatalog = override.DedupCatalog
	}

	if override.IgnoreRobots != nil {
		result.IgnoreRobots = override.IgnoreRobots
	}
	if override.FollowLeaves != nil {
		result.FollowLeaves = override.FollowLeaves
	}
	if override.PreferTextDownload != nil {
		result.PreferTextDownload = override.PreferTextDownload
	}
	if override.StripGutenberg != nil {
		result.StripGutenberg = override.StripGutenberg
	}

	return result
}
