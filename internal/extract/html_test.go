package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/config"
	"github.com/nao1215/corpuscrawl/internal/model"
)

func mustParse(t *testing.T, body, pageURL string) *Document {
	t.Helper()
	doc, err := ParseHTML([]byte(body), "text/html; charset=utf-8", pageURL)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return doc
}

// TestParseHTML tests title extraction and <base href> handling.
func TestParseHTML(t *testing.T) {
	t.Parallel()

	t.Run("title and base", func(t *testing.T) {
		t.Parallel()
		doc := mustParse(t, `<html><head><title>  The   Rig Veda </title><base href="https://mirror.example/texts/"></head><body><a href="a.htm">a</a></body></html>`,
			"https://sacred-texts.com/hin/rigveda/index.htm")

		if doc.Title != "The Rig Veda" {
			t.Errorf("expected collapsed title, got %q", doc.Title)
		}
		if got := doc.Resolve("a.htm").String(); got != "https://mirror.example/texts/a.htm" {
			t.Errorf("expected link resolved against base, got %q", got)
		}
	})

	t.Run("latin-1 content type is decoded", func(t *testing.T) {
		t.Parallel()
		body := []byte("<html><body><p>Caf\xe9</p></body></html>")
		doc, err := ParseHTML(body, "text/html; charset=iso-8859-1", "https://classics.mit.edu/a.html")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		leaf := LeafText(doc, LeafRules{})
		if leaf.Text != "Café" {
			t.Errorf("expected decoded text, got %q", leaf.Text)
		}
	})

	t.Run("invalid page URL", func(t *testing.T) {
		t.Parallel()
		_, err := ParseHTML([]byte("<p>x</p>"), "", "://bad")
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Kind != MalformedMarkup {
			t.Errorf("expected malformed-markup ParseError, got %v", err)
		}
	})
}

// TestResolve tests rejection of non-navigable references.
func TestResolve(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, "<p></p>", "https://sacred-texts.com/hin/index.htm")

	for _, href := range []string{"", "#top", "mailto:info@example.com", "javascript:void(0)", "ftp://x/y"} {
		if u := doc.Resolve(href); u != nil {
			t.Errorf("expected %q to be rejected, got %s", href, u)
		}
	}
	if got := doc.Resolve("rigveda/index.htm#c1").String(); got != "https://sacred-texts.com/hin/rigveda/index.htm" {
		t.Errorf("expected fragment to be dropped, got %q", got)
	}
}

// TestDiscoverIndex tests role assignment and filtering on index pages.
func TestDiscoverIndex(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><body>
<a href="/index.htm">Home</a>
<a href="hin/index.htm">Hinduism</a>
<a href="hin/index.htm#top">Hinduism again</a>
<a href="hin/rigveda/index.htm">Rig Veda</a>
<a href="cdshop/index.htm">Buy the CD</a>
<a href="hin/misc.htm">Miscellany</a>
<a href="faq.htm">Questions</a>
<a href="bud/index.htm">Search the archive</a>
<a href="logo.gif">logo</a>
<a href="mailto:x@y">mail</a>
</body></html>`, "https://sacred-texts.com/world.htm")

	rules := IndexRules{RoleRules: config.DefaultRoleRules(), ExcludeLinks: config.DefaultExcludeLinks()}
	got := DiscoverIndex(doc, rules)

	want := []model.Discovery{
		{Role: model.RoleIndex, URL: "https://sacred-texts.com/hin/index.htm"},
		{Role: model.RoleWorkIndex, URL: "https://sacred-texts.com/hin/rigveda/index.htm"},
		{Role: model.RoleLeaf, URL: "https://sacred-texts.com/hin/misc.htm"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d discoveries, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("discovery %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

// TestChapterLinks tests chapter discovery on a work index.
func TestChapterLinks(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><body>
<a href="../index.htm">Hinduism</a>
<a href="/index.htm">Home</a>
<a href="index.htm">Contents</a>
<a href="rv01001.htm">Hymn 1</a>
<a href="rv01002.htm">Hymn 2</a>
<a href="rv01001.htm#v3">Hymn 1, verse 3</a>
<a href="book2/rv02001.htm">Book 2</a>
<a href="https://elsewhere.example/hin/rigveda/x.htm">Mirror</a>
<a href="rvnotes.pdf">Notes</a>
<a href="rvsan.txt">Sanskrit text</a>
</body></html>`, "https://sacred-texts.com/hin/rigveda/index.htm")

	got := ChapterLinks(doc)
	want := []string{
		"https://sacred-texts.com/hin/rigveda/rv01001.htm",
		"https://sacred-texts.com/hin/rigveda/rv01002.htm",
		"https://sacred-texts.com/hin/rigveda/book2/rv02001.htm",
		"https://sacred-texts.com/hin/rigveda/rvsan.txt",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("expected chapters\n%s\ngot\n%s", strings.Join(want, "\n"), strings.Join(got, "\n"))
	}
}

// TestLeafText tests noise removal and inline metadata recovery.
func TestLeafText(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><head><title>Hymn I. Agni</title></head><body>`+
		`<div class="nav">Home | Next</div>`+
		`<table class="header wide"><tr><td>Sacred Texts</td></tr></table>`+
		`<h1>Hymn I. Agni</h1>`+
		`<p>Translated by Ralph T.H. Griffith</p>`+
		`<p>Published 1896</p>`+
		`<pre>==========
I Laud Agni, the chosen Priest</pre>`+
		`<div class="footer">Next: Hymn II</div>`+
		`<script>var tracker = 1;</script>`+
		`</body></html>`, "https://sacred-texts.com/hin/rigveda/rv01001.htm")

	leaf := LeafText(doc, LeafRules{Exclusions: config.DefaultContentExclusions()})

	for _, noise := range []string{"Home | Next", "Sacred Texts", "Next: Hymn II", "tracker", "=========="} {
		if strings.Contains(leaf.Text, noise) {
			t.Errorf("expected %q to be removed, got %q", noise, leaf.Text)
		}
	}
	if !strings.HasPrefix(leaf.Text, "Hymn I. Agni\n") {
		t.Errorf("expected heading first, got %q", leaf.Text)
	}
	if !strings.HasSuffix(leaf.Text, "I Laud Agni, the chosen Priest") {
		t.Errorf("expected verse last, got %q", leaf.Text)
	}
	if leaf.Meta.Translator != "Ralph T.H. Griffith" {
		t.Errorf("expected translator, got %q", leaf.Meta.Translator)
	}
	if leaf.Meta.Date != "1896" {
		t.Errorf("expected year 1896, got %q", leaf.Meta.Date)
	}
	if leaf.Title != "Hymn I. Agni" || leaf.Meta.Title != "Hymn I. Agni" {
		t.Errorf("expected title, got %q / %q", leaf.Title, leaf.Meta.Title)
	}
	if leaf.Meta.SourceURL != "https://sacred-texts.com/hin/rigveda/rv01001.htm" {
		t.Errorf("expected source URL, got %q", leaf.Meta.SourceURL)
	}
}

// TestCleanText tests border removal and blank line squeezing.
func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"equals border", "=====\nText", "Text"},
		{"dash border keeps rest of line", "-------Chapter", "Chapter"},
		{"short run kept", "--- aside", "--- aside"},
		{"border mid-line kept", "a ===== b", "a ===== b"},
		{"blank runs squeezed", "a\n\n\n \n\nb", "a\n\nb"},
		{"crlf normalized", "a\r\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestTextDownloadLink tests plain-text edition discovery.
func TestTextDownloadLink(t *testing.T) {
	t.Parallel()

	t.Run("download link found", func(t *testing.T) {
		t.Parallel()
		doc := mustParse(t, `<a href="republic.mb.txt">notes.txt</a> <a href="republic.mb.txt">Download: A text-only version is available for download.</a>`,
			"http://classics.mit.edu/Plato/republic.html")
		if got := TextDownloadLink(doc); got != "http://classics.mit.edu/Plato/republic.mb.txt" {
			t.Errorf("expected text link, got %q", got)
		}
	})

	t.Run("no text link", func(t *testing.T) {
		t.Parallel()
		doc := mustParse(t, `<a href="republic.1.i.html">Book I</a>`, "http://classics.mit.edu/Plato/republic.html")
		if got := TextDownloadLink(doc); got != "" {
			t.Errorf("expected no link, got %q", got)
		}
	})
}

// TestPlainText tests leaves built from text files.
func TestPlainText(t *testing.T) {
	t.Parallel()

	leaf := PlainText([]byte("THE REPUBLIC\r\n\r\nTranslated by Benjamin Jowett.\r\n\r\nSocrates: I went down yesterday"), "http://classics.mit.edu/Plato/republic.mb.txt", 0)
	if leaf.Meta.Translator != "Benjamin Jowett" {
		t.Errorf("expected translator without trailing period, got %q", leaf.Meta.Translator)
	}
	if strings.Contains(leaf.Text, "\r") {
		t.Error("expected carriage returns to be removed")
	}
}
