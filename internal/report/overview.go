package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Defaults for manifest entries with empty fields.
const (
	UnknownAuthor     = "Unknown Author"
	UnknownTitle      = "Unknown Title"
	UncategorizedRepo = "Uncategorized"
)

// topAuthors is the number of rows in the top authors table.
const topAuthors = 10

// WriteOverview writes a Markdown overview of manifest under the heading
// "<name>: Content Overview". Works are grouped by repository, then by
// author, with repositories and authors sorted and each author's titles
// sorted and deduplicated.
func WriteOverview(w io.Writer, name string, manifest *model.DirectoryManifest) error {
	tree := make(map[string]map[string][]string)
	authorCounts := make(map[string]int)
	for _, f := range manifest.Files {
		repo := orDefault(f.Repo, UncategorizedRepo)
		author := orDefault(f.Author, UnknownAuthor)
		title := orDefault(f.Title, UnknownTitle)

		if tree[repo] == nil {
			tree[repo] = make(map[string][]string)
		}
		tree[repo][author] = append(tree[repo][author], title)
		authorCounts[author]++
	}

	md := markdown.NewMarkdown(w)
	md.H1(name + ": Content Overview")
	md.PlainText("")
	md.PlainTextf("**Total Files:** %d", len(manifest.Files))
	md.PlainText("")

	writeRepositoryTable(md, manifest)
	writeTopAuthors(md, authorCounts)

	repos := make([]string, 0, len(tree))
	for repo := range tree {
		repos = append(repos, repo)
	}
	slices.Sort(repos)

	for _, repo := range repos {
		md.H2(repo)
		authors := make([]string, 0, len(tree[repo]))
		for author := range tree[repo] {
			authors = append(authors, author)
		}
		slices.Sort(authors)

		for _, author := range authors {
			titles := slices.Clone(tree[repo][author])
			slices.Sort(titles)
			titles = slices.Compact(titles)

			md.H3(author)
			md.BulletList(titles...)
			md.PlainText("")
		}
		md.HorizontalRule()
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}
	return nil
}

func writeRepositoryTable(md *markdown.Markdown, manifest *model.DirectoryManifest) {
	if len(manifest.Repositories) == 0 {
		return
	}
	names := make([]string, 0, len(manifest.Repositories))
	for name := range manifest.Repositories {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(manifest.Repositories[name].Count)})
	}
	md.H2("Repositories")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Repository", "Files"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeTopAuthors(md *markdown.Markdown, counts map[string]int) {
	type authorCount struct {
		name  string
		count int
	}
	list := make([]authorCount, 0, len(counts))
	for name, n := range counts {
		if name == UnknownAuthor {
			continue
		}
		list = append(list, authorCount{name, n})
	}
	if len(list) == 0 {
		return
	}
	slices.SortFunc(list, func(a, b authorCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	if len(list) > topAuthors {
		list = list[:topAuthors]
	}

	rows := make([][]string, len(list))
	for i, a := range list {
		rows[i] = []string{a.name, strconv.Itoa(a.count)}
	}
	md.H2("Top Authors")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Author", "Files"},
		Rows:   rows,
	})
	md.PlainText("")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
