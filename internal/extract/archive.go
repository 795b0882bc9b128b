package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// containerPath is where the EPUB container names its package descriptor.
const containerPath = "META-INF/container.xml"

// ArchiveText is the text assembled from an archive.
type ArchiveText struct {
	Text      string
	WordCount int

	// Parts is the number of manifest entries that contributed text.
	Parts int

	// Manifest is the parsed package descriptor.
	Manifest *model.ArchiveManifest

	// Warnings lists the entries that were skipped, as *ExtractionError.
	Warnings []error
}

type opfPackage struct {
	Manifest *struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine *struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type ocfContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// ExtractArchive assembles the text of an EPUB-style archive.
//
// The package descriptor is found by its ".opf" extension wherever it sits
// in the archive (the container's rootfile wins when it names one that
// exists). Parts are visited strictly in spine order; zip order is never
// used. Cover, title page, imprint, colophon and table of contents parts are
// skipped. A part listed in the manifest but absent from the archive adds a
// warning and is skipped.
//
// It returns *ParseError when the archive or its descriptor is unusable
// and *ExtractionError{EmptyContent} when no part yielded text.
func ExtractArchive(data []byte) (*ArchiveText, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Kind: MalformedContainer, Err: err}
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	opfPath := locateDescriptor(zr, files)
	if opfPath == "" {
		return nil, &ParseError{Kind: MalformedManifest, Err: errors.New("no package descriptor (.opf) in archive")}
	}

	manifest, err := readManifest(files[opfPath], opfPath)
	if err != nil {
		return nil, err
	}

	result := &ArchiveText{Manifest: manifest}
	var parts []string
	for _, href := range manifest.ReadingOrder() {
		name := partPath(manifest.BaseDir, href)
		f, ok := files[name]
		if !ok {
			result.Warnings = append(result.Warnings, &ExtractionError{Kind: MissingEntry, Path: name})
			continue
		}
		text, err := partText(f)
		if err != nil {
			result.Warnings = append(result.Warnings, err)
			continue
		}
		if text == "" {
			result.Warnings = append(result.Warnings, &ExtractionError{Kind: EmptyContent, Path: name})
			continue
		}
		parts = append(parts, text)
	}

	if len(parts) == 0 {
		return result, &ExtractionError{Kind: EmptyContent}
	}
	result.Text = strings.Join(parts, "\n\n")
	result.WordCount = model.WordCount(result.Text)
	result.Parts = len(parts)
	return result, nil
}

// locateDescriptor returns the internal path of the package descriptor.
func locateDescriptor(zr *zip.Reader, files map[string]*zip.File) string {
	if f, ok := files[containerPath]; ok {
		if raw, err := readZipFile(f); err == nil {
			var c ocfContainer
			if xml.Unmarshal(raw, &c) == nil {
				for _, rf := range c.Rootfiles {
					if _, ok := files[rf.FullPath]; ok {
						return rf.FullPath
					}
				}
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name
		}
	}
	return ""
}

func readManifest(f *zip.File, opfPath string) (*model.ArchiveManifest, error) {
	raw, err := readZipFile(f)
	if err != nil {
		return nil, &ParseError{Kind: MalformedManifest, Path: opfPath, Err: err}
	}

	var pkg opfPackage
	if err := xml.Unmarshal(raw, &pkg); err != nil {
		return nil, &ParseError{Kind: MalformedManifest, Path: opfPath, Err: err}
	}
	if pkg.Manifest == nil || pkg.Spine == nil {
		return nil, &ParseError{Kind: MalformedManifest, Path: opfPath, Err: errors.New("missing manifest or spine")}
	}

	items := make([]model.ManifestItem, 0, len(pkg.Manifest.Items))
	for _, it := range pkg.Manifest.Items {
		if it.ID == "" || it.Href == "" {
			continue
		}
		items = append(items, model.ManifestItem{ID: it.ID, Href: it.Href})
	}
	spine := make([]string, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		spine = append(spine, ref.IDRef)
	}

	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}
	return model.NewArchiveManifest(baseDir, items, spine), nil
}

// partPath resolves a manifest href to a zip entry name.
func partPath(baseDir, href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if baseDir == "" {
		return path.Clean(href)
	}
	return path.Join(baseDir, href)
}

// partText returns the body text of one content document, each text piece
// trimmed and joined with newlines.
func partText(f *zip.File) (string, error) {
	raw, err := readZipFile(f)
	if err != nil {
		return "", &ParseError{Kind: MalformedMarkup, Path: f.Name, Err: err}
	}
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", &ParseError{Kind: MalformedMarkup, Path: f.Name, Err: err}
	}
	body := findFirst(root, "body")
	if body == nil {
		return "", &ExtractionError{Kind: EmptyContent, Path: f.Name}
	}
	return textContent(body, "\n", true), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
