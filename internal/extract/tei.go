package extract

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// TEIHeader is the bibliographic part of a TEI document header.
type TEIHeader struct {
	Title  string
	Author string
}

type teiDocument struct {
	Header struct {
		FileDesc struct {
			TitleStmt struct {
				Titles  []teiText `xml:"title"`
				Authors []teiText `xml:"author"`
			} `xml:"titleStmt"`
		} `xml:"fileDesc"`
	} `xml:"teiHeader"`
}

// teiText collects the character data of an element and its children.
type teiText struct {
	Inner string `xml:",innerxml"`
}

var markupTag = regexp.MustCompile(`<[^>]*>`)

func (t teiText) text() string {
	return collapseSpace(xmlUnescape(markupTag.ReplaceAllString(t.Inner, " ")))
}

// ParseTEIHeader reads the first titleStmt title and author of a TEI
// document. Either may be empty.
func ParseTEIHeader(data []byte) (TEIHeader, error) {
	var doc teiDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return TEIHeader{}, &ParseError{Kind: MalformedMarkup, Err: err}
	}

	var h TEIHeader
	stmt := doc.Header.FileDesc.TitleStmt
	for _, t := range stmt.Titles {
		if s := t.text(); s != "" {
			h.Title = s
			break
		}
	}
	for _, a := range stmt.Authors {
		if s := a.text(); s != "" {
			h.Author = s
			break
		}
	}
	return h, nil
}

var (
	looseTitle  = regexp.MustCompile(`(?is)<title(?:\s[^>]*)?>(.*?)</title>`)
	looseAuthor = regexp.MustCompile(`(?is)<author(?:\s[^>]*)?>(.*?)</author>`)
)

// LooseTEIHeader recovers title and author from documents that do not
// parse as XML (entity declarations, truncated files). It takes the first
// <title> and <author> elements anywhere in the text.
func LooseTEIHeader(data []byte) TEIHeader {
	var h TEIHeader
	if m := looseTitle.FindSubmatch(data); m != nil {
		h.Title = collapseSpace(xmlUnescape(markupTag.ReplaceAllString(string(m[1]), " ")))
	}
	if m := looseAuthor.FindSubmatch(data); m != nil {
		h.Author = collapseSpace(xmlUnescape(markupTag.ReplaceAllString(string(m[1]), " ")))
	}
	return h
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func xmlUnescape(s string) string {
	return xmlEntities.Replace(s)
}
