package processor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/tanaste/tanaste/internal/types"
)

// EpubProcessor extracts embedded metadata from EPUB archives by reading
// the OPF package document.
type EpubProcessor struct{}

// NewEpubProcessor returns the ebook-archive processor.
func NewEpubProcessor() *EpubProcessor {
	return &EpubProcessor{}
}

// Name implements Processor.
func (p *EpubProcessor) Name() string { return "epub" }

// CanHandle implements Processor.
func (p *EpubProcessor) CanHandle(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".epub")
}

// container.xml points at the OPF package document.
type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata struct {
		Titles      []string `xml:"title"`
		Creators    []string `xml:"creator"`
		Dates       []string `xml:"date"`
		Publishers  []string `xml:"publisher"`
		Description string   `xml:"description"`
		Identifiers []struct {
			Scheme string `xml:"scheme,attr"`
			Value  string `xml:",chardata"`
		} `xml:"identifier"`
		Metas []struct {
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
}

// Process implements Processor. Archive or package failures are reported
// as corruption, never as an error.
func (p *EpubProcessor) Process(ctx context.Context, filePath string) (*Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return &Result{
			DetectedType:  string(types.FormatEpub),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("not a zip archive: %v", err),
		}, nil
	}
	defer func() { _ = zr.Close() }()

	var container epubContainer
	if err := readZipXML(&zr.Reader, "META-INF/container.xml", &container); err != nil {
		return &Result{
			DetectedType:  string(types.FormatEpub),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("missing container.xml: %v", err),
		}, nil
	}
	if len(container.Rootfiles) == 0 {
		return &Result{
			DetectedType:  string(types.FormatEpub),
			IsCorrupt:     true,
			CorruptReason: "container.xml has no rootfile",
		}, nil
	}

	opfPath := container.Rootfiles[0].FullPath
	var pkg opfPackage
	if err := readZipXML(&zr.Reader, opfPath, &pkg); err != nil {
		return &Result{
			DetectedType:  string(types.FormatEpub),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("unreadable package document: %v", err),
		}, nil
	}

	res := &Result{DetectedType: string(types.FormatEpub)}
	md := pkg.Metadata
	addClaim := func(key, value string, confidence float64) {
		value = strings.TrimSpace(value)
		if value != "" {
			res.Claims = append(res.Claims, ExtractedClaim{Key: key, Value: value, Confidence: confidence})
		}
	}

	if len(md.Titles) > 0 {
		addClaim(types.KeyTitle, md.Titles[0], 0.9)
	}
	if len(md.Creators) > 0 {
		addClaim(types.KeyAuthor, md.Creators[0], 0.9)
	}
	if len(md.Dates) > 0 {
		if year := extractYear(md.Dates[0]); year != "" {
			addClaim(types.KeyYear, year, 0.8)
		}
	}
	if len(md.Publishers) > 0 {
		addClaim(types.KeyPublisher, md.Publishers[0], 0.8)
	}
	addClaim(types.KeyDescription, md.Description, 0.7)
	for _, ident := range md.Identifiers {
		v := strings.TrimSpace(ident.Value)
		switch {
		case strings.EqualFold(ident.Scheme, "isbn") || looksLikeISBN(v):
			addClaim(types.KeyISBN, v, 0.9)
		case strings.EqualFold(ident.Scheme, "asin"):
			addClaim(types.KeyASIN, v, 0.9)
		}
	}

	res.Cover = p.extractCover(&zr.Reader, opfPath, &pkg)
	return res, nil
}

// extractCover finds the cover image via the EPUB3 cover-image property or
// the EPUB2 <meta name="cover"> convention. Best effort; nil when absent.
func (p *EpubProcessor) extractCover(zr *zip.Reader, opfPath string, pkg *opfPackage) []byte {
	coverHref := ""
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			coverHref = item.Href
			break
		}
	}
	if coverHref == "" {
		coverID := ""
		for _, m := range pkg.Metadata.Metas {
			if m.Name == "cover" {
				coverID = m.Content
				break
			}
		}
		for _, item := range pkg.Manifest.Items {
			if coverID != "" && item.ID == coverID {
				coverHref = item.Href
				break
			}
		}
	}
	if coverHref == "" {
		return nil
	}
	coverPath := path.Join(path.Dir(opfPath), coverHref)
	data, err := readZipFile(zr, coverPath)
	if err != nil {
		return nil
	}
	return data
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer func() { _ = rc.Close() }()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("entry %s not found", name)
}

func readZipXML(zr *zip.Reader, name string, v interface{}) error {
	data, err := readZipFile(zr, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

// extractYear pulls the leading four-digit year from a date string.
func extractYear(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 4 {
		year := s[:4]
		for _, r := range year {
			if r < '0' || r > '9' {
				return ""
			}
		}
		return year
	}
	return ""
}

func looksLikeISBN(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		} else if r != '-' && r != 'X' && r != 'x' {
			return false
		}
	}
	return digits == 10 || digits == 13
}
