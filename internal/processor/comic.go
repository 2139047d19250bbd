package processor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tanaste/tanaste/internal/types"
)

// ComicProcessor handles comic archives. Zip-based archives (.cbz) are
// parsed for an embedded ComicInfo.xml; rar-based ones (.cbr) fall back to
// filename-derived claims.
type ComicProcessor struct{}

// NewComicProcessor returns the comic-archive processor.
func NewComicProcessor() *ComicProcessor {
	return &ComicProcessor{}
}

// Name implements Processor.
func (p *ComicProcessor) Name() string { return "comic" }

// CanHandle implements Processor.
func (p *ComicProcessor) CanHandle(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext == ".cbz" || ext == ".cbr"
}

// comicInfo is the de-facto ComicRack metadata schema.
type comicInfo struct {
	Title     string `xml:"Title"`
	Series    string `xml:"Series"`
	Number    string `xml:"Number"`
	Year      int    `xml:"Year"`
	Writer    string `xml:"Writer"`
	Publisher string `xml:"Publisher"`
	Summary   string `xml:"Summary"`
}

// Process implements Processor.
func (p *ComicProcessor) Process(ctx context.Context, filePath string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".cbr" {
		// No rar support; derive what we can from the filename.
		res := filenameResult(filePath)
		res.DetectedType = string(types.FormatCbr)
		return res, nil
	}

	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return &Result{
			DetectedType:  string(types.FormatCbz),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("not a zip archive: %v", err),
		}, nil
	}
	defer func() { _ = zr.Close() }()

	res := &Result{DetectedType: string(types.FormatCbz)}

	var infoName string
	for _, f := range zr.File {
		if strings.EqualFold(filepath.Base(f.Name), "ComicInfo.xml") {
			infoName = f.Name
			break
		}
	}
	if infoName == "" {
		// Valid archive without metadata; fall back to the filename.
		fb := filenameResult(filePath)
		res.Claims = fb.Claims
		return res, nil
	}

	data, err := readZipFile(&zr.Reader, infoName)
	if err != nil {
		return &Result{
			DetectedType:  string(types.FormatCbz),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("unreadable ComicInfo.xml: %v", err),
		}, nil
	}
	var info comicInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return &Result{
			DetectedType:  string(types.FormatCbz),
			IsCorrupt:     true,
			CorruptReason: fmt.Sprintf("malformed ComicInfo.xml: %v", err),
		}, nil
	}

	addClaim := func(key, value string, confidence float64) {
		value = strings.TrimSpace(value)
		if value != "" {
			res.Claims = append(res.Claims, ExtractedClaim{Key: key, Value: value, Confidence: confidence})
		}
	}
	addClaim(types.KeyTitle, info.Title, 0.9)
	addClaim(types.KeySeries, info.Series, 0.9)
	addClaim(types.KeySeriesPosition, info.Number, 0.8)
	if info.Year > 0 {
		addClaim(types.KeyYear, strconv.Itoa(info.Year), 0.8)
	}
	addClaim(types.KeyAuthor, info.Writer, 0.8)
	addClaim(types.KeyPublisher, info.Publisher, 0.8)
	addClaim(types.KeyDescription, info.Summary, 0.7)

	if len(res.Claims) == 0 {
		fb := filenameResult(filePath)
		res.Claims = fb.Claims
	}
	return res, nil
}
