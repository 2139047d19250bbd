// Package sidecar reads and writes the tanaste.xml files that make the
// library tree self-describing, and rebuilds database state from them.
package sidecar

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/tanaste/tanaste/internal/types"
)

// FileName is the sidecar filename used in every described folder.
const FileName = "tanaste.xml"

// CoverFileName is the default relative cover path. Cover art is always a
// separate file on disk, never embedded in the sidecar or database.
const CoverFileName = "cover.jpg"

// sidecarVersion is written into every root element.
const sidecarVersion = "1.0"

// HubSidecar is the <tanaste-hub> document placed in a hub folder.
type HubSidecar struct {
	XMLName       xml.Name `xml:"tanaste-hub"`
	Version       string   `xml:"version,attr"`
	DisplayName   string   `xml:"display-name"`
	Year          string   `xml:"year,omitempty"`
	ExternalID    string   `xml:"external-id,omitempty"`
	Franchise     string   `xml:"franchise,omitempty"`
	LastOrganized string   `xml:"last-organized"`
}

// LockedClaim is one user-lock entry persisted in an edition sidecar.
type LockedClaim struct {
	Key      string `xml:"key,attr"`
	Value    string `xml:"value,attr"`
	LockedAt string `xml:"locked-at,attr"`
}

// EditionSidecar is the <tanaste-edition> document placed in an edition
// folder. The content hash is the asset's permanent identity and is how
// the scanner reattaches the folder to its database row.
type EditionSidecar struct {
	XMLName       xml.Name      `xml:"tanaste-edition"`
	Version       string        `xml:"version,attr"`
	Title         string        `xml:"title,omitempty"`
	Author        string        `xml:"author,omitempty"`
	MediaType     string        `xml:"media-type,omitempty"`
	ISBN          string        `xml:"isbn,omitempty"`
	ASIN          string        `xml:"asin,omitempty"`
	ContentHash   string        `xml:"content-hash"`
	CoverPath     string        `xml:"cover-path"`
	Claims        []LockedClaim `xml:"claims>claim"`
	LastOrganized string        `xml:"last-organized"`
}

// NewHubSidecar builds a sidecar from a hub row.
func NewHubSidecar(hub *types.Hub, organizedAt time.Time) *HubSidecar {
	return &HubSidecar{
		Version:       sidecarVersion,
		DisplayName:   hub.DisplayName,
		Year:          hub.Year,
		ExternalID:    hub.ExternalID,
		Franchise:     hub.Franchise,
		LastOrganized: types.FormatTime(organizedAt),
	}
}

func marshalSidecar(v interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteHub writes the hub sidecar into dir atomically.
func WriteHub(dir string, sc *HubSidecar) error {
	if sc.Version == "" {
		sc.Version = sidecarVersion
	}
	data, err := marshalSidecar(sc)
	if err != nil {
		return fmt.Errorf("sidecar: encode hub: %w", err)
	}
	return writeAtomic(filepath.Join(dir, FileName), data)
}

// WriteEdition writes the edition sidecar into dir atomically.
func WriteEdition(dir string, sc *EditionSidecar) error {
	if sc.Version == "" {
		sc.Version = sidecarVersion
	}
	if sc.CoverPath == "" {
		sc.CoverPath = CoverFileName
	}
	data, err := marshalSidecar(sc)
	if err != nil {
		return fmt.Errorf("sidecar: encode edition: %w", err)
	}
	return writeAtomic(filepath.Join(dir, FileName), data)
}

// WriteCover writes cover bytes next to the sidecar atomically.
func WriteCover(dir string, cover []byte) error {
	return writeAtomic(filepath.Join(dir, CoverFileName), cover)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("sidecar: mkdir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("sidecar: write %s: %w", path, err)
	}
	return nil
}

// rootKind probes a sidecar file's root element name.
type rootKind int

const (
	rootUnknown rootKind = iota
	rootHub
	rootEdition
)

func probeRoot(data []byte) rootKind {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return rootUnknown
		}
		if start, ok := tok.(xml.StartElement); ok {
			switch start.Name.Local {
			case "tanaste-hub":
				return rootHub
			case "tanaste-edition":
				return rootEdition
			default:
				return rootUnknown
			}
		}
	}
}

// ReadHub parses a hub sidecar file.
func ReadHub(path string) (*HubSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc HubSidecar
	if err := xml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("sidecar: parse hub %s: %w", path, err)
	}
	return &sc, nil
}

// ReadEdition parses an edition sidecar file.
func ReadEdition(path string) (*EditionSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc EditionSidecar
	if err := xml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("sidecar: parse edition %s: %w", path, err)
	}
	return &sc, nil
}
