package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultManifest(t *testing.T) {
	m := Default()
	if m.Scoring.AutoLinkThreshold != 0.85 {
		t.Errorf("AutoLinkThreshold = %v, want 0.85", m.Scoring.AutoLinkThreshold)
	}
	if m.Scoring.ConflictThreshold != 0.60 {
		t.Errorf("ConflictThreshold = %v, want 0.60", m.Scoring.ConflictThreshold)
	}
	if m.Scoring.StaleClaimDecayDays != 90 {
		t.Errorf("StaleClaimDecayDays = %v, want 90", m.Scoring.StaleClaimDecayDays)
	}
	if m.Ingestion.OrganizationTemplate == "" {
		t.Error("no default organisation template")
	}
	if m.WorkerCount() < 1 {
		t.Error("WorkerCount must be positive")
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tanaste.json")
	doc := `{
		"databasePath": "/data/tanaste.db",
		"dataRoot": "/data",
		"ingestion": {
			"watchDirectory": "/drop",
			"libraryRoot": "/library",
			"autoOrganize": true,
			"writeBack": false,
			"settleMillis": 250,
			"workers": 2
		},
		"scoring": {"autoLinkThreshold": 0.9},
		"provider_endpoints": {"ebook-search": "https://search.example"},
		"providers": [
			{"name": "ebook-search", "enabled": true, "weight": 0.8,
			 "field_weights": {"cover": 0.95}},
			{"name": "disabled-one", "enabled": false, "weight": 0.9}
		]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o640); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.DatabasePath != "/data/tanaste.db" {
		t.Errorf("DatabasePath = %q", m.DatabasePath)
	}
	if m.Ingestion.SettleMillis != 250 || m.Ingestion.Workers != 2 {
		t.Errorf("ingestion = %+v", m.Ingestion)
	}
	if m.Scoring.AutoLinkThreshold != 0.9 {
		t.Errorf("AutoLinkThreshold = %v, want the override", m.Scoring.AutoLinkThreshold)
	}
	// Unset scoring keys keep their defaults.
	if m.Scoring.ConflictThreshold != 0.60 {
		t.Errorf("ConflictThreshold = %v, want the default", m.Scoring.ConflictThreshold)
	}
	if m.EndpointFor("ebook-search") != "https://search.example" {
		t.Errorf("EndpointFor = %q", m.EndpointFor("ebook-search"))
	}

	weights := m.ProviderWeights()
	if weights["ebook-search"] != 0.8 {
		t.Errorf("weight = %v, want 0.8", weights["ebook-search"])
	}
	if _, ok := weights["disabled-one"]; ok {
		t.Error("disabled provider must be omitted from weights")
	}
	fw := m.ProviderFieldWeights()
	if fw["ebook-search"]["cover"] != 0.95 {
		t.Errorf("field weight = %v, want 0.95", fw["ebook-search"]["cover"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing manifest")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	m := Default()
	m.Scoring.AutoLinkThreshold = 1.5
	if err := m.Validate(); err == nil {
		t.Error("threshold above 1 must be rejected")
	}
}
