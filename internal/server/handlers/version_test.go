package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
)

func TestVersionHandlerIncludesIdentityMetadata(t *testing.T) {
	SetVersionInfo("0.3.0", "abcd123", "2026-10-01T12:00:00Z")
	SetAppIdentity(&appidentity.Identity{
		BinaryName: "docgate",
	})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.App.Name != "docgate" {
		t.Fatalf("expected app name docgate, got %s", resp.App.Name)
	}

	if resp.App.Version != "0.3.0" {
		t.Fatalf("expected version 0.3.0, got %s", resp.App.Version)
	}

	if resp.App.Commit != "abcd123" {
		t.Fatalf("expected commit abcd123, got %s", resp.App.Commit)
	}

	if resp.Dependencies.Gofulmen == "" || resp.Dependencies.Crucible == "" {
		t.Fatal("expected dependency versions to be populated")
	}
}

func TestCurrentVersionFallsBackToExecutableName(t *testing.T) {
	SetAppIdentity(nil)
	t.Cleanup(func() { SetAppIdentity(nil) })

	info := CurrentVersion()
	if info.App.Name == "" {
		t.Fatal("expected a fallback app name")
	}
	if info.Runtime.NumCPU < 1 {
		t.Fatalf("expected num_cpu to be positive, got %d", info.Runtime.NumCPU)
	}
}
