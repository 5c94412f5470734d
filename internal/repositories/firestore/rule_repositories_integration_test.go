//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/atelierhq/quoting/internal/platform/config"
	pfirestore "github.com/atelierhq/quoting/internal/platform/firestore"
	"github.com/atelierhq/quoting/internal/repositories"
	firestoreRepo "github.com/atelierhq/quoting/internal/repositories/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestRuleRepositoriesIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "test-project", EmulatorHost: endpoint})
	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() {
		_ = registry.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := map[string]map[string]map[string]any{
		"campaigns": {
			"summer": {
				"name": "<b>Summer</b> sale", "pct": -0.1, "stackable": true, "priority": 1, "active": true,
				"createdAt": now.Add(-time.Hour), "scope": map[string]any{"type": "global"},
			},
			"paused": {
				"name": "Paused", "pct": -0.5, "active": false, "createdAt": now,
				"scope": map[string]any{"type": "global"},
			},
			"future": {
				"name": "Future", "pct": -0.2, "active": true, "startsAt": now.Add(24 * time.Hour), "createdAt": now,
				"scope": map[string]any{"type": "artist", "value": "artist-1"},
			},
			"unsupported": {
				"name": "Edition only", "pct": -0.2, "active": true, "createdAt": now,
				"scope": map[string]any{"type": "edition", "value": "ed-1"},
			},
		},
		"priceRules": {
			"digital-photo": {
				"name": "Digital photo", "addMinor": int64(-300), "active": true, "createdAt": now,
				"scope": map[string]any{"type": "digital-medium", "value": "photo"},
			},
		},
		"artistPricingProfiles": {
			"artist-1": {
				"markupByKind": map[string]any{"Print": 0.7}, "printMarkup": 0.65, "rounding": "end_99", "updatedAt": now,
			},
		},
	}
	for collection, docs := range seed {
		for id, data := range docs {
			if _, err := client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
				t.Fatalf("seed %s/%s: %v", collection, id, err)
			}
		}
	}

	campaigns, err := registry.Campaigns().ListActive(ctx, now)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(campaigns) != 1 || campaigns[0].ID != "summer" || campaigns[0].Name != "Summer sale" {
		t.Fatalf("unexpected campaigns: %+v", campaigns)
	}

	rules, err := registry.PriceRules().ListActive(ctx, now)
	if err != nil {
		t.Fatalf("list price rules: %v", err)
	}
	if len(rules) != 1 || rules[0].AddMinor == nil || *rules[0].AddMinor != -300 {
		t.Fatalf("unexpected price rules: %+v", rules)
	}

	profile, err := registry.PricingProfiles().FindByArtistID(ctx, "artist-1")
	if err != nil {
		t.Fatalf("find profile: %v", err)
	}
	if profile.MarkupByKind["print"] != 0.7 || profile.Rounding != "END_99" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if _, err := registry.PricingProfiles().FindByArtistID(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found classification, got %v", err)
	}

	report, err := registry.Health().Collect(ctx)
	if err != nil {
		t.Fatalf("collect health: %v", err)
	}
	if report.Checks["firestore"].Status != "ok" {
		t.Fatalf("expected firestore check ok, got %+v", report.Checks["firestore"])
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
