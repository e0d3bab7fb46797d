package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/glotfile/dbopen"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/format/formattest"
	"github.com/hazyhaar/glotfile/observability"
)

func TestBuildFlags_Request(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	zip := filepath.Join(dir, "b.zip")
	os.WriteFile(pdf, formattest.PDF(), 0o644)
	os.WriteFile(zip, formattest.ZIP(), 0o644)

	b := newBuildFlags("build")
	if err := b.fs.Parse([]string{"-c", "pdf-zip", "--type", ",zip", pdf, zip}); err != nil {
		t.Fatal(err)
	}
	req, err := b.request()
	if err != nil {
		t.Fatal(err)
	}
	if req.Combination != "pdf-zip" || len(req.Files) != 2 {
		t.Fatalf("req = %+v", req)
	}
	if req.Files[0].Type != "" || req.Files[1].Type != format.ZIP || req.Files[1].Name != "b.zip" {
		t.Fatalf("files: %q/%q %q", req.Files[0].Type, req.Files[1].Type, req.Files[1].Name)
	}
}

func TestBuildFlags_Errors(t *testing.T) {
	b := newBuildFlags("plan")
	b.fs.Parse([]string{"-c", "pdf-zip"})
	if _, err := b.request(); err == nil {
		t.Fatal("expected error without files")
	}

	b = newBuildFlags("plan")
	b.fs.Parse([]string{"-t", "pdf,zip,mp4", "one.pdf"})
	if _, err := b.request(); err == nil {
		t.Fatal("expected error for too many types")
	}

	b = newBuildFlags("plan")
	b.fs.Parse([]string{filepath.Join(t.TempDir(), "missing.pdf")})
	if _, err := b.request(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("GLOTFILE_TEST_KEY", "x")
	if env("GLOTFILE_TEST_KEY", "d") != "x" || env("GLOTFILE_TEST_UNSET", "d") != "d" {
		t.Fatal("env fallback broken")
	}
}

func TestStartRetention(t *testing.T) {
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "metrics.db"), dbopen.WithSchema(observability.Schema))
	if err != nil {
		t.Fatal(err)
	}
	mm := observability.NewMetricsManager(db, 10, time.Hour)
	gl := observability.NewGenerationLog(db, 4)
	ctx := context.Background()
	if err := gl.Log(ctx, &observability.Generation{Label: "pdf-zip", Timestamp: time.Now().AddDate(0, 0, -40)}); err != nil {
		t.Fatal(err)
	}

	stop := startRetention(ctx, mm, gl, 30)
	deadline := time.Now().Add(5 * time.Second)
	for {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM generation_log").Scan(&n)
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("old generation was not pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// stop returns only once the goroutine is gone, so closing is safe.
	stop()
	gl.Close()
	mm.Close()
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
}
