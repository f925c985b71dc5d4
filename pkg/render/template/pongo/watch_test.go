package pongo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/goliatone/go-viewrender/pkg/render/template"
	"github.com/goliatone/go-viewrender/pkg/render/template/pongo"
	"github.com/goliatone/go-viewrender/pkg/testsupport"
)

func TestEngine_WatchInvalidatesChangedTemplates(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader, root := treeLoader(t, map[string]string{
		"views/page.twig": "v1",
	})
	cfg := template.Defaults("", false)
	cfg.AutoReload = false
	engine := newEngine(t, loader, cfg)
	page := filepath.Join(root, "views", "page.twig")

	if got, err := engine.RenderTemplate("@view/page.twig", nil); err != nil || got != "v1" {
		t.Fatalf("first render: %q, %v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Watch(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	var got string
	for time.Now().Before(deadline) {
		// Rewriting on every attempt covers writes made before the watcher
		// registered the directory.
		testsupport.WriteFile(t, page, "v2")
		var err error
		got, err = engine.RenderTemplate("@view/page.twig", nil)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if got == "v2" {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancellation")
	}

	if got != "v2" {
		t.Fatalf("expected watcher to invalidate the compiled template, last render %q", got)
	}
}

func TestEngine_WatchStopsOnCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader, _ := treeLoader(t, map[string]string{
		"views/page.twig": "v1",
	})
	engine := newEngine(t, loader, template.Defaults("", false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := engine.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}
}

func TestEngine_WatchIgnoresNestedCacheDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader, root := treeLoader(t, map[string]string{
		"views/page.twig": "v1",
	})
	cacheDir := filepath.Join(root, "views", ".cache")
	cfg := template.Defaults(cacheDir, false)
	cfg.AutoReload = false
	engine := newEngine(t, loader, cfg)
	page := filepath.Join(root, "views", "page.twig")

	if _, err := engine.RenderTemplate("@view/page.twig", nil); err != nil {
		t.Fatalf("first render: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Watch(ctx)
	}()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("watch did not stop after cancellation")
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		testsupport.WriteFile(t, page, "v2")
		got, err := engine.RenderTemplate("@view/page.twig", nil)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if got == "v2" {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	manifest := filepath.Join(cacheDir, pongo.ManifestFile)
	time.Sleep(300 * time.Millisecond)
	before, err := os.Stat(manifest)
	if err != nil {
		t.Fatalf("stat manifest: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	after, err := os.Stat(manifest)
	if err != nil {
		t.Fatalf("stat manifest: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("expected manifest to settle without edits, mtime moved from %v to %v", before.ModTime(), after.ModTime())
	}
}
