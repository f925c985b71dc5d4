package pongo_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/flosch/pongo2/v6"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-viewrender/pkg/render/template"
	"github.com/goliatone/go-viewrender/pkg/render/template/pongo"
	"github.com/goliatone/go-viewrender/pkg/testsupport"
)

func siteLoader(t *testing.T) *pongo.Loader {
	t.Helper()

	root, err := filepath.Abs(filepath.Join("testdata", "site"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	loader, err := pongo.NewLoader(template.LoaderOptions{
		RootPath: root,
		Namespaces: map[string][]string{
			"view":      {"views"},
			"layout":    {"layouts"},
			"partial":   {"partials"},
			"component": {"components"},
		},
	})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	return loader
}

func treeLoader(t *testing.T, files map[string]string) (*pongo.Loader, string) {
	t.Helper()

	root := testsupport.WriteTree(t, t.TempDir(), files)
	namespaces := map[string][]string{
		"view":    {"views"},
		"partial": {"partials"},
	}
	for _, dirs := range namespaces {
		for _, dir := range dirs {
			testsupport.WriteFile(t, filepath.Join(root, dir, ".keep"), "")
		}
	}
	loader, err := pongo.NewLoader(template.LoaderOptions{
		RootPath:   root,
		Namespaces: namespaces,
	})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	return loader, root
}

func newEngine(t *testing.T, loader *pongo.Loader, cfg template.EnvironmentConfig) *pongo.Engine {
	t.Helper()

	engine, err := pongo.New(loader, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngine_RenderTemplateAcrossNamespaces(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("@view/home.html.twig", map[string]any{
			"title": "Docs",
			"name":  "Ada",
		}, w)
	})

	golden := filepath.Join("testdata", "home.golden")
	if testsupport.WriteMaybeGolden(t, golden, []byte(result)) {
		return
	}
	want := testsupport.MustReadGoldenString(t, golden)
	if result != want {
		t.Fatalf("render template mismatch result\nwant: %q\n got: %q", want, result)
	}
	if written != want {
		t.Fatalf("render template mismatch writer\nwant: %q\n got: %q", want, written)
	}
}

func TestEngine_RenderStructContext(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	type button struct {
		Label   string `json:"label"`
		Variant string `json:"variant"`
	}
	got, err := engine.RenderTemplate("component/button.html.twig", button{Label: "  Save ", Variant: "primary"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if want := `<button class="primary">Save</button>`; got != want {
		t.Fatalf("unexpected output\nwant: %q\n got: %q", want, got)
	}
}

func TestEngine_IntegersStayIntegers(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	type stats struct {
		Count int `json:"count"`
	}
	got, err := engine.RenderString("{{ stats.count }}", map[string]any{"stats": stats{Count: 3}})
	if err != nil {
		t.Fatalf("render string: %v", err)
	}
	if got != "3" {
		t.Fatalf("expected integer output, got %q", got)
	}
}

func TestEngine_AutoescapeStrategies(t *testing.T) {
	files := map[string]string{
		"views/page.html.twig": "{{ markup }}",
		"views/mail.txt.twig":  "{{ markup }}",
	}
	data := map[string]any{"markup": "<b>hi</b>"}
	escaped := "&lt;b&gt;hi&lt;/b&gt;"
	raw := "<b>hi</b>"

	cases := []struct {
		strategy template.Autoescape
		page     string
		mail     string
	}{
		{strategy: template.AutoescapeName, page: escaped, mail: raw},
		{strategy: template.AutoescapeHTML, page: escaped, mail: escaped},
		{strategy: template.AutoescapeOff, page: raw, mail: raw},
	}
	for _, tc := range cases {
		t.Run(string(tc.strategy), func(t *testing.T) {
			loader, _ := treeLoader(t, files)
			cfg := template.Defaults("", false)
			cfg.Autoescape = tc.strategy
			engine := newEngine(t, loader, cfg)

			page, err := engine.RenderTemplate("@view/page.html.twig", data)
			if err != nil {
				t.Fatalf("render page: %v", err)
			}
			mail, err := engine.RenderTemplate("@view/mail.txt.twig", data)
			if err != nil {
				t.Fatalf("render mail: %v", err)
			}
			if page != tc.page || mail != tc.mail {
				t.Fatalf("strategy %s: page=%q mail=%q", tc.strategy, page, mail)
			}
		})
	}
}

func TestEngine_ChildTemplateFollowsLayoutEscaping(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/base.html.twig": "<p>{% block body %}{% endblock %}</p>",
		"views/mail.txt.twig":  `{% extends "@view/base.html.twig" %}{% block body %}{{ markup }}{% endblock %}`,
		"views/raw.txt.twig":   `{% extends "@view/base.html.twig" %}{% block body %}{% autoescape off %}{{ markup }}{% endautoescape %}{% endblock %}`,
	})
	engine := newEngine(t, loader, template.Defaults("", false))
	data := map[string]any{"markup": "<b>hi</b>"}

	got, err := engine.RenderTemplate("@view/mail.txt.twig", data)
	if err != nil {
		t.Fatalf("render mail: %v", err)
	}
	if got != "<p>&lt;b&gt;hi&lt;/b&gt;</p>" {
		t.Fatalf("child should follow the layout strategy, got %q", got)
	}

	got, err = engine.RenderTemplate("@view/raw.txt.twig", data)
	if err != nil {
		t.Fatalf("render raw: %v", err)
	}
	if got != "<p><b>hi</b></p>" {
		t.Fatalf("explicit autoescape off should win, got %q", got)
	}
}

func TestEngine_RelativeInclude(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/pages/index.twig": `[{% include "card.twig" %}]`,
		"views/pages/card.twig":  "card {{ n }}",
	})
	engine := newEngine(t, loader, template.Defaults("", false))

	got, err := engine.RenderTemplate("view/pages/index.twig", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "[card 1]" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEngine_AutoReload(t *testing.T) {
	loader, root := treeLoader(t, map[string]string{
		"views/page.twig":    `{% include "@partial/line.twig" %}`,
		"partials/line.twig": "v1",
	})
	engine := newEngine(t, loader, template.Defaults("", false))
	partial := filepath.Join(root, "partials", "line.twig")

	first, err := engine.RenderTemplate("@view/page.twig", nil)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	testsupport.Rewrite(t, partial, "v2")

	second, err := engine.RenderTemplate("@view/page.twig", nil)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if first != "v1" || second != "v2" {
		t.Fatalf("expected dependency change to reload the template, got %q then %q", first, second)
	}
}

func TestEngine_WithoutAutoReloadKeepsCompiledTemplate(t *testing.T) {
	loader, root := treeLoader(t, map[string]string{
		"views/page.twig": "v1",
	})
	cfg := template.Defaults("", false)
	cfg.AutoReload = false
	engine := newEngine(t, loader, cfg)
	page := filepath.Join(root, "views", "page.twig")

	if _, err := engine.RenderTemplate("@view/page.twig", nil); err != nil {
		t.Fatalf("first render: %v", err)
	}
	testsupport.Rewrite(t, page, "v2")

	stale, err := engine.RenderTemplate("@view/page.twig", nil)
	if err != nil {
		t.Fatalf("stale render: %v", err)
	}
	engine.ClearCache()
	fresh, err := engine.RenderTemplate("@view/page.twig", nil)
	if err != nil {
		t.Fatalf("fresh render: %v", err)
	}
	if stale != "v1" || fresh != "v2" {
		t.Fatalf("expected stale output until the cache is cleared, got %q then %q", stale, fresh)
	}
}

func TestEngine_CacheManifest(t *testing.T) {
	loader, root := treeLoader(t, map[string]string{
		"views/page.twig":    `{% include "@partial/line.twig" %}`,
		"partials/line.twig": "line",
	})
	cacheDir := filepath.Join(t.TempDir(), "cache", "viewrender")
	engine := newEngine(t, loader, template.Defaults(cacheDir, false))

	if _, err := engine.RenderTemplate("@view/page.twig", nil); err != nil {
		t.Fatalf("render: %v", err)
	}

	entries, err := pongo.ReadManifest(cacheDir)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(entries) != 1 || entries[0].Reference != "@view/page.twig" {
		t.Fatalf("unexpected manifest entries %+v", entries)
	}
	var refs, paths []string
	for _, file := range entries[0].Files {
		refs = append(refs, file.Reference)
		paths = append(paths, file.Path)
		if len(file.Checksum) != 16 {
			t.Fatalf("expected a 64-bit hex checksum, got %q", file.Checksum)
		}
	}
	wantRefs := []string{"@view/page.twig", "@partial/line.twig"}
	if diff := cmp.Diff(wantRefs, refs); diff != "" {
		t.Fatalf("manifest files mismatch (-want +got):\n%s", diff)
	}
	wantPaths := []string{filepath.Join(root, "views", "page.twig"), filepath.Join(root, "partials", "line.twig")}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Fatalf("manifest paths mismatch (-want +got):\n%s", diff)
	}

	if got := engine.Manifest(); len(got) != 1 || got[0].Reference != "@view/page.twig" {
		t.Fatalf("unexpected in-memory manifest %+v", got)
	}

	engine.ClearCache()
	entries, err = pongo.ReadManifest(cacheDir)
	if err != nil {
		t.Fatalf("read manifest after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty manifest after clear, got %+v", entries)
	}
}

func TestEngine_InvalidCachePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "cache")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	_, err := pongo.New(siteLoader(t), template.Defaults(filepath.Join(blocker, "viewrender"), false))
	if err == nil {
		t.Fatalf("expected cache directory creation to fail")
	}
}

func TestEngine_RuntimeErrorPropagates(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/broken.twig": "before {{ explode() }} after",
	})
	engine := newEngine(t, loader, template.Defaults("", true))

	_, err := engine.RenderTemplate("@view/broken.twig", map[string]any{
		"explode": func() (string, error) {
			return "", errors.New("boom")
		},
	})
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	var perr *pongo2.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *pongo2.Error in chain, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected the original error text, got %v", err)
	}
}

func TestEngine_SyntaxErrorPropagates(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/bad.twig": "{% if %}",
	})
	engine := newEngine(t, loader, template.Defaults("", false))

	_, err := engine.RenderTemplate("@view/bad.twig", nil)
	var perr *pongo2.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *pongo2.Error, got %T: %v", err, err)
	}
}

func TestEngine_MissingTemplate(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	_, err := engine.RenderTemplate("@view/missing.twig", nil)
	if !errors.Is(err, pongo.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "looked into:") {
		t.Fatalf("expected the searched directories in the error, got %v", err)
	}
	var perr *pongo2.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *pongo2.Error to stay in the chain, got %T", err)
	}

	if _, err := engine.RenderTemplate("@email/welcome.twig", nil); !errors.Is(err, pongo.ErrUnknownNamespace) {
		t.Fatalf("expected ErrUnknownNamespace, got %v", err)
	}
}

func TestEngine_MissingIncludeReportsLoaderError(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/page.twig": `{% include "@partial/nope.twig" %}`,
	})
	engine := newEngine(t, loader, template.Defaults("", false))

	_, err := engine.RenderTemplate("@view/page.twig", nil)
	if !errors.Is(err, pongo.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound for the include, got %v", err)
	}
	if !strings.Contains(err.Error(), "@partial/nope.twig") {
		t.Fatalf("expected the missing include in the error, got %v", err)
	}
}

func TestEngine_SyntaxErrorIsNotReportedAsMissing(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/page.twig": `{% include "@partial/nope.twig" if_exists %}{% if %}`,
	})
	engine := newEngine(t, loader, template.Defaults("", false))

	_, err := engine.RenderTemplate("@view/page.twig", nil)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if errors.Is(err, pongo.ErrTemplateNotFound) {
		t.Fatalf("expected the skipped optional include not to surface, got %v", err)
	}
}

func TestEngine_DebugDump(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/dump.txt.twig": "{{ dump(user) }}",
	})
	engine := newEngine(t, loader, template.Defaults("", true))

	got, err := engine.RenderTemplate("@view/dump.txt.twig", map[string]any{
		"user": map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "{\n  \"name\": \"Ada\"\n}"
	if got != want {
		t.Fatalf("dump mismatch\nwant: %q\n got: %q", want, got)
	}
}

func TestEngine_GlobalsAndFilters(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/page.twig": "{{ site|viewrender_test_shout }} {{ body|sanitize }} {{ title|lowerfirst }}",
	})
	cfg := template.Merge(template.Defaults("", false), template.EnvironmentOptions{
		Globals: map[string]any{"site": "docs"},
		Filters: map[string]template.FilterFunc{
			"viewrender_test_shout": func(input any, _ any) (any, error) {
				return strings.ToUpper(fmt.Sprint(input)) + "!", nil
			},
		},
	})
	engine := newEngine(t, loader, cfg)

	got, err := engine.RenderTemplate("@view/page.twig", map[string]any{
		"body":  `<a href="https://example.com" onclick="x()">link</a><script>alert(1)</script>`,
		"title": "Hello",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := `DOCS! <a href="https://example.com" rel="nofollow">link</a> hello`
	if got != want {
		t.Fatalf("unexpected output\nwant: %q\n got: %q", want, got)
	}
}

func TestEngine_RegisterFilterRejectsDuplicates(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	if err := engine.RegisterFilter("trim", func(input any, _ any) (any, error) { return input, nil }); err == nil {
		t.Fatalf("expected duplicate filter registration to fail")
	}
}

func TestEngine_BannedTags(t *testing.T) {
	loader, _ := treeLoader(t, map[string]string{
		"views/page.twig":    `{% include "@partial/line.twig" %}`,
		"partials/line.twig": "line",
	})
	cfg := template.Defaults("", false)
	cfg.BannedTags = []string{"include"}
	engine := newEngine(t, loader, cfg)

	if _, err := engine.RenderTemplate("@view/page.twig", nil); err == nil {
		t.Fatalf("expected banned tag to fail compilation")
	}
}

func TestEngine_ConcurrentRenders(t *testing.T) {
	engine := newEngine(t, siteLoader(t), template.Defaults("", false))

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", i)
			got, err := engine.RenderTemplate("@view/home.html.twig", map[string]any{
				"title": "Docs",
				"name":  name,
			})
			if err != nil {
				errs <- err
				return
			}
			want := fmt.Sprintf("<main><h1>Docs</h1><p>Hello, %s!</p></main>\n", name)
			if got != want {
				errs <- fmt.Errorf("worker %d: got %q want %q", i, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
