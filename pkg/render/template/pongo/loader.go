package pongo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

var (
	// ErrTemplateNotFound is returned when no directory of the namespace holds
	// the requested template.
	ErrTemplateNotFound = errors.New("pongo: template not found")
	// ErrUnknownNamespace is returned for references to namespaces without
	// registered directories.
	ErrUnknownNamespace = errors.New("pongo: unknown namespace")
	// ErrInvalidName is returned for malformed references and for names that
	// escape the namespace root.
	ErrInvalidName = errors.New("pongo: invalid template name")
)

// DirectoryError reports a namespace directory that cannot be registered.
type DirectoryError struct {
	Namespace string
	Dir       string
	Err       error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("pongo: directory %q for namespace %q: %v", e.Dir, e.Namespace, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Source describes a resolved template file.
type Source struct {
	// Reference is the canonical "@namespace/name" form.
	Reference string
	Namespace string
	Name      string
	// Path is the file on disk. It is empty for templates served from an fs.FS.
	Path    string
	ModTime time.Time
	Size    int64
}

type searchPath struct {
	dir  string
	fsys fs.FS
}

func (p searchPath) stat(name string) (fs.FileInfo, string, error) {
	if p.fsys != nil {
		info, err := fs.Stat(p.fsys, name)
		return info, "", err
	}
	full := filepath.Join(p.dir, filepath.FromSlash(name))
	info, err := os.Stat(full)
	return info, full, err
}

func (p searchPath) read(name string) ([]byte, error) {
	if p.fsys != nil {
		return fs.ReadFile(p.fsys, name)
	}
	return os.ReadFile(filepath.Join(p.dir, filepath.FromSlash(name)))
}

// Loader is a namespace-aware filesystem loader. It satisfies both
// template.Loader and pongo2.TemplateLoader and is safe for concurrent use.
type Loader struct {
	mu       sync.RWMutex
	paths    map[string][]searchPath
	rootPath string
}

var (
	_ template.Loader       = (*Loader)(nil)
	_ pongo2.TemplateLoader = (*Loader)(nil)
)

// NewLoader builds a loader with the main namespace paths and any extra
// namespace directories from options.
func NewLoader(options template.LoaderOptions) (*Loader, error) {
	l := &Loader{
		paths:    make(map[string][]searchPath),
		rootPath: strings.TrimSpace(options.RootPath),
	}
	for _, dir := range options.Paths {
		if err := l.AddPath(dir, template.MainNamespace); err != nil {
			return nil, err
		}
	}

	namespaces := make([]string, 0, len(options.Namespaces))
	for ns := range options.Namespaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		for _, dir := range options.Namespaces[ns] {
			if err := l.AddPath(dir, ns); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

// AddPath appends dir to the namespace search list.
func (l *Loader) AddPath(dir, namespace string) error {
	ns, entry, err := l.prepare(dir, namespace)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.paths[ns] {
		if existing.fsys == nil && existing.dir == entry.dir {
			return nil
		}
	}
	l.paths[ns] = append(l.paths[ns], entry)
	return nil
}

// PrependPath moves or inserts dir at the front of the namespace search list.
func (l *Loader) PrependPath(dir, namespace string) error {
	ns, entry, err := l.prepare(dir, namespace)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list := make([]searchPath, 0, len(l.paths[ns])+1)
	list = append(list, entry)
	for _, existing := range l.paths[ns] {
		if existing.fsys == nil && existing.dir == entry.dir {
			continue
		}
		list = append(list, existing)
	}
	l.paths[ns] = list
	return nil
}

// SetPaths replaces the namespace search list. Every directory is validated
// before the list is swapped.
func (l *Loader) SetPaths(namespace string, dirs ...string) error {
	ns := normalizeNamespace(namespace)
	list := make([]searchPath, 0, len(dirs))
	for _, dir := range dirs {
		_, entry, err := l.prepare(dir, ns)
		if err != nil {
			return err
		}
		duplicate := false
		for _, existing := range list {
			if existing.dir == entry.dir {
				duplicate = true
				break
			}
		}
		if !duplicate {
			list = append(list, entry)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(list) == 0 {
		delete(l.paths, ns)
		return nil
	}
	l.paths[ns] = list
	return nil
}

// AddFS appends an fs.FS (for example an embedded bundle) to the namespace
// search list.
func (l *Loader) AddFS(fsys fs.FS, namespace string) error {
	if fsys == nil {
		return errors.New("pongo: filesystem is required")
	}
	ns := normalizeNamespace(namespace)
	if err := validateNamespace(ns); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.paths[ns] = append(l.paths[ns], searchPath{fsys: fsys})
	return nil
}

// Paths returns the on-disk directories registered for a namespace, in
// search order.
func (l *Loader) Paths(namespace string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []string
	for _, entry := range l.paths[normalizeNamespace(namespace)] {
		if entry.fsys == nil {
			out = append(out, entry.dir)
		}
	}
	return out
}

// Namespaces returns the sorted list of namespaces with search paths.
func (l *Loader) Namespaces() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.paths))
	for ns := range l.paths {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Exists reports whether name resolves to a template file.
func (l *Loader) Exists(name string) bool {
	_, err := l.Resolve(name)
	return err == nil
}

// Reference returns the canonical "@namespace/name" form of name.
func (l *Loader) Reference(name string) (string, error) {
	ns, rel, err := l.split(name)
	if err != nil {
		return "", err
	}
	return formatReference(ns, rel), nil
}

// Abs implements pongo2.TemplateLoader. Names without a namespace resolve
// relative to the including template when base is set, otherwise against the
// main namespace. Malformed names are returned unchanged so Get can report
// them.
func (l *Loader) Abs(base, name string) string {
	ref, err := l.resolveReference(base, name)
	if err != nil {
		return name
	}
	return ref
}

// Get implements pongo2.TemplateLoader.
func (l *Loader) Get(ref string) (io.Reader, error) {
	_, data, err := l.Read(ref)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Resolve locates name without reading it.
func (l *Loader) Resolve(name string) (Source, error) {
	src, _, err := l.locate(name)
	return src, err
}

// Read locates and reads name.
func (l *Loader) Read(name string) (Source, []byte, error) {
	src, entry, err := l.locate(name)
	if err != nil {
		return Source{}, nil, err
	}
	data, err := entry.read(src.Name)
	if err != nil {
		return Source{}, nil, fmt.Errorf("pongo: read template %q: %w", src.Reference, err)
	}
	return src, data, nil
}

// directories lists every on-disk directory across namespaces.
func (l *Loader) directories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, entries := range l.paths {
		for _, entry := range entries {
			if entry.fsys != nil {
				continue
			}
			if _, ok := seen[entry.dir]; ok {
				continue
			}
			seen[entry.dir] = struct{}{}
			out = append(out, entry.dir)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Loader) locate(name string) (Source, searchPath, error) {
	ns, rel, err := l.split(name)
	if err != nil {
		return Source{}, searchPath{}, err
	}
	ref := formatReference(ns, rel)

	l.mu.RLock()
	entries := append([]searchPath(nil), l.paths[ns]...)
	l.mu.RUnlock()

	if len(entries) == 0 {
		return Source{}, searchPath{}, fmt.Errorf("%w %q (template %q)", ErrUnknownNamespace, ns, ref)
	}

	looked := make([]string, 0, len(entries))
	for _, entry := range entries {
		info, full, err := entry.stat(rel)
		if err != nil || info.IsDir() {
			if entry.fsys != nil {
				looked = append(looked, "<fs>")
			} else {
				looked = append(looked, entry.dir)
			}
			continue
		}
		return Source{
			Reference: ref,
			Namespace: ns,
			Name:      rel,
			Path:      full,
			ModTime:   info.ModTime(),
			Size:      info.Size(),
		}, entry, nil
	}
	return Source{}, searchPath{}, fmt.Errorf("%w: %q (looked into: %s)", ErrTemplateNotFound, ref, strings.Join(looked, ", "))
}

func (l *Loader) resolveReference(base, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if base != "" && !l.isNamespaced(trimmed) {
		if bns, brel, err := l.split(base); err == nil {
			rel, err := cleanName(path.Join(path.Dir(brel), trimmed))
			if err != nil {
				return "", err
			}
			return formatReference(bns, rel), nil
		}
	}
	return l.Reference(trimmed)
}

func (l *Loader) split(name string) (string, string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}

	ns, rest := template.MainNamespace, trimmed
	if strings.HasPrefix(trimmed, "@") {
		head, tail, found := strings.Cut(trimmed[1:], "/")
		if !found || head == "" {
			return "", "", fmt.Errorf("%w: malformed namespaced name %q, expected \"@namespace/name\"", ErrInvalidName, trimmed)
		}
		ns, rest = head, tail
	} else if head, tail, found := strings.Cut(trimmed, "/"); found && l.hasNamespace(head) {
		ns, rest = head, tail
	}

	rel, err := cleanName(rest)
	if err != nil {
		return "", "", err
	}
	return ns, rel, nil
}

func (l *Loader) isNamespaced(name string) bool {
	if strings.HasPrefix(name, "@") {
		return true
	}
	head, _, found := strings.Cut(name, "/")
	return found && l.hasNamespace(head)
}

func (l *Loader) hasNamespace(ns string) bool {
	if ns == template.MainNamespace {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.paths[ns]
	return ok
}

func (l *Loader) prepare(dir, namespace string) (string, searchPath, error) {
	ns := normalizeNamespace(namespace)
	if err := validateNamespace(ns); err != nil {
		return "", searchPath{}, err
	}

	resolved := template.LoaderOptions{RootPath: l.rootPath}.ResolveDir(dir)
	if resolved == "" {
		return "", searchPath{}, &DirectoryError{Namespace: ns, Dir: dir, Err: errors.New("directory is required")}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", searchPath{}, &DirectoryError{Namespace: ns, Dir: resolved, Err: err}
	}
	if !info.IsDir() {
		return "", searchPath{}, &DirectoryError{Namespace: ns, Dir: resolved, Err: errors.New("not a directory")}
	}
	return ns, searchPath{dir: resolved}, nil
}

func normalizeNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return template.MainNamespace
	}
	return ns
}

func validateNamespace(ns string) error {
	if strings.ContainsAny(ns, "@/\\") {
		return fmt.Errorf("%w: namespace %q must not contain '@' or path separators", ErrInvalidName, ns)
	}
	return nil
}

func cleanName(name string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if normalized == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	cleaned := path.Clean(normalized)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the namespace root", ErrInvalidName, name)
	}
	return cleaned, nil
}

func formatReference(ns, rel string) string {
	return "@" + ns + "/" + rel
}
