package yaql

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

// Engine is one interactive session: a current schema registry and a current
// record store, both swapped whole under the write lock so queries always see
// a consistent pair. Loads accumulate; a schema load starts the dataset over.
type Engine struct {
	log      *zap.SugaredLogger
	loadOpts []yasl.LoadOption

	mu      sync.RWMutex
	reg     *yasl.Registry
	store   *yasl.Store
	unsaved bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithLoadOptions forwards options to every document load, for example a
// stubbed URL prober.
func WithLoadOptions(opts ...yasl.LoadOption) Option {
	return func(e *Engine) { e.loadOpts = opts }
}

// NewEngine returns an engine with no schema and an empty store.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:   zap.NewNop().Sugar(),
		store: yasl.NewStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the current schema, nil before the first successful load.
func (e *Engine) Registry() *yasl.Registry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg
}

// Store returns the current record store.
func (e *Engine) Store() *yasl.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// Unsaved reports whether loads happened since the last export.
func (e *Engine) Unsaved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unsaved
}

// LoadSchema reads one schema file or a directory of .yasl files and installs
// the combined registry. On failure the previous registry stays in place; on
// success the record store starts over, since existing records were validated
// against the replaced schema.
func (e *Engine) LoadSchema(path string) error {
	files, err := collectFiles(path, ".yasl")
	if err != nil {
		return err
	}
	var docs []*yamldoc.Doc
	for _, f := range files {
		ds, err := yamldoc.ParseFile(f)
		if err != nil {
			return err
		}
		docs = append(docs, ds...)
	}
	reg, err := yasl.LoadSchema(docs...)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if n := e.store.Len(); n > 0 {
		e.log.Warnw("schema replaced, discarding loaded records", "records", n)
	}
	e.reg = reg
	e.store = yasl.NewStore()
	e.unsaved = true
	e.mu.Unlock()

	e.log.Infow("schema loaded",
		"files", len(files),
		"namespaces", len(reg.NamespaceNames()),
		"types", len(reg.Types()))
	return nil
}

// LoadData reads one data file or a directory of .yaml files and validates
// the documents against the current schema. rootType pins every document to
// one type; empty means per-document inference. Valid documents join the
// dataset even when siblings fail; the new store generation replaces the old
// one atomically.
func (e *Engine) LoadData(ctx context.Context, path, rootType string) (yasl.Issues, error) {
	e.mu.RLock()
	reg, store := e.reg, e.store
	e.mu.RUnlock()
	if reg == nil {
		return nil, fmt.Errorf("no schema loaded")
	}

	files, err := collectFiles(path, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	var docs []*yamldoc.Doc
	for _, f := range files {
		ds, err := yamldoc.ParseFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, ds...)
	}

	next := store.Fork()
	opts := []yasl.LoadOption{yasl.WithStore(next)}
	if rootType != "" {
		opts = append(opts, yasl.WithRootType(rootType))
	}
	opts = append(opts, e.loadOpts...)
	_, issues := yasl.LoadDocuments(ctx, docs, reg, opts...)

	added := next.Len() - store.Len()
	e.mu.Lock()
	e.store = next
	if added > 0 {
		e.unsaved = true
	}
	e.mu.Unlock()

	e.log.Infow("data loaded",
		"files", len(files),
		"documents", len(docs),
		"records", added,
		"issues", len(issues))
	return issues, nil
}

// Query compiles and runs one query against the current schema and store.
func (e *Engine) Query(query string) (*Result, error) {
	e.mu.RLock()
	reg, store := e.reg, e.store
	e.mu.RUnlock()
	if reg == nil {
		return nil, fmt.Errorf("no schema loaded")
	}
	start := time.Now()
	res, err := Run(query, reg, store)
	if err != nil {
		return nil, err
	}
	e.log.Debugw("query executed", "query", query, "rows", res.Len(), "elapsed", time.Since(start))
	return res, nil
}

// ExportSchema writes the current schema back out as one .yasl document.
func (e *Engine) ExportSchema(path string) error {
	e.mu.RLock()
	reg := e.reg
	e.mu.RUnlock()
	if reg == nil {
		return fmt.Errorf("no schema loaded")
	}
	data, err := reg.ExportSchema().Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	e.markSaved()
	e.log.Infow("schema exported", "path", path)
	return nil
}

// ExportData writes every loaded record under dir. The full layout is one
// file per record, <dir>/<namespace>/<Type>_<n>.yaml in load order; the min
// layout is one multi-document file per type, named by the type alone unless
// two namespaces share a type name.
func (e *Engine) ExportData(dir string, min bool) error {
	e.mu.RLock()
	reg, store := e.reg, e.store
	e.mu.RUnlock()
	if reg == nil {
		return fmt.Errorf("no schema loaded")
	}

	files := 0
	if min {
		names := map[string]int{}
		for _, key := range store.TypeNames() {
			td, err := reg.FindType(key)
			if err != nil {
				return err
			}
			names[td.Name]++
		}
		for _, key := range store.TypeNames() {
			td, err := reg.FindType(key)
			if err != nil {
				return err
			}
			var docs []*yamldoc.Doc
			for _, rec := range store.Records(td.QualifiedName()) {
				docs = append(docs, yasl.ExportRecord(rec, reg))
			}
			data, err := yamldoc.MarshalStream(docs)
			if err != nil {
				return err
			}
			name := td.Name + ".yaml"
			if names[td.Name] > 1 {
				name = td.Namespace + "." + td.Name + ".yaml"
			}
			if err := writeExport(filepath.Join(dir, name), data); err != nil {
				return err
			}
			files++
		}
	} else {
		for _, key := range store.TypeNames() {
			td, err := reg.FindType(key)
			if err != nil {
				return err
			}
			for i, rec := range store.Records(td.QualifiedName()) {
				data, err := yasl.ExportRecord(rec, reg).Marshal()
				if err != nil {
					return err
				}
				name := fmt.Sprintf("%s_%d.yaml", td.Name, i+1)
				if err := writeExport(filepath.Join(dir, td.Namespace, name), data); err != nil {
					return err
				}
				files++
			}
		}
	}

	e.markSaved()
	e.log.Infow("data exported", "dir", dir, "files", files, "min", min)
	return nil
}

func (e *Engine) markSaved() {
	e.mu.Lock()
	e.unsaved = false
	e.mu.Unlock()
}

func writeExport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// collectFiles expands a path argument: a file is taken as-is whatever its
// extension, a directory is walked for files carrying one of exts.
func collectFiles(path string, exts ...string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		for _, want := range exts {
			if ext == want {
				files = append(files, p)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files under %s", strings.Join(exts, "/"), path)
	}
	sort.Strings(files)
	return files, nil
}
