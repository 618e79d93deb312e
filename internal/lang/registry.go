package lang

import (
	"sync"
)

// Registry resolves source files to languages. Registration order is the
// priority order: the first language claiming an extension wins.
type Registry struct {
	mu    sync.RWMutex
	langs []*Language
}

func NewRegistry(langs ...*Language) *Registry {
	r := &Registry{}
	for _, l := range langs {
		r.Register(l)
	}
	return r
}

// Register appends l after every language registered so far
func (r *Registry) Register(l *Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs = append(r.langs, l)
}

// Resolve returns the language of path, or false if none claims its extension
func (r *Registry) Resolve(path string) (*Language, bool) {
	ext := ExtOf(path)
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.langs {
		if l.Extensions.Contains(ext) {
			return l, true
		}
	}
	return nil, false
}

// ByID returns the first language registered under id
func (r *Registry) ByID(id string) (*Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.langs {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// All returns registered languages in priority order
func (r *Registry) All() []*Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Language(nil), r.langs...)
}

// Defaults returns the built-in languages in registration order
func Defaults() []*Language {
	c := New("c", "C", "c")
	c.CompileCmd = "gcc {src} {flags} -o {out}"
	c.Flags = "-O2 -lm"

	cpp := New("cpp", "C++", "cpp", "cc", "cxx", "c++")
	cpp.CompileCmd = "g++ {src} {flags} -o {out}"
	cpp.Flags = "-O2 -std=c++17"

	py := New("python", "Python", "py")
	py.CompileCmd = `python3 -c "import py_compile, sys; py_compile.compile(sys.argv[1], cfile=sys.argv[2], doraise=True)" {src} {out} {flags}`
	py.ArtifactExt = ".pyc"
	py.RunCmd = "python3 {args} {exe}"

	js := New("javascript", "JavaScript", "js")
	js.RunCmd = "node {args} {exe}"

	golang := New("go", "Go", "go")
	golang.CompileCmd = "go build {flags} -o {out} {src}"

	rust := New("rust", "Rust", "rs")
	rust.CompileCmd = "rustc {src} {flags} -o {out}"
	rust.Flags = "-O"

	return []*Language{c, cpp, py, js, golang, rust}
}
