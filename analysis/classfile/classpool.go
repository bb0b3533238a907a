// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classfile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Hierarchy answers questions about the subtyping relation between classes
type Hierarchy interface {
	// CommonSuperclass returns the closest common superclass of the two classes
	CommonSuperclass(a, b string) string
}

// classRoot is a class path entry
type classRoot interface {
	read(name string) ([]byte, error)
	names() ([]string, error)
	close() error
}

type dirRoot struct {
	dir string
}

func (d dirRoot) read(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.dir, filepath.FromSlash(name)+".class"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrClassNotFound
	}
	return b, err
}

func (d dirRoot) names() ([]string, error) {
	var res []string
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		rel, err := filepath.Rel(d.dir, path)
		if err != nil {
			return err
		}
		res = append(res, strings.TrimSuffix(filepath.ToSlash(rel), ".class"))
		return nil
	})
	return res, err
}

func (d dirRoot) close() error { return nil }

type jarRoot struct {
	r     *zip.ReadCloser
	files map[string]*zip.File
}

func openJar(path string) (*jarRoot, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	j := &jarRoot{r: r, files: map[string]*zip.File{}}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ".class") && !strings.HasPrefix(f.Name, "META-INF/") {
			j.files[strings.TrimSuffix(f.Name, ".class")] = f
		}
	}
	return j, nil
}

func (j *jarRoot) read(name string) ([]byte, error) {
	f, ok := j.files[name]
	if !ok {
		return nil, ErrClassNotFound
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (j *jarRoot) names() ([]string, error) {
	return maps.Keys(j.files), nil
}

func (j *jarRoot) close() error { return j.r.Close() }

// ClassPool resolves classes by name over a class path made of directories and jar files. Classes are parsed lazily
// and cached; the pool is safe for concurrent use.
type ClassPool struct {
	roots []classRoot

	mu      sync.RWMutex
	classes map[string]*ClassFile
	missing map[string]bool
	// singleImpl caches the results of SingleImplementation
	singleImpl map[MemberRef]*Method
}

// NewClassPool returns a class pool over the class path entries. Entries ending in .jar or .zip are opened as
// archives, the others are directories.
func NewClassPool(entries []string) (*ClassPool, error) {
	p := &ClassPool{
		classes:    map[string]*ClassFile{},
		missing:    map[string]bool{},
		singleImpl: map[MemberRef]*Method{},
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".jar") || strings.HasSuffix(entry, ".zip") {
			j, err := openJar(entry)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("could not open class path entry %s: %w", entry, err)
			}
			p.roots = append(p.roots, j)
			continue
		}
		info, err := os.Stat(entry)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("could not open class path entry %s: %w", entry, err)
		}
		if !info.IsDir() {
			p.Close()
			return nil, fmt.Errorf("class path entry %s is neither a directory nor an archive", entry)
		}
		p.roots = append(p.roots, dirRoot{dir: entry})
	}
	return p, nil
}

// Close releases the archives of the class path
func (p *ClassPool) Close() error {
	var errs []error
	for _, r := range p.roots {
		if err := r.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register adds a class to the pool. Registered classes take precedence over the class path.
func (p *ClassPool) Register(classes ...*ClassFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cf := range classes {
		p.classes[cf.Name] = cf
		delete(p.missing, cf.Name)
	}
	p.singleImpl = map[MemberRef]*Method{}
}

// Get returns the class with the given internal name. The error wraps ErrClassNotFound when the class is not on the
// class path.
func (p *ClassPool) Get(name string) (*ClassFile, error) {
	p.mu.RLock()
	cf, ok := p.classes[name]
	missing := p.missing[name]
	p.mu.RUnlock()
	if ok {
		return cf, nil
	}
	if missing {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, DottedName(name))
	}
	cf, err := p.load(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrClassNotFound) {
			p.missing[name] = true
		}
		return nil, err
	}
	if prev, ok := p.classes[name]; ok {
		// another goroutine loaded it first
		return prev, nil
	}
	p.classes[name] = cf
	return cf, nil
}

func (p *ClassPool) load(name string) (*ClassFile, error) {
	for _, r := range p.roots {
		b, err := r.read(name)
		if errors.Is(err, ErrClassNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not read class %s: %w", DottedName(name), err)
		}
		cf, err := Parse(b)
		if err != nil {
			return nil, err
		}
		if cf.Name != name {
			return nil, fmt.Errorf("%w: file for class %s declares class %s", ErrMalformed, name, cf.Name)
		}
		return cf, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, DottedName(name))
}

// ClassNames returns the sorted names of all the classes on the class path and of the registered classes
func (p *ClassPool) ClassNames() ([]string, error) {
	set := map[string]bool{}
	for _, r := range p.roots {
		names, err := r.names()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			set[n] = true
		}
	}
	p.mu.RLock()
	for n := range p.classes {
		set[n] = true
	}
	p.mu.RUnlock()
	return funcutil.SortedKeys(set), nil
}

// LoadAll parses all the classes of the class path with at most workers parallel parsers, and returns the classes
// sorted by name. Classes that fail to parse are reported in the error.
func (p *ClassPool) LoadAll(workers int) ([]*ClassFile, error) {
	names, err := p.ClassNames()
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	res := make([]*ClassFile, len(names))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			cf, err := p.Get(name)
			if err != nil {
				return err
			}
			res[i] = cf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// Superclasses returns the class followed by its chain of superclasses, as far as they can be found on the class path
func (p *ClassPool) Superclasses(name string) []string {
	var chain []string
	for cur := name; cur != ""; {
		if slices.Contains(chain, cur) {
			break
		}
		chain = append(chain, cur)
		cf, err := p.Get(cur)
		if err != nil {
			if cur != ObjectClass {
				chain = append(chain, ObjectClass)
			}
			break
		}
		cur = cf.SuperName
	}
	return chain
}

// Supertypes returns all the classes and interfaces the class is assignable to, starting with the class itself
func (p *ClassPool) Supertypes(name string) []string {
	seen := map[string]bool{}
	var res []string
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		res = append(res, cur)
		cf, err := p.Get(cur)
		if err != nil {
			continue
		}
		if cf.SuperName != "" {
			queue = append(queue, cf.SuperName)
		}
		queue = append(queue, cf.Interfaces...)
	}
	if !seen[ObjectClass] {
		res = append(res, ObjectClass)
	}
	return res
}

// IsSubtype returns true when a value of class a is assignable to class b
func (p *ClassPool) IsSubtype(a, b string) bool {
	return a == b || b == ObjectClass || slices.Contains(p.Supertypes(a), b)
}

// CommonSuperclass returns the closest common superclass of a and b. Interfaces have java/lang/Object as common
// superclass with any other class.
func (p *ClassPool) CommonSuperclass(a, b string) string {
	if a == b {
		return a
	}
	if strings.HasPrefix(a, "[") || strings.HasPrefix(b, "[") {
		return ObjectClass
	}
	chainA := p.Superclasses(a)
	for _, c := range p.Superclasses(b) {
		if slices.Contains(chainA, c) {
			return c
		}
	}
	return ObjectClass
}

// FindMethod resolves a method in the class, its superclasses and then its super interfaces. The error wraps
// ErrMethodNotFound when no class declares the method, and ErrClassNotFound when the class itself is missing.
func (p *ClassPool) FindMethod(class, name, desc string) (*Method, error) {
	if _, err := p.Get(class); err != nil {
		return nil, err
	}
	var found *Method
	for _, c := range p.Supertypes(class) {
		cf, err := p.Get(c)
		if err != nil {
			continue
		}
		if m := cf.Method(name, desc); m != nil {
			if !m.IsAbstract() {
				return m, nil
			}
			if found == nil {
				found = m
			}
		}
	}
	if found != nil {
		return found, nil
	}
	return nil, fmt.Errorf("%w: %s.%s%s", ErrMethodNotFound, DottedName(class), name, desc)
}

// FindField resolves a field in the class and its super types
func (p *ClassPool) FindField(class, name string) (*Field, error) {
	if _, err := p.Get(class); err != nil {
		return nil, err
	}
	for _, c := range p.Supertypes(class) {
		cf, err := p.Get(c)
		if err != nil {
			continue
		}
		if f := cf.Field(name); f != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, DottedName(class), name)
}

// SingleImplementation returns the implementation of the method when exactly one class of the class path that is a
// subtype of class declares a concrete implementation of it. It returns nil otherwise.
func (p *ClassPool) SingleImplementation(class, name, desc string) *Method {
	key := MemberRef{Class: class, Name: name, Descriptor: desc}
	p.mu.RLock()
	m, ok := p.singleImpl[key]
	p.mu.RUnlock()
	if ok {
		return m
	}
	names, err := p.ClassNames()
	if err == nil {
		for _, n := range names {
			cf, err := p.Get(n)
			if err != nil || cf.IsInterface() {
				continue
			}
			impl := cf.Method(name, desc)
			if impl == nil || impl.IsAbstract() || !p.IsSubtype(n, class) {
				continue
			}
			if m != nil {
				m = nil
				break
			}
			m = impl
		}
	}
	p.mu.Lock()
	p.singleImpl[key] = m
	p.mu.Unlock()
	return m
}
