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

package analysis

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/entrypoints"
)

// Program is a loaded program: the classes of its class path and the marks of their members
type Program struct {
	Config *config.Config
	Pool   *classfile.ClassPool
	Oracle *annotations.Oracle
}

// LoadProgram opens the class path of the config followed by the extra class path entries, and loads the rule files
// of the config.
func LoadProgram(c *config.Config, logger *config.LogGroup, extraClassPath []string) (*Program, error) {
	entries := append(c.ClassPathEntries(), extraClassPath...)
	if len(entries) == 0 {
		return nil, fmt.Errorf("empty class path")
	}
	pool, err := classfile.NewClassPool(entries)
	if err != nil {
		return nil, fmt.Errorf("could not load program: %w", err)
	}
	logger.Debugf("class path: %s", strings.Join(entries, ", "))
	return NewProgram(c, logger, pool), nil
}

// NewProgram returns the program of the classes of pool
func NewProgram(c *config.Config, logger *config.LogGroup, pool *classfile.ClassPool) *Program {
	return &Program{
		Config: c,
		Pool:   pool,
		Oracle: annotations.NewOracle(c, annotations.LoadRuleSet(c, logger)),
	}
}

// Close releases the archives of the class path
func (p *Program) Close() error {
	return p.Pool.Close()
}

// Entrypoints parses all the classes of the program and returns its entry points
func (p *Program) Entrypoints(logger *config.LogGroup) ([]*classfile.Method, error) {
	classes, err := p.Pool.LoadAll(p.Config.Workers)
	if err != nil {
		return nil, fmt.Errorf("could not load classes: %w", err)
	}
	logger.Infof("Loaded %d classes", len(classes))
	return entrypoints.Find(p.Config, logger, classes, p.Oracle)
}

// LookupMethod returns the method named by ref, of the form pkg/Cls.name(desc) or pkg.Cls.name(desc). The descriptor
// may be omitted when the class declares a single method with that name.
func (p *Program) LookupMethod(ref string) (*classfile.Method, error) {
	desc := ""
	if i := strings.IndexByte(ref, '('); i >= 0 {
		ref, desc = ref[:i], ref[i:]
	}
	dot := strings.LastIndexByte(ref, '.')
	if dot <= 0 || dot == len(ref)-1 {
		return nil, fmt.Errorf("invalid method %q: expected class.method", ref)
	}
	class, name := classfile.InternalName(ref[:dot]), ref[dot+1:]
	cf, err := p.Pool.Get(class)
	if err != nil {
		return nil, err
	}
	var found []*classfile.Method
	for _, m := range cf.Methods {
		if m.Name == name && (desc == "" || m.Descriptor == desc) {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s.%s%s", classfile.ErrMethodNotFound, classfile.DottedName(class), name, desc)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("ambiguous method %s: add its descriptor", ref)
	}
}
