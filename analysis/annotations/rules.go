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

package annotations

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/internal/cache"
	"gopkg.in/yaml.v3"
)

//go:embed rules/*.yaml
var embeddedRules embed.FS

const (
	ruleFileCacheSize  = 256
	ruleClassCacheSize = 4096
)

// DefaultRules returns the rule files embedded in the binary
func DefaultRules() fs.FS {
	sub, err := fs.Sub(embeddedRules, "rules")
	if err != nil {
		panic(err)
	}
	return sub
}

// MemberRules are the marks that a rule file sets on a method or a field
type MemberRules struct {
	// Result holds the marks of the result of the method, or the marks of the field
	Result Mark
	// Receiver holds the marks of the receiver of an instance method
	Receiver Mark
	// Arguments holds the marks of each declared argument of the method
	Arguments []Mark
	// Descriptors holds the rules of specific overloads of the method, keyed by method descriptor
	Descriptors map[string]*MemberRules
}

// Argument returns the marks of the i-th declared argument
func (r *MemberRules) Argument(i int) Mark {
	if r == nil || i < 0 || i >= len(r.Arguments) {
		return None
	}
	return r.Arguments[i]
}

func (r *MemberRules) overload(desc string) *MemberRules {
	if r == nil {
		return nil
	}
	if o, ok := r.Descriptors[desc]; ok {
		return o
	}
	return r
}

// ClassRules are the rules of a class
type ClassRules struct {
	// Name is the dotted name of the class
	Name string
	// Marks are the marks of an annotation type configured as marks
	Marks Mark
	// Members maps method and field names to their rules
	Members map[string]*MemberRules
}

// A RuleSet gives access to the per-package rule files of a list of directories. The rule file of package a.b is
// named a.b.yaml and holds a tree of rules nested under the remaining package tokens and class names; for example,
// java.yaml may hold the rules of java.sql.Connection under the keys sql > Connection, and java.sql.yaml under the
// key Connection. Below a class name, the rules are either a list of marks (the class is an annotation type
// configured as those marks) or a map from member names to the member rules:
//
//	Connection:
//	  prepareStatement:
//	    arguments: [Command]
//	  nativeSQL:
//	    "(Ljava/lang/String;)Ljava/lang/String;":
//	      arguments: [Command]
//
// A member rule that is a single mark or a list of marks sets the marks of the method result, or of the field.
// Files with the same name in different directories are merged; on conflicting entries the first directory wins.
//
// Rules are loaded lazily and cached. A RuleSet is safe for concurrent use.
type RuleSet struct {
	roots   []fs.FS
	logger  *config.LogGroup
	files   *cache.LRU[string, map[string]any]
	classes *cache.LRU[string, *ClassRules]
}

// NewRuleSet returns the rule set of the rule files in roots
func NewRuleSet(logger *config.LogGroup, roots ...fs.FS) *RuleSet {
	return &RuleSet{
		roots:   roots,
		logger:  logger,
		files:   cache.NewLRU[string, map[string]any](ruleFileCacheSize),
		classes: cache.NewLRU[string, *ClassRules](ruleClassCacheSize),
	}
}

// LoadRuleSet returns the rule set of the rules directories of the config, followed by the embedded rules when the
// config uses them
func LoadRuleSet(c *config.Config, logger *config.LogGroup) *RuleSet {
	var roots []fs.FS
	for _, dir := range c.RulesDirEntries() {
		roots = append(roots, os.DirFS(dir))
	}
	if c.DefaultRules() {
		roots = append(roots, DefaultRules())
	}
	return NewRuleSet(logger, roots...)
}

// ResourceCandidates returns the names of the rule files that may hold the rules of the class, most specific first.
// Only the leading package tokens made of lower case letters, digits and underscores are considered:
// the candidates of java.sql.ResultSet are java.sql.yaml and java.yaml.
func ResourceCandidates(className string) []string {
	var res []string
	for i := 0; i < len(className); i++ {
		c := className[i]
		if c == '.' {
			res = append(res, className[:i]+".yaml")
			continue
		}
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			break
		}
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

// Class returns the rules of the class, or nil if no rule file mentions it. The class name can be dotted or internal.
func (r *RuleSet) Class(className string) *ClassRules {
	className = classfile.DottedName(className)
	return r.classes.GetOrCompute(className, func() *ClassRules {
		for _, candidate := range ResourceCandidates(className) {
			tree := r.file(candidate)
			if tree == nil {
				continue
			}
			rest := strings.TrimPrefix(className, strings.TrimSuffix(candidate, ".yaml")+".")
			if node, ok := walk(tree, strings.Split(rest, ".")); ok {
				return r.parseClass(className, node)
			}
		}
		return nil
	})
}

// AnnotationMarks returns the marks an annotation type is configured as
func (r *RuleSet) AnnotationMarks(annotation string) Mark {
	if cr := r.Class(annotation); cr != nil {
		return cr.Marks
	}
	return None
}

// Member returns the rules of the member of the class, specialized for the descriptor when the rules have an entry
// for it
func (r *RuleSet) Member(className, member, desc string) *MemberRules {
	cr := r.Class(className)
	if cr == nil {
		return nil
	}
	return cr.Members[member].overload(desc)
}

// ArgumentMarks returns the marks of the i-th declared argument of the method
func (r *RuleSet) ArgumentMarks(className, method, desc string, i int) Mark {
	return r.Member(className, method, desc).Argument(i)
}

// ResultMarks returns the marks of the result of the method
func (r *RuleSet) ResultMarks(className, method, desc string) Mark {
	if mr := r.Member(className, method, desc); mr != nil {
		return mr.Result
	}
	return None
}

// ReceiverMarks returns the marks of the receiver of the method
func (r *RuleSet) ReceiverMarks(className, method, desc string) Mark {
	if mr := r.Member(className, method, desc); mr != nil {
		return mr.Receiver
	}
	return None
}

// FieldMarks returns the marks of the field
func (r *RuleSet) FieldMarks(className, field string) Mark {
	return r.ResultMarks(className, field, "")
}

// file returns the merged tree of the rule files named name, or nil when there is none
func (r *RuleSet) file(name string) map[string]any {
	return r.files.GetOrCompute(name, func() map[string]any {
		var merged map[string]any
		for _, root := range r.roots {
			b, err := fs.ReadFile(root, name)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					r.logger.Warnf("could not read rule file %s: %v", name, err)
				}
				continue
			}
			var tree map[string]any
			if err := yaml.Unmarshal(b, &tree); err != nil {
				r.logger.Warnf("could not parse rule file %s: %v", name, err)
				continue
			}
			r.logger.Debugf("loaded rule file %s", name)
			merged = mergeTrees(merged, tree)
		}
		return merged
	})
}

// mergeTrees merges b into a. Entries of a win over the non-map entries of b.
func mergeTrees(a, b map[string]any) map[string]any {
	if a == nil {
		return b
	}
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			a[k] = bv
			continue
		}
		am, aIsMap := av.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if aIsMap && bIsMap {
			a[k] = mergeTrees(am, bm)
		}
	}
	return a
}

// walk follows the tokens down the tree. At each level, a key made of all the remaining tokens joined by dots is
// accepted as well.
func walk(tree map[string]any, tokens []string) (any, bool) {
	var node any = tree
	for len(tokens) > 0 {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok := m[strings.Join(tokens, ".")]; ok {
			return v, true
		}
		if node, ok = m[tokens[0]]; !ok {
			return nil, false
		}
		tokens = tokens[1:]
	}
	return node, true
}

func (r *RuleSet) parseClass(className string, node any) *ClassRules {
	cr := &ClassRules{Name: className, Members: map[string]*MemberRules{}}
	switch v := node.(type) {
	case map[string]any:
		for member, mv := range v {
			cr.Members[member] = r.parseMember(className+"."+member, mv)
		}
	default:
		cr.Marks = r.marks(className, v)
	}
	return cr
}

func (r *RuleSet) parseMember(where string, node any) *MemberRules {
	mr := &MemberRules{}
	v, ok := node.(map[string]any)
	if !ok {
		mr.Result = r.marks(where, node)
		return mr
	}
	for key, value := range v {
		switch {
		case key == "arguments":
			args, ok := value.([]any)
			if !ok {
				r.logger.Warnf("rules of %s: arguments should be a list", where)
				continue
			}
			for _, a := range args {
				mr.Arguments = append(mr.Arguments, r.marks(where, a))
			}
		case key == "result":
			mr.Result = r.marks(where, value)
		case key == "receiver":
			mr.Receiver = r.marks(where, value)
		case strings.HasPrefix(key, "("):
			if mr.Descriptors == nil {
				mr.Descriptors = map[string]*MemberRules{}
			}
			mr.Descriptors[key] = r.parseMember(where+key, value)
		default:
			r.logger.Warnf("rules of %s: unexpected key %q", where, key)
		}
	}
	return mr
}

// marks parses a mark name or a list of mark names. A missing value or "-" is the empty set.
func (r *RuleSet) marks(where string, node any) Mark {
	switch v := node.(type) {
	case nil:
		return None
	case string:
		if v == "" || v == "-" {
			return None
		}
		m, err := ParseMark(v)
		if err != nil {
			r.logger.Warnf("rules of %s: %v", where, err)
		}
		return m
	case []any:
		m := None
		for _, x := range v {
			m |= r.marks(where, x)
		}
		return m
	}
	r.logger.Warnf("rules of %s: unexpected value %v", where, node)
	return None
}
