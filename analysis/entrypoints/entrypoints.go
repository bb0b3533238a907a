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

// Package entrypoints finds the methods where the analysis of a program starts: the methods with a parameter
// carrying user provided data, and the methods listed in the configuration.
package entrypoints

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Scan returns the methods with code of the classes having at least one declared parameter marked as user provided,
// sorted by class, name and descriptor. The classes are examined by at most workers goroutines.
func Scan(classes []*classfile.ClassFile, oracle *annotations.Oracle, workers int) ([]*classfile.Method, error) {
	if workers <= 0 {
		workers = 1
	}
	found := make([][]*classfile.Method, len(classes))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, cf := range classes {
		i, cf := i, cf
		g.Go(func() error {
			for _, m := range cf.Methods {
				if m.Code == nil {
					continue
				}
				if _, err := classfile.ParseMethodDescriptor(m.Descriptor); err != nil {
					return fmt.Errorf("scanning %s: %w", m, err)
				}
				if oracle.HasSourceParameter(m) {
					found[i] = append(found[i], m)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var res []*classfile.Method
	for _, ms := range found {
		res = append(res, ms...)
	}
	Sort(res)
	return res, nil
}

// Configured returns the methods with code of the classes that match an entry point of the configuration
func Configured(c *config.Config, classes []*classfile.ClassFile) []*classfile.Method {
	if len(c.Entrypoints) == 0 {
		return nil
	}
	var res []*classfile.Method
	for _, cf := range classes {
		class := classfile.DottedName(cf.Name)
		for _, m := range cf.Methods {
			if m.Code != nil && c.IsEntrypoint(config.MethodIdentifier(class, m.Name, m.Descriptor)) {
				res = append(res, m)
			}
		}
	}
	Sort(res)
	return res
}

// Find returns the entry points of the classes: the scanned methods followed by the configured methods that were
// not found by the scan
func Find(c *config.Config, logger *config.LogGroup, classes []*classfile.ClassFile,
	oracle *annotations.Oracle) ([]*classfile.Method, error) {
	scanned, err := Scan(classes, oracle, c.Workers)
	if err != nil {
		return nil, err
	}
	res := scanned
	for _, m := range Configured(c, classes) {
		if !slices.Contains(scanned, m) {
			res = append(res, m)
		}
	}
	logger.Infof("Found %d entry points (%d with user provided parameters)", len(res), len(scanned))
	if logger.LogsDebug() {
		for _, m := range res {
			logger.Debugf("entry point: %s", m)
		}
	}
	return res, nil
}

// Sort sorts methods by class, name and descriptor
func Sort(methods []*classfile.Method) {
	slices.SortFunc(methods, func(a, b *classfile.Method) bool {
		switch {
		case a.Owner != b.Owner:
			return a.Owner < b.Owner
		case a.Name != b.Name:
			return a.Name < b.Name
		default:
			return a.Descriptor < b.Descriptor
		}
	})
}
