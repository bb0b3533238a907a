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

package config

const (
	// DefaultMaxBlockEnters is the default number of times the same basic block can be entered during the
	// construction of a method graph
	DefaultMaxBlockEnters = 5
	// DefaultWorkers is the default number of workers of the analysis session
	DefaultWorkers = 1
	// DefaultMaxDemultiplex is the default maximum number of concrete class variants of a call site
	DefaultMaxDemultiplex = 16
	// DefaultMaxColoringPasses is the default maximum number of fixed-point passes of the coloring of a method
	DefaultMaxColoringPasses = 256
	// ReportFormatText is the plain text report format
	ReportFormatText = "text"
	// ReportFormatJSON is the json report format
	ReportFormatJSON = "json"
	// ReportFormatYAML is the yaml report format
	ReportFormatYAML = "yaml"
)
