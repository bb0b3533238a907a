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

/*
Package taint implements the "user to command" taint analysis of JVM programs. Data marked as user provided is a
source, data marked as a command is a sink, and a flow from a source to a sink is a finding.

The main entry point of the analysis is the [Analyze] function, which analyzes every entry point of a program in a
single session and returns an [AnalysisResult] containing the findings. The colors of sources and sinks are given by
[UserToCommand], from the annotations of the class files, the rule files and the configuration.

Findings are written by [WriteReport] in the format of the configuration, and [WriteFindingFiles] writes one file per
finding when the report-paths option is set.
*/
package taint
