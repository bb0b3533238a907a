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
Package taint implements the front-end to the jargot taint tool, which runs the user-to-command taint analysis on the
entry points of a JVM program.

Usage:

	jargot taint [flags] [method...]

The flags are:

	-config path      a path to the configuration file containing the class path, the rules and the options

	-cp entry         a class path entry, directory or jar; can be repeated

	-format f         the format of the report: text, json or yaml; overrides the config

	-verbose=false    setting verbose mode, overrides config file options if set

Methods given as arguments, like com/example/Controller.handle(Ljava/lang/String;)V, are analyzed instead of the
entry points found on the class path.
*/
package taint
