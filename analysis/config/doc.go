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
Package config provides a simple way to manage configuration files.

Use [Load](filename) to load a configuration from a specific filename.

Use [SetGlobalConfig](filename) to set filename as the global config, and then [LoadGlobal]() to load the global config.

A config file should be in yaml format. The top-level fields can be any of the fields defined in the Config
struct type. The other fields  are defined by the types of the fields of [Config] and nested struct types.
For example, a valid config file is as follows:

	options:
	  log-level: 4
	  max-block-enters: 3
	class-path:
	  - build/classes
	  - lib/app.jar
	taint-rules:
	  sources:
	    - class: com\.example\.web\..*
	      method: handle.*
	      arguments: [0]
	  sinks:
	    - class: java.lang.Runtime
	      method: exec

# Identifying class members

The config uses [MemberIdentifier] to identify specific class members. For example, sinks and sources are
MemberIdentifiers which identify arguments of specific methods in specific classes.
An important feature of the member identifiers is that the string specifications are seen as regexes if they can be
compiled to regexes, otherwise they are strings. Descriptors are always compared as strings.

# Logging

[NewLogGroup] returns a [LogGroup] with one logger per level. The level is set by the log-level option, from 1 (errors
only) to 5 (traces of the bytecode interpreter).
*/
package config
