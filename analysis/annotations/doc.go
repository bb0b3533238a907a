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
Package annotations finds the security marks of the members of the analyzed program.

Five marks exist: UserProvided (the mark of taint sources), Command (the mark of taint sinks), CopyColorsFrom and
CopyColorsTo (the colors of an argument are copied to another argument or to the result of a method, e.g.
System.arraycopy), and ParentAttributesDefiner (the colors of a field are the colors of the object holding it).

Marks of the classes of the analyzed program are usually given by annotations of their class files. Marks of library
classes are given by YAML rule files, one per package. See [RuleSet] for the format of the rule files. A default set
of rule files is embedded in the binary, and the config can add rules directories.

The [Oracle] combines the annotations, the rule files and the taint-rules of the config.
*/
package annotations
