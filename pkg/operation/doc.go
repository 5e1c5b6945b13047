// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package operation implements the unit of work behind a fetch: one resource,
one policy, one destination.

	+-------------+
	|  Operation  |
	| (one item)  |
	+------+------+
	       |
	+------+------+      +-------------+
	|  Download   | ---> |  Placement  |
	| (temp file) |      |  (policy)   |
	+-------------+      +-------------+

🎯 Purpose:
- Copy a bundled file into place (NewCopy)
- Download a remote file to a temp path, then place it (NewDownload)
- Fall back to the bundled copy when a remote transfer fails and the
  resource carries both sources

Operations never decide the batch result. They return an error to the
Runner, which tracks it, and the batch collects it.

🔍 Example:

	op, err := operation.New(item, deps)
	res, err := operation.NewRunner(tracker).Run(ctx, op)
*/
package operation
