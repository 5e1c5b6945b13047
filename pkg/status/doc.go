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
Package status tracks what a fetch run did to each destination.

	+-------------+        +-------------+
	|  Operation  | -----> |   Tracker   |
	|  (outcome)  |        |  (entries)  |
	+-------------+        +------+------+
	                              |
	                       +------+------+
	                       |  Formatter  |
	                       |  (UI / log) |
	                       +-------------+

🎯 Purpose:
- Record one Entry per destination (new, modified, unchanged, skipped,
  failed, cancelled)
- Count processed resources for progress output
- Render entries for logs and the CLI

The tracker is diagnostic only. A run's result is decided by its error
collector, never by the tracker.
*/
package status
