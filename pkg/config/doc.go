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

// Package config loads .fetchrc files and turns them into fetch items.
//
//	            +-------------+
//	            |   Config    |
//	            +------+------+
//	                   |
//	      +------------+------------+
//	      |            |            |
//	+-----+----+ +-----+----+ +-----+----+
//	|   YAML   | |   JSON   | |   HCL    |
//	+----------+ +----------+ +----------+
//
// The format follows the file extension. A bare .fetchrc is tried as YAML and
// then as HCL. Unknown fields are rejected in every format.
//
// A resource names one destination and a bundle path, a remote url, or both.
// A bundle_glob expands every matching bundled file into a resource placed at
// the same relative path under its destination. Relative paths resolve against
// the config file's directory.
//
// 🔍 Example (HCL):
//
//	max_concurrency = 4
//
//	http {
//	  retry_attempts = 3
//	  retry_backoff  = "250ms"
//	  basic_auth {
//	    username = "ci"
//	    password = env.FETCHRC_PASSWORD
//	  }
//	}
//
//	resource "schema" {
//	  destination = "gen/schema.json"
//	  bundle      = "bundle/schema.json"
//	  remote      = "https://example.com/schema.json"
//	  compare {
//	    format = "json"
//	    field  = "version"
//	  }
//	}
//
//	bundle_glob {
//	  dir         = "bundle/templates"
//	  pattern     = "**/*.tmpl"
//	  destination = "templates"
//	  ignore      = ["**/draft-*"]
//	}
package config
