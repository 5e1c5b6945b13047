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

package status

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent file entries
	nameWidth   = 35 // Base width for destination
	kindWidth   = 10 // Width for source kind
	statusWidth = 12 // Width for status text
)

// 🎯 FormatLine formats an entry as an aligned, colored table row
func FormatLine(e Entry, kind string) string {
	var prefix string
	switch e.Status {
	case StatusNew:
		prefix = color.GreenString("✓")
	case StatusModified:
		prefix = color.YellowString("⟳")
	case StatusDeleted, StatusFailed:
		prefix = color.RedString("✗")
	default:
		prefix = color.HiBlackString("-")
	}

	statusText := e.Status.String()
	if e.Fallback {
		statusText += " (bundle)"
	}

	return fmt.Sprintf("%s%s %-*s %-*s %-*s",
		strings.Repeat(" ", fileIndent),
		prefix,
		nameWidth, e.Destination,
		kindWidth, kind,
		statusWidth, statusText,
	)
}
