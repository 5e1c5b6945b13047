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

package resource

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 📋 PolicyKind names a copy policy
type PolicyKind int

const (
	PolicyOnlyWhenNew PolicyKind = iota
	PolicyAlwaysCopy
	PolicyManualCompare
)

// String returns the config name of the policy kind
func (k PolicyKind) String() string {
	switch k {
	case PolicyOnlyWhenNew:
		return "only_when_new"
	case PolicyAlwaysCopy:
		return "always_copy"
	case PolicyManualCompare:
		return "manual_compare"
	default:
		return "unknown"
	}
}

// ParsePolicyKind parses a config policy name. An empty name means only_when_new.
func ParsePolicyKind(name string) (PolicyKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "only_when_new", "onlywhennew":
		return PolicyOnlyWhenNew, nil
	case "always_copy", "alwayscopy", "always":
		return PolicyAlwaysCopy, nil
	case "manual_compare", "manualcompare", "compare":
		return PolicyManualCompare, nil
	default:
		return 0, errors.Errorf("unknown copy policy %q", name)
	}
}

// Comparator decides whether candidate should replace current
type Comparator func(current, candidate []byte) bool

// 🔄 CopyPolicy governs whether a source overwrites an existing destination
type CopyPolicy struct {
	kind PolicyKind
	cmp  Comparator
}

var (
	// OnlyWhenNew never overwrites an existing destination
	OnlyWhenNew = CopyPolicy{kind: PolicyOnlyWhenNew}
	// AlwaysCopy replaces the destination unconditionally
	AlwaysCopy = CopyPolicy{kind: PolicyAlwaysCopy}
)

// ManualCompare replaces the destination only when cmp(existing, candidate) is true.
// A nil comparator behaves like BytesDiffer.
func ManualCompare(cmp Comparator) CopyPolicy {
	if cmp == nil {
		cmp = BytesDiffer
	}
	return CopyPolicy{kind: PolicyManualCompare, cmp: cmp}
}

func (p CopyPolicy) Kind() PolicyKind { return p.kind }

// Comparator returns the policy's comparator, nil unless the policy is ManualCompare
func (p CopyPolicy) Comparator() Comparator { return p.cmp }

func (p CopyPolicy) String() string { return p.kind.String() }
