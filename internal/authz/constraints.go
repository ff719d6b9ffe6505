// Copyright 2026 The LendCore Authors
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

package authz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"
)

// Constraints restrict when a role's permissions may be exercised. They never
// grant anything.
//
//	{"allowed_cidrs": ["10.0.0.0/8"],
//	 "allowed_hours": {"start": "09:00", "end": "18:00", "timezone": "Europe/Berlin"},
//	 "max_records": 100}
type Constraints struct {
	AllowedCIDRs []string    `json:"allowed_cidrs,omitempty"`
	AllowedHours *HourWindow `json:"allowed_hours,omitempty"`
	MaxRecords   *int        `json:"max_records,omitempty"`

	prefixes []netip.Prefix
	loc      *time.Location
	start    int
	end      int
}

// HourWindow is a daily wall clock window. End before Start spans midnight.
type HourWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// ParseConstraints decodes and validates a constraint payload. An empty
// payload yields nil.
func ParseConstraints(raw json.RawMessage) (*Constraints, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var c Constraints
	if err := dec.Decode(&c); err != nil {
		return nil, invalidArgument("malformed constraints: %v", err)
	}

	for _, cidr := range c.AllowedCIDRs {
		prefix, err := parsePrefix(cidr)
		if err != nil {
			return nil, invalidArgument("malformed constraints: %v", err)
		}
		c.prefixes = append(c.prefixes, prefix)
	}

	if w := c.AllowedHours; w != nil {
		var err error
		if c.start, err = parseClock(w.Start); err != nil {
			return nil, invalidArgument("malformed constraints: %v", err)
		}
		if c.end, err = parseClock(w.End); err != nil {
			return nil, invalidArgument("malformed constraints: %v", err)
		}
		if c.start == c.end {
			return nil, invalidArgument("malformed constraints: empty hour window")
		}
		c.loc = time.UTC
		if w.Timezone != "" {
			if c.loc, err = time.LoadLocation(w.Timezone); err != nil {
				return nil, invalidArgument("malformed constraints: %v", err)
			}
		}
	}

	if c.MaxRecords != nil && *c.MaxRecords < 0 {
		return nil, invalidArgument("malformed constraints: negative max_records")
	}
	return &c, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid cidr %q", s)
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// parseClock converts HH:MM into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CheckContext describes the call a constrained decision is made for.
type CheckContext struct {
	// IP is the caller's address. The zero value fails any CIDR constraint.
	IP netip.Addr
	// At defaults to the evaluation time.
	At time.Time
	// RecordCount is the number of records the call touches.
	RecordCount int
}

// Decision is the result of a constrained access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allows evaluates the constraints against cc. A nil receiver allows.
func (c *Constraints) Allows(cc CheckContext) (bool, string) {
	if c == nil {
		return true, ""
	}

	if len(c.prefixes) > 0 {
		if !cc.IP.IsValid() {
			return false, "source address unknown"
		}
		ip := cc.IP.Unmap()
		matched := false
		for _, p := range c.prefixes {
			if p.Contains(ip) {
				matched = true
				break
			}
		}
		if !matched {
			return false, "source address not allowed"
		}
	}

	if c.AllowedHours != nil {
		local := cc.At.In(c.loc)
		minute := local.Hour()*60 + local.Minute()
		var inside bool
		if c.start < c.end {
			inside = minute >= c.start && minute < c.end
		} else {
			inside = minute >= c.start || minute < c.end
		}
		if !inside {
			return false, "outside allowed hours"
		}
	}

	if c.MaxRecords != nil && cc.RecordCount > *c.MaxRecords {
		return false, fmt.Sprintf("record count %d exceeds limit %d", cc.RecordCount, *c.MaxRecords)
	}
	return true, ""
}
