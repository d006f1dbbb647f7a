package action

import (
	"strconv"
	"strings"
)

// Outcome is one result code an Action can report.
type Outcome uint8

const (
	Ok Outcome = iota
	Unknown
	NotImplemented
	LookupFailure
	Disabled
	OnCooldown
	RandomChanceMiss
	BlockedUser
	BlockedChannel
)

var outcomeNames = [...]string{
	Ok:               "Ok",
	Unknown:          "Unknown",
	NotImplemented:   "NotImplemented",
	LookupFailure:    "LookupFailure",
	Disabled:         "Disabled",
	OnCooldown:       "OnCooldown",
	RandomChanceMiss: "RandomChanceMiss",
	BlockedUser:      "BlockedUser",
	BlockedChannel:   "BlockedChannel",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "Outcome(" + strconv.Itoa(int(o)) + ")"
}

// Outcomes is a set of Outcome values. The zero value is the empty set.
type Outcomes uint16

// Of builds a set from the given outcomes.
func Of(outcomes ...Outcome) Outcomes {
	var s Outcomes
	for _, o := range outcomes {
		s |= 1 << o
	}
	return s
}

// Union returns the set containing every member of s and others.
func (s Outcomes) Union(others ...Outcomes) Outcomes {
	for _, o := range others {
		s |= o
	}
	return s
}

// Has reports whether o is a member of s.
func (s Outcomes) Has(o Outcome) bool { return s&(1<<o) != 0 }

// Success reports whether the set is exactly {Ok}.
func (s Outcomes) Success() bool { return s == Of(Ok) }

// Slice returns the members in ascending order.
func (s Outcomes) Slice() []Outcome {
	var out []Outcome
	for o := Ok; int(o) < len(outcomeNames); o++ {
		if s.Has(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s Outcomes) String() string {
	members := s.Slice()
	names := make([]string, 0, len(members))
	for _, o := range members {
		names = append(names, o.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
