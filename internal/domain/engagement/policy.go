package engagement

import (
	"math"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

// PolicyVersion tags the scoring table an event was recorded under.
type PolicyVersion string

const (
	PolicyV1 PolicyVersion = "v1"
	PolicyV2 PolicyVersion = "v2"

	CurrentPolicy = PolicyV2
)

// Weights per reaction kind.
type Weights struct {
	Open    float64
	Click   float64
	Convert float64
}

// Policy is one versioned scoring table. Changing weights means adding a new
// version; events keep the version they were created with.
type Policy struct {
	Version  PolicyVersion
	Channels map[notification.Channel]Weights
	// HalfLife decays a score by the age of the event at scoring time.
	// Zero disables decay.
	HalfLife time.Duration
}

// Policies is the registry of every scoring table ever used.
var Policies = map[PolicyVersion]Policy{
	PolicyV1: {
		Version: PolicyV1,
		Channels: map[notification.Channel]Weights{
			notification.ChannelEmail: {Open: 1, Click: 3, Convert: 10},
			notification.ChannelChat:  {Open: 1, Click: 3, Convert: 10},
			notification.ChannelSMS:   {Open: 1, Click: 3, Convert: 10},
		},
	},
	PolicyV2: {
		Version: PolicyV2,
		Channels: map[notification.Channel]Weights{
			notification.ChannelEmail: {Open: 1, Click: 4, Convert: 12},
			// Chat and SMS opens are near-certain, so they carry less signal.
			notification.ChannelChat: {Open: 0.5, Click: 3, Convert: 12},
			notification.ChannelSMS:  {Open: 0.25, Click: 3, Convert: 12},
		},
		HalfLife: 30 * 24 * time.Hour,
	},
}

// PolicyFor returns the table for v, falling back to v1 for untagged rows.
func PolicyFor(v PolicyVersion) Policy {
	if p, ok := Policies[v]; ok {
		return p
	}
	return Policies[PolicyV1]
}

// Score evaluates the event with the policy it was tagged with, decayed by
// its age at asOf.
func Score(e *Event, asOf time.Time) float64 {
	p := PolicyFor(e.PolicyVersion)
	w, ok := p.Channels[e.Channel]
	if !ok {
		return 0
	}
	var s float64
	if e.Opened {
		s += w.Open
	}
	if e.Clicked {
		s += w.Click
	}
	if e.Converted {
		s += w.Convert
	}
	if p.HalfLife > 0 {
		age := asOf.Sub(e.SentAt)
		if age > 0 {
			s *= math.Pow(0.5, float64(age)/float64(p.HalfLife))
		}
	}
	return s
}
