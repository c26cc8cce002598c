package fraud

import (
	"reflect"
	"testing"
	"time"
)

var defaultPolicy = Policy{WindowMinutes: 60, MaxPerWindow: 3}

func fullSignalEvent(amount int64, ip string, at time.Time) Event {
	return Event{
		AmountCents: amount,
		CardToken:   "tok_123",
		DeviceHash:  "dev_123",
		IP:          ip,
		Geo:         &Geo{Lat: 37.77, Lng: -122.42},
		Timestamp:   at,
	}
}

func TestEvaluateNonPositiveAmountBlocks(t *testing.T) {
	now := time.Now()
	cases := []Event{
		{AmountCents: 0},
		{AmountCents: -100, CardToken: "tok", DeviceHash: "dev", IP: "1.1.1.1", Geo: &Geo{}},
	}
	for _, event := range cases {
		event.Timestamp = now
		got := Evaluate(event, nil, defaultPolicy)
		want := Decision{Action: ActionBlock, Reasons: []string{ReasonNonPositiveAmount}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("amount %d: want %+v got %+v", event.AmountCents, want, got)
		}
	}
}

func TestEvaluateAllSignalsAllows(t *testing.T) {
	got := Evaluate(fullSignalEvent(100, "127.0.0.1", time.Now()), nil, defaultPolicy)
	if got.Action != ActionAllow {
		t.Fatalf("expected allow, got %s", got.Action)
	}
	if got.Reasons == nil || len(got.Reasons) != 0 {
		t.Fatalf("expected empty reasons, got %#v", got.Reasons)
	}
}

func TestEvaluateMissingSignalsReview(t *testing.T) {
	got := Evaluate(Event{AmountCents: 100, Timestamp: time.Now()}, nil, defaultPolicy)
	want := []string{ReasonMissingCardToken, ReasonMissingDeviceHash, ReasonMissingIP, ReasonMissingGeo}
	if got.Action != ActionReview {
		t.Fatalf("expected review, got %s", got.Action)
	}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Fatalf("unexpected reasons: %#v", got.Reasons)
	}
}

func TestEvaluateVelocityBlocksFourthAndFifth(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := make([]Observation, 0, 5)
	actions := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 5 * time.Minute)
		decision := Evaluate(fullSignalEvent(100, "1.2.3.4", at), history, defaultPolicy)
		actions = append(actions, decision.Action)
		if decision.Blocked() {
			found := false
			for _, reason := range decision.Reasons {
				if reason == ReasonVelocityExceeded {
					found = true
				}
			}
			if !found {
				t.Fatalf("event %d blocked without velocity reason: %#v", i+1, decision.Reasons)
			}
		}
		history = append(history, Observation{IP: "1.2.3.4", Timestamp: at})
	}
	want := []string{ActionAllow, ActionAllow, ActionAllow, ActionBlock, ActionBlock}
	if !reflect.DeepEqual(actions, want) {
		t.Fatalf("unexpected actions: %v", actions)
	}
}

func TestEvaluateVelocityIgnoresOtherIPsAndOldEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []Observation{
		{IP: "1.2.3.4", Timestamp: now.Add(-2 * time.Hour)},
		{IP: "1.2.3.4", Timestamp: now.Add(-61 * time.Minute)},
		{IP: "5.6.7.8", Timestamp: now.Add(-time.Minute)},
		{IP: "5.6.7.8", Timestamp: now.Add(-2 * time.Minute)},
		{IP: "5.6.7.8", Timestamp: now.Add(-3 * time.Minute)},
		{IP: "1.2.3.4", Timestamp: now.Add(time.Minute)},
	}
	got := Evaluate(fullSignalEvent(100, "1.2.3.4", now), history, defaultPolicy)
	if got.Action != ActionAllow {
		t.Fatalf("expected allow, got %+v", got)
	}
}

func TestEvaluateVelocityDisabledPolicy(t *testing.T) {
	now := time.Now()
	history := []Observation{
		{IP: "9.9.9.9", Timestamp: now.Add(-time.Minute)},
		{IP: "9.9.9.9", Timestamp: now.Add(-2 * time.Minute)},
	}
	got := Evaluate(fullSignalEvent(100, "9.9.9.9", now), history, Policy{WindowMinutes: 60})
	if got.Action != ActionAllow {
		t.Fatalf("expected allow when max_per_window disabled, got %+v", got)
	}
}

func TestEvaluateReasonsEmptyIffAllow(t *testing.T) {
	now := time.Now()
	events := []Event{
		{AmountCents: 0, Timestamp: now},
		{AmountCents: 50, Timestamp: now},
		{AmountCents: 50, IP: "1.1.1.1", Timestamp: now},
		fullSignalEvent(50, "2.2.2.2", now),
	}
	for i, event := range events {
		decision := Evaluate(event, nil, defaultPolicy)
		if (decision.Action == ActionAllow) != (len(decision.Reasons) == 0) {
			t.Fatalf("case %d: action %s with reasons %#v", i, decision.Action, decision.Reasons)
		}
	}
}
