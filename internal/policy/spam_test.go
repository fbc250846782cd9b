package policy

import (
	"testing"
	"time"
)

func TestSpamPolicy_AllowsThenDropsDuplicate(t *testing.T) {
	p := NewSpamPolicy(time.Hour, 30)
	if v := p.Evaluate("alice", "hash1"); v != VerdictAllow {
		t.Fatalf("first message should be allowed, got %s", v)
	}
	if v := p.Evaluate("alice", "hash1"); v != VerdictDropDuplicate {
		t.Fatalf("repeat hash should be dropped as duplicate, got %s", v)
	}
}

func TestSpamPolicy_DuplicateWindowExpires(t *testing.T) {
	p := NewSpamPolicy(time.Minute, 30)
	now := time.Now()
	p.now = func() time.Time { return now }

	if v := p.Evaluate("alice", "hash1"); v != VerdictAllow {
		t.Fatalf("first message should be allowed, got %s", v)
	}
	now = now.Add(2 * time.Minute)
	if v := p.Evaluate("alice", "hash1"); v != VerdictAllow {
		t.Fatalf("hash outside window should be allowed again, got %s", v)
	}
}

func TestSpamPolicy_RateLimitsWithinMinute(t *testing.T) {
	p := NewSpamPolicy(time.Hour, 2)
	now := time.Now()
	p.now = func() time.Time { return now }

	if v := p.Evaluate("bob", "h1"); v != VerdictAllow {
		t.Fatalf("1st message should be allowed, got %s", v)
	}
	if v := p.Evaluate("bob", "h2"); v != VerdictAllow {
		t.Fatalf("2nd message should be allowed, got %s", v)
	}
	if v := p.Evaluate("bob", "h3"); v != VerdictDropRateLimited {
		t.Fatalf("3rd message within the same minute should be rate limited, got %s", v)
	}
}

func TestSpamPolicy_RateLimitResetsNextMinute(t *testing.T) {
	p := NewSpamPolicy(time.Hour, 1)
	now := time.Now()
	p.now = func() time.Time { return now }

	if v := p.Evaluate("carol", "h1"); v != VerdictAllow {
		t.Fatalf("1st message should be allowed, got %s", v)
	}
	if v := p.Evaluate("carol", "h2"); v != VerdictDropRateLimited {
		t.Fatalf("2nd message same minute should be rate limited, got %s", v)
	}
	now = now.Add(70 * time.Second)
	if v := p.Evaluate("carol", "h3"); v != VerdictAllow {
		t.Fatalf("message in next minute should be allowed, got %s", v)
	}
}

func TestSpamPolicy_Prune(t *testing.T) {
	p := NewSpamPolicy(time.Minute, 30)
	now := time.Now()
	p.now = func() time.Time { return now }
	p.Evaluate("dave", "h1")

	now = now.Add(2 * time.Minute)
	p.Prune()

	if _, ok := p.hashes["dave|h1"]; ok {
		t.Fatal("expected stale hash record to be pruned")
	}
}

func TestRelayConfig_Defaults(t *testing.T) {
	rc := NewRelayConfig()
	summary := rc.GetConfigSummary()
	if !summary.Enabled || summary.MaxRelayHops != DefaultMaxRelayHops || summary.BatteryThreshold != DefaultBatteryThreshold {
		t.Fatalf("unexpected defaults: %+v", summary)
	}
}

func TestRelayConfig_SetMaxRelayHopsClampsToOne(t *testing.T) {
	rc := NewRelayConfig()
	rc.SetMaxRelayHops(0)
	if rc.MaxRelayHops() != 1 {
		t.Fatalf("expected clamp to 1, got %d", rc.MaxRelayHops())
	}
}

func TestRelayConfig_ShouldRelayWithBatteryLevel(t *testing.T) {
	rc := NewRelayConfig()
	rc.SetBatteryThreshold(20)
	if rc.ShouldRelayWithBatteryLevel(19) {
		t.Fatal("expected node below threshold to not relay")
	}
	if !rc.ShouldRelayWithBatteryLevel(20) {
		t.Fatal("expected node at threshold to relay")
	}
}
