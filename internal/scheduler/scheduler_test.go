package scheduler

import (
	"testing"
	"time"

	"knowledge-platform/models"
)

func TestIsDue(t *testing.T) {
	p := NewPoller(nil, nil, time.Minute)
	now := time.Now()
	p.now = func() time.Time { return now }

	never := models.Source{PollInterval: time.Hour}
	if !p.isDue(never) {
		t.Fatal("a source never checked is due")
	}

	recent := now.Add(-10 * time.Minute)
	fresh := models.Source{PollInterval: time.Hour, LastCheckedAt: &recent}
	if p.isDue(fresh) {
		t.Fatal("source inside its interval is not due")
	}

	stale := now.Add(-2 * time.Hour)
	overdue := models.Source{PollInterval: time.Hour, LastCheckedAt: &stale}
	if !p.isDue(overdue) {
		t.Fatal("source past its interval is due")
	}

	unscheduled := models.Source{PollInterval: 0}
	if p.isDue(unscheduled) {
		t.Fatal("source without an interval never polls automatically")
	}
}
