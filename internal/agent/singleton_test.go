package agent

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/perfmaster/agent/internal/timeline"
)

func TestPackageLevelCallsWithoutInstance(t *testing.T) {
	Destroy()
	if Current() != nil {
		t.Fatal("Current() should be nil before Init")
	}
	TrackEvent("ignored", nil)
	TrackError(errors.New("ignored"))
	Destroy()
}

func TestInitReturnsExistingInstance(t *testing.T) {
	t.Cleanup(Destroy)
	b := newBackend(t, http.StatusOK)

	first, err := Init(b.config(), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	other := b.config()
	other.ProjectID = "someone-else"
	second, err := Init(other, WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if first != second {
		t.Fatal("second Init() should return the first instance")
	}
	if second.cfg.ProjectID != "test-project" {
		t.Errorf("second Init() changed configuration to %q", second.cfg.ProjectID)
	}
	if Current() != first {
		t.Error("Current() should return the initialized agent")
	}
}

func TestInitInvalidConfigLeavesNoInstance(t *testing.T) {
	t.Cleanup(Destroy)
	Destroy()
	b := newBackend(t, http.StatusOK)
	cfg := b.config()
	cfg.APIKey = ""

	if _, err := Init(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Init() error = %v, want ErrInvalidConfig", err)
	}
	if Current() != nil {
		t.Error("failed Init() should not install an agent")
	}
}

func TestDestroyThenInitBuildsFreshAgent(t *testing.T) {
	t.Cleanup(Destroy)
	b := newBackend(t, http.StatusOK)
	buf := timeline.NewBuffer()

	first, err := Init(b.config(), WithTimeline(buf), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	waitConnected(t, first)
	observers := buf.ObserverCount()
	if observers == 0 {
		t.Fatal("running agent should observe the timeline")
	}

	Destroy()
	if Current() != nil {
		t.Fatal("Current() should be nil after Destroy")
	}
	if n := buf.ObserverCount(); n != 0 {
		t.Errorf("observers after Destroy = %d, want 0", n)
	}

	second, err := Init(b.config(), WithTimeline(buf), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Init() after Destroy error = %v", err)
	}
	if second == first {
		t.Fatal("Init() after Destroy should build a new agent")
	}
	if n := buf.ObserverCount(); n != observers {
		t.Errorf("observers = %d, want %d (no leaks across instances)", n, observers)
	}
	waitConnected(t, second)

	TrackEvent("after-reinit", map[string]string{"k": "v"})
	eventually(t, "event over websocket", func() bool {
		for _, m := range b.wsMessages() {
			if gjson.Get(m, "name").String() == "after-reinit" {
				return true
			}
		}
		return false
	})

	Destroy()
	drain(t, second)
	time.Sleep(20 * time.Millisecond)
	if second.ConnectionState().String() != "disconnected" {
		t.Errorf("state after Destroy = %s", second.ConnectionState())
	}
}
