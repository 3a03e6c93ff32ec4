package keys

import "testing"

func TestNew_DefaultsPrefix(t *testing.T) {
	n := New("", "emails")
	if got := n.Of("wait"); got != "bull:emails:wait" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNamer_Of(t *testing.T) {
	n := New("relayq", "emails")
	cases := map[string]string{
		Wait:       "relayq:emails:wait",
		Active:     "relayq:emails:active",
		Delayed:    "relayq:emails:delayed",
		Completed:  "relayq:emails:completed",
		Failed:     "relayq:emails:failed",
		Paused:     "relayq:emails:paused",
		MetaPaused: "relayq:emails:meta-paused",
	}
	for sub, want := range cases {
		if got := n.Of(sub); got != want {
			t.Errorf("Of(%q) = %q, want %q", sub, got, want)
		}
	}
}

func TestNamer_Job(t *testing.T) {
	n := New("relayq", "emails")
	if got := n.Job("42"); got != "relayq:emails:42" {
		t.Fatalf("unexpected job key: %s", got)
	}
}

func TestNamer_JobLock(t *testing.T) {
	n := New("relayq", "emails")
	if got := n.JobLock("42"); got != "relayq:emails:42:lock" {
		t.Fatalf("unexpected lock key: %s", got)
	}
}

func TestNamer_EventChannel(t *testing.T) {
	n := New("relayq", "emails")
	if got := n.EventChannel("completed"); got != "completed@emails" {
		t.Fatalf("unexpected event channel: %s", got)
	}
}
