package pac

import (
	"testing"
	"time"
)

func TestReplyCache_SetSkipsStaleGeneration(t *testing.T) {
	rc := newReplyCache(time.Minute)
	t.Cleanup(rc.close)
	cmd := NewCommand("org", "who", "--json")

	gen := rc.generation()
	rc.purge()
	if rc.set(cmd, orgWhoReply, gen) {
		t.Error("set accepted a reply from before the purge")
	}
	if _, ok := rc.get(cmd); ok {
		t.Fatal("stale reply cached")
	}

	if !rc.set(cmd, orgWhoReply, rc.generation()) {
		t.Fatal("set rejected a current reply")
	}
	if line, ok := rc.get(cmd); !ok || line != orgWhoReply {
		t.Errorf("get = %q, %v", line, ok)
	}
}
