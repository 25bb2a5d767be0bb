package launcher

import "testing"

func TestFeed(t *testing.T) {
	f := NewFeed()
	a := f.Subscribe(4)
	b := f.Subscribe(1)

	f.Publishf("[%s] %s", "p", "one")
	f.Publishf("[%s] %s", "p", "two")

	if got := <-a.C(); got != "[p] one" {
		t.Errorf("a got %q", got)
	}
	if got := <-a.C(); got != "[p] two" {
		t.Errorf("a got %q", got)
	}
	if got := <-b.C(); got != "[p] one" {
		t.Errorf("b got %q", got)
	}
	if a.Dropped() != 0 || b.Dropped() != 1 {
		t.Errorf("dropped a=%d b=%d, want 0 and 1", a.Dropped(), b.Dropped())
	}

	b.Unsubscribe()
	b.Unsubscribe()
	if _, open := <-b.C(); open {
		t.Error("channel open after Unsubscribe")
	}
	f.Publishf("three")
	if got := <-a.C(); got != "three" {
		t.Errorf("a got %q", got)
	}

	late := f.Subscribe(0)
	select {
	case line := <-late.C():
		t.Errorf("late subscriber received %q", line)
	default:
	}
}
