package lifecycle

import "testing"

func TestLifecycle_DrainWakesWaitersOnce(t *testing.T) {
	var l Lifecycle
	ch := l.Draining()
	if l.IsDraining() {
		t.Fatalf("zero value is draining")
	}
	select {
	case <-ch:
		t.Fatalf("Draining closed before Drain")
	default:
	}

	l.Drain()
	l.Drain()
	if !l.IsDraining() {
		t.Fatalf("IsDraining = false after Drain")
	}
	<-ch
	<-l.Draining()
}

func TestLifecycle_NilNeverDrains(t *testing.T) {
	var l *Lifecycle
	l.Drain()
	if l.IsDraining() || l.Draining() != nil {
		t.Fatalf("nil lifecycle reported draining")
	}
}
