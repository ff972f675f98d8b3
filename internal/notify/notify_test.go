package notify

import (
	"testing"

	"github.com/cirrus-hq/cirrus/internal/core"
)

type recordingListener struct {
	sets    int
	adds    []string
	deletes []string
}

func (l *recordingListener) SetSessions(sessions []core.Session) { l.sets++ }
func (l *recordingListener) AddSession(s core.Session)           { l.adds = append(l.adds, s.ID) }
func (l *recordingListener) DeleteSession(id string)             { l.deletes = append(l.deletes, id) }

type panickyListener struct{}

func (panickyListener) SetSessions(sessions []core.Session) { panic("boom") }
func (panickyListener) AddSession(s core.Session)           { panic("boom") }
func (panickyListener) DeleteSession(id string)             { panic("boom") }

func TestBroadcastWithNoListeners(t *testing.T) {
	hub := NewHub()
	// Must be safe with nothing attached.
	hub.SetSessions(nil)
	hub.AddSession(core.Session{ID: "s1"})
	hub.DeleteSession("s1")
}

func TestFanOut(t *testing.T) {
	hub := NewHub()
	a := &recordingListener{}
	b := &recordingListener{}
	hub.Subscribe(a)
	hub.Subscribe(b)

	hub.SetSessions([]core.Session{{ID: "s1"}})
	hub.AddSession(core.Session{ID: "s2"})
	hub.DeleteSession("s2")

	for _, l := range []*recordingListener{a, b} {
		if l.sets != 1 || len(l.adds) != 1 || len(l.deletes) != 1 {
			t.Errorf("listener saw sets=%d adds=%v deletes=%v", l.sets, l.adds, l.deletes)
		}
	}
}

func TestListenerPanicDoesNotPropagate(t *testing.T) {
	hub := NewHub()
	hub.Subscribe(panickyListener{})
	after := &recordingListener{}
	hub.Subscribe(after)

	hub.SetSessions(nil)
	hub.AddSession(core.Session{ID: "s1"})
	hub.DeleteSession("s1")

	if after.sets != 1 || len(after.adds) != 1 || len(after.deletes) != 1 {
		t.Error("listener after the panicking one missed notifications")
	}
}
