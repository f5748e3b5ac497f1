package session

import "testing"

func TestRegisterAndCurrent(t *testing.T) {
	tr := NewTracker(nil)
	tr.Register("client-1", "sess-a", "user-1", "123456")

	reg, ok := tr.Current("client-1")
	if !ok {
		t.Fatal("Expected registration to exist")
	}
	if reg.SessionID != "sess-a" || reg.RoomCode != "123456" {
		t.Errorf("Unexpected registration: %+v", reg)
	}

	if _, ok := tr.Current("client-unknown"); ok {
		t.Error("Expected no registration for unknown client")
	}
}

// TestReconnectReplacesSession 重连后新会话覆盖旧会话
func TestReconnectReplacesSession(t *testing.T) {
	tr := NewTracker(nil)
	tr.Register("client-1", "sess-a", "user-1", "123456")
	tr.Register("client-1", "sess-b", "user-1", "123456")

	if !tr.IsCurrent("client-1", "sess-b") {
		t.Error("Expected sess-b to be current")
	}
	if tr.IsCurrent("client-1", "sess-a") {
		t.Error("Expected sess-a to be superseded")
	}
	if tr.Count() != 1 {
		t.Errorf("Expected single registration, got %d", tr.Count())
	}
}

// TestStaleDisconnectIgnored 核心正确性：被取代会话的断开通知不得移除成员
// 模拟快速重连竞态——新会话 sess-b 先注册，旧会话 sess-a 的断开通知随后到达
func TestStaleDisconnectIgnored(t *testing.T) {
	tr := NewTracker(nil)
	tr.Register("client-1", "sess-a", "user-1", "123456")
	tr.Register("client-1", "sess-b", "user-1", "123456")

	if _, removed := tr.ReleaseIfCurrent("client-1", "sess-a"); removed {
		t.Fatal("Stale session disconnect must not remove the registration")
	}

	// 成员仍由新会话代表
	if !tr.IsCurrent("client-1", "sess-b") {
		t.Error("Expected sess-b to remain current after stale disconnect")
	}
}

// TestCurrentDisconnectRemoves 当前会话断开时正常移除
func TestCurrentDisconnectRemoves(t *testing.T) {
	tr := NewTracker(nil)
	tr.Register("client-1", "sess-a", "user-1", "123456")

	reg, removed := tr.ReleaseIfCurrent("client-1", "sess-a")
	if !removed {
		t.Fatal("Expected current session disconnect to remove registration")
	}
	if reg.RoomCode != "123456" {
		t.Errorf("Expected released registration to carry room code, got %q", reg.RoomCode)
	}
	if tr.Count() != 0 {
		t.Errorf("Expected no registrations, got %d", tr.Count())
	}
}

// TestReleaseIsIdempotent 重复的断开通知是幂等的
func TestReleaseIsIdempotent(t *testing.T) {
	tr := NewTracker(nil)
	tr.Register("client-1", "sess-a", "user-1", "123456")

	if _, removed := tr.ReleaseIfCurrent("client-1", "sess-a"); !removed {
		t.Fatal("First release should remove")
	}
	if _, removed := tr.ReleaseIfCurrent("client-1", "sess-a"); removed {
		t.Error("Second release must be a no-op")
	}
	if _, removed := tr.ReleaseIfCurrent("client-unknown", "sess-x"); removed {
		t.Error("Release for unknown client must be a no-op")
	}
}
