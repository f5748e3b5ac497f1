package room

import (
	"errors"
	"testing"
	"time"
)

func TestJoinIsIdempotentPerClient(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	inst.Join("host", "Host")
	inst.Join("guest", "Guest")
	snap := inst.Join("guest", "Guest")

	if len(snap.Members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(snap.Members))
	}
}

func TestRejoinRestoresConnectedState(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	inst.Join("host", "Host")
	if err := inst.MarkState("host", MemberDisconnected); err != nil {
		t.Fatalf("MarkState failed: %v", err)
	}

	snap := inst.Join("host", "")
	if snap.Members[0].State != MemberConnected {
		t.Errorf("Expected connected after rejoin, got %s", snap.Members[0].State)
	}
}

func TestLeaveTransfersHost(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	inst.Join("host", "Host")
	inst.Join("second", "Second")
	inst.Join("third", "Third")

	snap, empty, err := inst.Leave("host")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if empty {
		t.Fatal("Room should not be empty")
	}
	// 最早加入的剩余成员成为新房主
	if snap.HostID != "second" {
		t.Errorf("Expected host transfer to second, got %s", snap.HostID)
	}
}

func TestLeaveLastMemberEmptiesRoom(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	inst.Join("host", "Host")

	_, empty, err := inst.Leave("host")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if !empty {
		t.Error("Expected room to be empty")
	}

	if _, _, err := inst.Leave("host"); err != ErrNotInRoom {
		t.Errorf("Expected ErrNotInRoom on double leave, got %v", err)
	}
}

func TestSweepExpiredMarksDisconnected(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	now := time.Unix(5000, 0)
	inst.nowFn = func() time.Time { return now }

	inst.Join("host", "Host")
	inst.Join("guest", "Guest")

	// guest 心跳保活，host 超时
	now = now.Add(11 * time.Minute)
	if err := inst.Heartbeat("guest", 20, 5); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	expired := inst.SweepExpired(10 * time.Minute)
	if len(expired) != 1 || expired[0].ClientID != "host" {
		t.Fatalf("Expected host to expire, got %+v", expired)
	}

	// 重复扫描不重复上报
	if again := inst.SweepExpired(10 * time.Minute); len(again) != 0 {
		t.Errorf("Expected no members on second sweep, got %+v", again)
	}

	snap := inst.Snapshot()
	for _, m := range snap.Members {
		if m.ClientID == "host" && m.State != MemberDisconnected {
			t.Errorf("Expected host disconnected, got %s", m.State)
		}
		if m.ClientID == "guest" && m.State != MemberConnected {
			t.Errorf("Expected guest connected, got %s", m.State)
		}
	}
}

func TestHeartbeatRecordsMeasurements(t *testing.T) {
	inst := NewInstance("123456", "host", ControlOpen, DefaultOptions())
	inst.Join("host", "Host")

	if err := inst.Heartbeat("host", 42, -7); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	snap := inst.Snapshot()
	if snap.Members[0].LatencyMs != 42 || snap.Members[0].ClockOffsetMs != -7 {
		t.Errorf("Expected measurements recorded, got %+v", snap.Members[0])
	}

	if err := inst.Heartbeat("ghost", 1, 1); err != ErrNotInRoom {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	inst := testInstance()
	mustAdd(t, inst, "host", "a")

	snap := inst.Snapshot()
	snap.Playlist[0].Track.ID = "tampered"
	snap.Members[0].ClientID = "tampered"

	fresh := inst.Snapshot()
	if fresh.Playlist[0].Track.ID != "a" {
		t.Error("Snapshot playlist must be a copy")
	}
	if fresh.Members[0].ClientID != "host" {
		t.Error("Snapshot members must be a copy")
	}
}

func TestValidateCode(t *testing.T) {
	valid := []string{"000000", "123456", "999999"}
	for _, code := range valid {
		if err := ValidateCode(code); err != nil {
			t.Errorf("Expected %q valid, got %v", code, err)
		}
	}
	invalid := []string{"", "12345", "1234567", "12a456", "12 456", "１２３４５６"}
	for _, code := range invalid {
		if err := ValidateCode(code); err != ErrInvalidRoomCode {
			t.Errorf("Expected %q invalid", code)
		}
	}
}

func TestManagerCreateValidatesControlMode(t *testing.T) {
	mgr := NewManager(DefaultOptions(), time.Hour, time.Minute, nil)

	if _, err := mgr.Create("host", ControlMode("democracy")); !errors.Is(err, ErrInvalidControlMode) {
		t.Errorf("Expected ErrInvalidControlMode, got %v", err)
	}

	// 空模式回落到 open
	inst, err := mgr.Create("host", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got := inst.Snapshot().ControlMode; got != ControlOpen {
		t.Errorf("Expected open control mode default, got %s", got)
	}
}
