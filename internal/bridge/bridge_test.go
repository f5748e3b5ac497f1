package bridge

import "testing"

func TestBuildEventSubject(t *testing.T) {
	cases := []struct {
		code  string
		event string
		want  string
	}{
		{"123456", "sync:state", "musicroom.room.123456.sync.state"},
		{"123456", "queue:updated", "musicroom.room.123456.queue.updated"},
		{"654321", "member:timeout", "musicroom.room.654321.member.timeout"},
	}
	for _, tc := range cases {
		if got := BuildEventSubject(tc.code, tc.event); got != tc.want {
			t.Errorf("BuildEventSubject(%q, %q) = %q, want %q", tc.code, tc.event, got, tc.want)
		}
	}
}
