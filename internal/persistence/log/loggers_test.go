package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestActivityLoggerRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewActivityLogger(dir)
	now := time.Date(2026, 5, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	if err := l.Record(Entry{Kind: KindRegister, Agent: "ada"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if err := l.Record(Entry{Kind: KindLifeDay, Agent: "ada", Ref: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "activity", "*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	got, err := ReadActivity(filepath.Join(dir, "activity"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Kind != KindRegister || got[1].Ref != "d1" {
		t.Fatalf("entries=%+v", got)
	}
	if !got[1].TS.Equal(now) {
		t.Fatalf("ts=%v", got[1].TS)
	}
}

func TestActivityLoggerAppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		l := NewActivityLogger(dir)
		l.w.now = func() time.Time { return fixed }
		if err := l.Record(Entry{Kind: KindSimulate}); err != nil {
			t.Fatal(err)
		}
		_ = l.Close()
	}
	got, err := ReadActivity(filepath.Join(dir, "activity"))
	if err != nil || len(got) != 2 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}
