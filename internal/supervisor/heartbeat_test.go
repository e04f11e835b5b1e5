package supervisor

import (
	"os"
	"strconv"
	"testing"
	"time"
)

func TestIsStaleMissingFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	if !IsStale("nonexistent-role") {
		t.Fatal("expected a missing heartbeat file to be stale")
	}
}

func TestIsStaleFreshAndOld(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	if err := os.WriteFile("fresh.heartbeat", []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsStale("fresh") {
		t.Fatal("expected a just-written heartbeat to be fresh")
	}

	old := time.Now().Add(-WatchdogGrace - time.Second).Unix()
	if err := os.WriteFile("old.heartbeat", []byte(strconv.FormatInt(old, 10)), 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsStale("old") {
		t.Fatal("expected a 16s-old heartbeat to be stale")
	}
}
