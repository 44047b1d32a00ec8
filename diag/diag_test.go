package diag

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarning, "WARNING"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestDefaultSinkWritesToLog(t *testing.T) {
	prev := log.Writer()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	Errorf("pass %s failed", "merge-return")
	if !strings.Contains(buf.String(), "ERROR: pass merge-return failed") {
		t.Errorf("default sink output = %q", buf.String())
	}
}

func TestRegisterOnce(t *testing.T) {
	if err := Register(nil); err == nil {
		t.Error("Register(nil) succeeded, want error")
	}

	var mu sync.Mutex
	var got []string
	capture := SinkFunc(func(level Level, text string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, level.String()+": "+text)
	})

	if err := Register(capture); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(capture); err == nil {
		t.Error("second Register succeeded, want error")
	}

	Infof("shader %d compiled", 3)
	Warningf("slow pass")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "INFO: shader 3 compiled" || got[1] != "WARNING: slow pass" {
		t.Errorf("captured = %v", got)
	}
}

func TestConcurrentLogging(t *testing.T) {
	// The frozen sink must be readable from many goroutines at once.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Debugf("variant %d", j)
			}
		}()
	}
	wg.Wait()
}
