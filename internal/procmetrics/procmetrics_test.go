package procmetrics

import (
	"os"
	"runtime"
	"testing"
	"time"
)

func TestSampleSelfProcess(t *testing.T) {
	s := NewSampler(os.Getpid())
	sample, err := s.Sample()
	if err != nil {
		t.Fatalf("Sample() on our own process failed: %v", err)
	}
	if sample.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", sample.PID, os.Getpid())
	}
	if sample.MemoryMB <= 0 {
		t.Errorf("MemoryMB = %d, want > 0 for a live process", sample.MemoryMB)
	}
	if sample.CPUPercent != 0 {
		t.Errorf("first sample CPUPercent = %v, want 0 (no prior measurement)", sample.CPUPercent)
	}
}

func TestSampleComputesCPUDeltaOnSecondCall(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("CPU delta computation only exercised on the /proc code path")
	}
	s := NewSampler(os.Getpid())
	if _, err := s.Sample(); err != nil {
		t.Fatalf("first Sample() failed: %v", err)
	}
	// Burn a little CPU so utime/stime advance between samples.
	sum := 0
	deadline := time.Now().Add(20 * time.Millisecond)
	for time.Now().Before(deadline) {
		sum++
	}
	_ = sum

	second, err := s.Sample()
	if err != nil {
		t.Fatalf("second Sample() failed: %v", err)
	}
	if second.CPUPercent < 0 {
		t.Errorf("CPUPercent = %v, want >= 0", second.CPUPercent)
	}
}

func TestSampleUnknownPIDReturnsError(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("this failure path is specific to the /proc lookup")
	}
	// PID 1 always exists but a very high, almost certainly unused PID should not.
	s := NewSampler(1 << 30)
	if _, err := s.Sample(); err == nil {
		t.Fatal("expected an error sampling a nonexistent PID")
	}
}
