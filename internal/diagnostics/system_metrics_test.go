package diagnostics

import "testing"

func TestCollect(t *testing.T) {
	c := NewSystemMetricsCollector()

	first := c.Collect()
	if first.CPUCores <= 0 {
		t.Errorf("cpu cores: %d", first.CPUCores)
	}
	if first.Goroutines <= 0 {
		t.Errorf("goroutines: %d", first.Goroutines)
	}
	// CPU usage needs two samples to compute a delta.
	if first.CPUPercent != 0 {
		t.Errorf("first sample cpu percent: %f", first.CPUPercent)
	}

	second := c.Collect()
	if second.CPUPercent < 0 || second.CPUPercent > 100 {
		t.Errorf("cpu percent out of range: %f", second.CPUPercent)
	}
	if second.MemTotalMB > 0 && second.MemUsedMB > second.MemTotalMB {
		t.Errorf("used %.1f MB exceeds total %.1f MB", second.MemUsedMB, second.MemTotalMB)
	}
}

func TestCollect_Concurrent(t *testing.T) {
	c := NewSystemMetricsCollector()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 10; j++ {
				c.Collect()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
