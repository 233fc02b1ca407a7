package config

import "testing"

func TestDefaultMatchesConstants(t *testing.T) {
	cfg := Default()
	if cfg.MaxBytecodeSize != DefaultMaxBytecodeSize {
		t.Errorf("MaxBytecodeSize = %d, want %d", cfg.MaxBytecodeSize, DefaultMaxBytecodeSize)
	}
	if cfg.StaticFrameHotness != DefaultStaticFrameHotness {
		t.Errorf("StaticFrameHotness = %d, want %d", cfg.StaticFrameHotness, DefaultStaticFrameHotness)
	}
}

func TestThresholdForFallsBackToGlobal(t *testing.T) {
	cfg := Default()
	if got := cfg.ThresholdFor("cu/foo"); got != cfg.StaticFrameHotness {
		t.Errorf("ThresholdFor with no override = %d, want %d", got, cfg.StaticFrameHotness)
	}
}

func TestSetFrameHotnessOverridesOnlyNamedFrame(t *testing.T) {
	cfg := Default()
	cfg.SetFrameHotness("cu/hot", 5)

	if got := cfg.ThresholdFor("cu/hot"); got != 5 {
		t.Errorf("ThresholdFor(cu/hot) = %d, want 5", got)
	}
	if got := cfg.ThresholdFor("cu/other"); got != cfg.StaticFrameHotness {
		t.Errorf("ThresholdFor(cu/other) = %d, want %d (unaffected)", got, cfg.StaticFrameHotness)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/spesh-config.yaml"); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
