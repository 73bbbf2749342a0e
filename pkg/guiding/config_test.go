package guiding

import "testing"

func TestDefaultConfig_Validates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestConfig_ValidateRejectsUnknownEnum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NEE = NEEPolicy(99)
	if err := cfg.Validate(); err != ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig for unknown NEE policy, got %v", err)
	}
}

func TestConfig_ValidateRejectsZeroSppPerPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SppPerPass = 0
	if err := cfg.Validate(); err != ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig for zero sppPerPass, got %v", err)
	}
}

func TestConfig_NeeActiveAt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NEE = NeeKickstart
	if !cfg.neeActiveAt(0) {
		t.Errorf("expected kickstart NEE active at spp=0")
	}
	if cfg.neeActiveAt(200) {
		t.Errorf("expected kickstart NEE to turn off once spp reaches 128")
	}

	cfg.NEE = NeeAlways
	if !cfg.neeActiveAt(10000) {
		t.Errorf("expected always-NEE to stay active regardless of spp")
	}

	cfg.NEE = NeeNever
	if cfg.neeActiveAt(0) {
		t.Errorf("expected never-NEE to stay inactive")
	}
}
