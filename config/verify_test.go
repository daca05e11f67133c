package config_test

import (
	"testing"

	"github.com/sawolke/mcwake/config"
)

func TestVerifyConfigs_DuplicatePort(t *testing.T) {
	cfgs := []config.ServerConfig{
		{
			FilePath: "a.json", ID: "a", Name: "A", Edition: config.Java,
			ContainerName: "mc-a", ExternalPort: 25565, InternalHost: "mc-a", InternalPort: 25565,
		},
		{
			FilePath: "b.json", ID: "b", Name: "B", Edition: config.Java,
			ContainerName: "mc-b", ExternalPort: 25565, InternalHost: "mc-b", InternalPort: 25565,
		},
	}

	errs := config.VerifyConfigs(cfgs)
	found := false
	for _, err := range errs {
		if _, ok := err.(*config.DuplicatePort); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a DuplicatePort error, got %v", errs)
	}
}

func TestVerifyConfigs_RequiredFields(t *testing.T) {
	cfgs := []config.ServerConfig{
		{FilePath: "bad.json"},
	}
	errs := config.VerifyConfigs(cfgs)
	if len(errs) == 0 {
		t.Fatal("expected validation errors for a config missing required fields")
	}
}

func TestVerifyConfigs_CrossProtocolSamePortNotDuplicate(t *testing.T) {
	cfgs := []config.ServerConfig{
		{
			FilePath: "a.json", ID: "a", Name: "A", Edition: config.Java,
			ContainerName: "mc-a", ExternalPort: 25565, InternalHost: "mc-a", InternalPort: 25565,
		},
		{
			FilePath: "b.json", ID: "b", Name: "B", Edition: config.Bedrock,
			ContainerName: "mc-b", ExternalPort: 25565, InternalHost: "mc-b", InternalPort: 19132,
			BedrockInternalPort: 19132,
		},
	}

	for _, err := range config.VerifyConfigs(cfgs) {
		if dp, ok := err.(*config.DuplicatePort); ok {
			t.Fatalf("TCP java port and UDP bedrock port sharing a number must not collide, got %v", dp)
		}
	}
}

func TestVerifyConfigs_Clean(t *testing.T) {
	cfgs := []config.ServerConfig{
		{
			FilePath: "a.json", ID: "a", Name: "A", Edition: config.Java,
			ContainerName: "mc-a", ExternalPort: 25565, InternalHost: "mc-a", InternalPort: 25565,
		},
	}
	if errs := config.VerifyConfigs(cfgs); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
