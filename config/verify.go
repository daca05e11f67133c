package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type DuplicatePort struct {
	Cfg1Path string
	Cfg2Path string
	Port     int
	Kind     string
}

func (err *DuplicatePort) Error() string {
	return fmt.Sprintf("%s port %d is used by both %s and %s", err.Kind, err.Port, err.Cfg1Path, err.Cfg2Path)
}

// VerifyConfigs validates each config's fields and checks the
// cross-config invariant that no two servers claim the same external
// port, generalizing the teacher's VerifyConfigs duplicate-domain check
// to duplicate ports. The uniqueness requirement is scoped per protocol
// (TCP vs UDP), not per raw port number: cmd/ultraviolet binds Java
// listeners on ExternalPort over TCP and Bedrock listeners on
// BedrockPort (or ExternalPort when BedrockPort is unset) over UDP, so
// a Bedrock server's UDP port sharing a number with an unrelated Java
// server's TCP port is not a real collision.
func VerifyConfigs(cfgs []ServerConfig) []error {
	var errs []error

	javaPorts := make(map[int]int)
	bedrockPorts := make(map[int]int)

	for i, cfg := range cfgs {
		if err := validate.Struct(cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.FilePath, err))
		}

		if cfg.Edition == Java || cfg.Crossplay {
			if other, ok := javaPorts[cfg.ExternalPort]; ok {
				errs = append(errs, &DuplicatePort{
					Cfg1Path: cfg.FilePath,
					Cfg2Path: cfgs[other].FilePath,
					Port:     cfg.ExternalPort,
					Kind:     "java external",
				})
			} else {
				javaPorts[cfg.ExternalPort] = i
			}
		}

		if cfg.Edition == Bedrock || cfg.Crossplay {
			bedrockPort := cfg.BedrockPort
			if bedrockPort == 0 {
				bedrockPort = cfg.ExternalPort
			}
			if other, ok := bedrockPorts[bedrockPort]; ok {
				errs = append(errs, &DuplicatePort{
					Cfg1Path: cfg.FilePath,
					Cfg2Path: cfgs[other].FilePath,
					Port:     bedrockPort,
					Kind:     "bedrock external",
				})
			} else {
				bedrockPorts[bedrockPort] = i
			}
		}
	}
	return errs
}
