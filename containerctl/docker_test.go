package containerctl_test

import (
	"testing"

	"github.com/sawolke/mcwake/containerctl"
)

func TestStatus_Constants(t *testing.T) {
	// Guards against accidental renames of the state strings the
	// Lifecycle Manager pattern-matches on - these must track the
	// exact strings the Docker daemon reports in ContainerState.Status.
	tt := map[containerctl.State]string{
		containerctl.StateRunning:    "running",
		containerctl.StateExited:     "exited",
		containerctl.StateRestarting: "restarting",
		containerctl.StateCreated:    "created",
		containerctl.StatePaused:     "paused",
		containerctl.StateDead:       "dead",
	}
	for state, want := range tt {
		if string(state) != want {
			t.Errorf("got %q; want %q", state, want)
		}
	}
}
