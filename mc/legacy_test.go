package mc_test

import (
	"testing"

	"github.com/sawolke/mcwake/mc"
)

func TestNewLegacyStatusResponse(t *testing.T) {
	resp := mc.NewLegacyStatusResponse(767, "1.21", "sleeping", 0, 20)
	if resp[0] != 0xFF {
		t.Fatalf("first byte: got %#x; want 0xff", resp[0])
	}
	if len(resp) <= 3 {
		t.Fatalf("response too short: %d bytes", len(resp))
	}
}
