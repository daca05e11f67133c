package javaproxy

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestRunSession_ClosesBothSidesOnEOF(t *testing.T) {
	clientA, clientB := net.Pipe()
	backendA, backendB := net.Pipe()

	done := make(chan struct{})
	go func() {
		runSession(clientB, backendB)
		close(done)
	}()

	go io.Copy(io.Discard, backendA)
	clientA.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runSession did not return after client closed")
	}

	if _, err := backendA.Write([]byte("x")); err == nil {
		t.Error("expected backend connection to be closed by runSession")
	}
}
