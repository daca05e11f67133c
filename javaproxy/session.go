package javaproxy

import (
	"io"
	"net"
)

// runSession splices client<->backend until either side errors or
// closes, then tears down both. Built on two goroutines feeding a
// single buffered error channel rather than the teacher's bare double
// io.Copy, grounded on itzg-mc-router's pumpConnections/pumpFrames -
// whichever direction fails first wins the race and runSession then
// closes both connections, which ends the other direction's copy.
func runSession(client, backend net.Conn) {
	errCh := make(chan error, 2)

	go pump(backend, client, errCh)
	go pump(client, backend, errCh)

	<-errCh
	client.Close()
	backend.Close()
}

func pump(dst io.Writer, src io.Reader, errCh chan<- error) {
	_, err := io.Copy(dst, src)
	errCh <- err
}
