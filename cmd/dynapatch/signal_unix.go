//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannel returns a buffered channel that receives SIGINT and SIGTERM.
func signalChannel() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
