package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"jdximcp/device"
)

func formatChange(c device.Change) string {
	return fmt.Sprintf("%s  %-40s = %s (device %d)", c.Address, formatTarget(c.ID, c.Partial), c.Value, c.Device)
}

// watch prints decoded parameter changes and channel messages to w, holding
// mu for each line.
func watch(a *app, w io.Writer, mu *sync.Mutex) {
	a.ctrl.OnParameterChanged(func(c device.Change) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, formatChange(c))
	})
	a.session.OnChannel(func(m midi.Message) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "MIDI  %s\n", m)
	})
}

func runMonitor(ctx context.Context, a *app, w io.Writer) error {
	var mu sync.Mutex
	watch(a, w, &mu)
	logger.Info("monitoring device traffic, interrupt to stop")
	<-ctx.Done()
	return nil
}
