package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"jdximcp/config"
	"jdximcp/device"
	"jdximcp/param"
	"jdximcp/protolog"
	"jdximcp/sysex"
	"jdximcp/transport"
)

// app is one open connection to the synth.
type app struct {
	cfg     config.Config
	session *transport.Session
	ctrl    *device.Controller
	capture *protolog.FileLogger
}

func openLink(cfg config.Config) (transport.Link, error) {
	if cfg.Link.Kind == config.LinkSerial {
		l, err := transport.OpenSerial(cfg.Link.Serial, cfg.Link.Baud)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	p, err := transport.OpenMIDIPort(cfg.Link.Port)
	if err != nil {
		return nil, err
	}
	logger.Info("midi: port opened", "port", p.String())
	return p, nil
}

func openApp(cfg config.Config, capture string) (*app, error) {
	link, err := openLink(cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, link, capture)
	if err != nil {
		_ = link.Close()
		return nil, err
	}
	return a, nil
}

// newApp opens a session on link. capture overrides cfg.ProtocolLog.
func newApp(cfg config.Config, link transport.Link, capture string) (*app, error) {
	header, err := cfg.Header()
	if err != nil {
		return nil, err
	}
	family, err := cfg.FamilyCode()
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	followUps, err := refreshReads(cfg.Refresh)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	loggers := []protolog.Logger{protolog.NewSlogAdapter(logger)}
	if capture == "" {
		capture = cfg.ProtocolLog
	}
	if capture != "" {
		a.capture, err = protolog.NewFileLogger(capture)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, a.capture)
	}

	a.session, err = transport.Open(link,
		transport.WithHeader(header),
		transport.WithMinGap(cfg.Timing.MinGap),
		transport.WithTimeout(cfg.Timing.RequestTimeout),
		transport.WithLogger(logger),
		transport.WithProtocolLogger(protolog.NewMultiLogger(loggers...)),
	)
	if err != nil {
		if a.capture != nil {
			_ = a.capture.Close()
		}
		return nil, err
	}

	a.ctrl = device.NewController(a.session, reg, device.Options{
		Channel: a.channel(),
		Expect: device.Expect{
			Manufacturer: []byte{byte(cfg.Device.Manufacturer)},
			Family:       family,
		},
		IdentifyTimeout: cfg.Timing.IdentifyTimeout,
		FollowUps:       followUps,
		Logger:          logger,
	})
	return a, nil
}

// channel is the zero-based preset channel.
func (a *app) channel() uint8 { return uint8(a.cfg.Device.Channel-1) & 0x0F }

func (a *app) Close() error {
	err := a.session.Close()
	if a.capture != nil {
		err = errors.Join(err, a.capture.Close())
	}
	return err
}

func loadRegistry(path string) (*param.Registry, error) {
	if path == "" {
		return param.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return param.LoadCatalog(f)
}

func refreshReads(reads []config.Read) ([]device.FollowUp, error) {
	out := make([]device.FollowUp, 0, len(reads))
	for _, r := range reads {
		addr, err := sysex.ParseAddress(r.Address)
		if err != nil {
			return nil, fmt.Errorf("refresh %q: %w", r.Address, err)
		}
		out = append(out, device.FollowUp{Addr: addr, Size: r.Size})
	}
	return out, nil
}

func listPorts(w io.Writer) error {
	ins, outs := transport.PortNames()
	fmt.Fprintln(w, "MIDI inputs:")
	for _, n := range ins {
		fmt.Fprintf(w, "  %s\n", n)
	}
	fmt.Fprintln(w, "MIDI outputs:")
	for _, n := range outs {
		fmt.Fprintf(w, "  %s\n", n)
	}
	serials, err := transport.SerialPortNames()
	if err != nil {
		return fmt.Errorf("serial ports: %w", err)
	}
	fmt.Fprintln(w, "Serial ports:")
	for _, n := range serials {
		fmt.Fprintf(w, "  %s\n", n)
	}
	return nil
}
