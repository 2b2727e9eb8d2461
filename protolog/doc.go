// Package protolog captures SysEx and channel traffic as a machine-readable
// event trace.
//
// It is separate from operational logging (slog). A capture holds every
// frame the transport wrote or received together with frames it dropped,
// so a session with the device can be replayed and inspected offline:
//
//	// Console while developing
//	opts = append(opts, transport.WithProtocolLogger(protolog.NewSlogAdapter(slog.Default())))
//
//	// Capture file, read back with `jdximcp log <file>`
//	fl, _ := protolog.NewFileLogger("session.jlog")
//	opts = append(opts, transport.WithProtocolLogger(fl))
//
// Capture files are a stream of CBOR-encoded events with integer keys.
package protolog
