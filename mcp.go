package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"jdximcp/param"
)

//go:embed jdxi_sysex.txt
var sysexDoc string

// tools holds the MCP tool handlers.
type tools struct {
	app *app
}

func newMCPServer(a *app) *server.MCPServer {
	s := server.NewMCPServer(
		"JD-Xi MCP",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	t := &tools{app: a}

	s.AddTool(mcp.NewTool("jdxi_describe-sysex",
		mcp.WithDescription("Returns the SysEx implementation notes for the Roland JD-Xi: framing, checksum, address map and value encodings."),
	), t.describeSysex)

	s.AddTool(mcp.NewTool("jdxi_identify",
		mcp.WithDescription("Runs the MIDI identity handshake and reports manufacturer, family, model and firmware version."),
	), t.identify)

	s.AddTool(mcp.NewTool("jdxi_list-parameters",
		mcp.WithDescription("Lists the parameters that can be read and written, as JSON."),
		mcp.WithString("prefix", mcp.Description("Only ids starting with this, e.g. digital1.partial.")),
	), t.listParameters)

	s.AddTool(mcp.NewTool("jdxi_set-parameter",
		mcp.WithDescription("Writes one parameter in display units."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Parameter id from jdxi_list-parameters.")),
		mcp.WithNumber("partial", mcp.Description("Zero-based partial index for partial parameters. Omit for others.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Number in display units, or a label for enumerated parameters.")),
	), t.setParameter)

	s.AddTool(mcp.NewTool("jdxi_get-parameter",
		mcp.WithDescription("Reads one parameter from the synth in display units."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Parameter id from jdxi_list-parameters.")),
		mcp.WithNumber("partial", mcp.Description("Zero-based partial index for partial parameters. Omit for others.")),
	), t.getParameter)

	s.AddTool(mcp.NewTool("jdxi_load-preset",
		mcp.WithDescription("Selects a program with bank select and program change."),
		mcp.WithString("bank", mcp.Required(), mcp.Description("Bank name from the config, or a 14-bit bank select number.")),
		mcp.WithNumber("program", mcp.Required(), mcp.Description("The program number (1-128).")),
	), t.loadPreset)

	s.AddTool(mcp.NewTool("jdxi_play-test-notes",
		mcp.WithDescription("Plays C4 E4 G4 on the preset channel."),
	), t.playTestNotes)

	s.AddTool(mcp.NewTool("jdxi_play-minor7",
		mcp.WithDescription("Plays a C minor 7 chord on the preset channel."),
	), t.playMinor7)

	s.AddTool(mcp.NewTool("jdxi_play-notes",
		mcp.WithDescription("Plays a sequence of notes on the preset channel."),
		mcp.WithString("notes", mcp.Required(), mcp.Description(`Notes like "C4 Eb4 G4 r C5"; r is a rest.`)),
	), t.playNotes)

	return s
}

func runMCP(a *app) error {
	logger.Info("starting JD-Xi MCP server")
	return server.ServeStdio(newMCPServer(a))
}

func (t *tools) describeSysex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("mcp: describe sysex")
	return mcp.NewToolResultText(sysexDoc), nil
}

func (t *tools) identify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := t.app.ctrl.Identify(ctx)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	return mcp.NewToolResultText(id.String()), nil
}

type parameterInfo struct {
	ID       param.ID `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Kind     string   `json:"kind"`
	Partials int      `json:"partials,omitempty"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
	Labels   []string `json:"labels,omitempty"`
}

func (t *tools) listParameters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := request.GetString("prefix", "")
	reg := t.app.ctrl.Registry()

	var out []parameterInfo
	for _, id := range reg.IDs() {
		if !strings.HasPrefix(string(id), prefix) {
			continue
		}
		e, err := reg.Lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, parameterInfo{
			ID:       e.ID,
			Name:     e.Name,
			Address:  e.Base.String(),
			Kind:     e.Spec.Kind.String(),
			Partials: len(e.Scope.Offsets),
			Min:      e.Spec.DisplayMin,
			Max:      e.Spec.DisplayMax,
			Labels:   e.Spec.Labels,
		})
	}

	asJson, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters to JSON: %v", err)
	}
	return mcp.NewToolResultText(string(asJson)), nil
}

func (t *tools) setParameter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	partial := request.GetInt("partial", param.NoPartial)

	v := param.ParseValue(value)
	logger.Debug("mcp: set parameter", "id", id, "partial", partial, "value", v.String())
	if err := t.app.ctrl.SetParameter(ctx, param.ID(id), partial, v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s = %s", formatTarget(param.ID(id), partial), v)), nil
}

func (t *tools) getParameter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	partial := request.GetInt("partial", param.NoPartial)

	v, err := t.app.ctrl.GetParameter(ctx, param.ID(id), partial)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s = %s", formatTarget(param.ID(id), partial), v)), nil
}

func (t *tools) loadPreset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bankArg, err := request.RequireString("bank")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	program, err := request.RequireInt("program")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bank, err := t.app.cfg.Bank(bankArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	logger.Debug("mcp: load preset", "bank", bank, "program", program)
	if err := t.app.ctrl.LoadPreset(ctx, bank, program); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Loaded bank %d program %d.", bank, program)), nil
}

func (t *tools) playTestNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := playTestNotes(t.app.session, t.app.channel()); err != nil {
		return nil, fmt.Errorf("failed to play test notes: %w", err)
	}
	return mcp.NewToolResultText("Test notes played successfully."), nil
}

func (t *tools) playMinor7(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := playMinor7Chord(t.app.session, t.app.channel()); err != nil {
		return nil, fmt.Errorf("failed to play minor 7 chord: %w", err)
	}
	return mcp.NewToolResultText("C minor 7 chord played successfully."), nil
}

func (t *tools) playNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := request.RequireString("notes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := playNotesFromText(t.app.session, t.app.channel(), notes); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Notes played successfully."), nil
}
