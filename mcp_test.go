package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestMCPSetParameter(t *testing.T) {
	a, link := newTestApp(t, "")
	tl := &tools{app: a}

	res, err := tl.setParameter(context.Background(), callRequest(map[string]any{
		"id":      "digital1.partial.filter_cutoff",
		"partial": 1,
		"value":   "100",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "digital1.partial.filter_cutoff:1 = 100", resultText(t, res))

	require.Len(t, link.Sent(), 1)
	assert.Equal(t, []byte{0x19, 0x01, 0x21, 0x0C, 0x64}, link.Sent()[0][8:13])

	res, err = tl.setParameter(context.Background(), callRequest(map[string]any{
		"id":    "digital1.partial.osc_wave",
		"value": "SAW",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "partial parameter without a partial")

	res, err = tl.setParameter(context.Background(), callRequest(map[string]any{"value": "1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Len(t, link.Sent(), 1)
}

func TestMCPGetParameter(t *testing.T) {
	a, link := newTestApp(t, "")
	link.Respond(answer(70))
	tl := &tools{app: a}

	res, err := tl.getParameter(context.Background(), callRequest(map[string]any{
		"id":      "digital1.partial.osc_pitch",
		"partial": 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, "digital1.partial.osc_pitch:2 = 6", resultText(t, res))

	res, err = tl.getParameter(context.Background(), callRequest(map[string]any{"id": "no.such"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPLoadPreset(t *testing.T) {
	a, link := newTestApp(t, "")
	tl := &tools{app: a}

	res, err := tl.loadPreset(context.Background(), callRequest(map[string]any{"bank": "user", "program": 3}))
	require.NoError(t, err)
	assert.Equal(t, "Loaded bank 1 program 3.", resultText(t, res))
	assert.Equal(t, [][]byte{{0xBF, 0x00, 0x00}, {0xBF, 0x20, 0x01}, {0xCF, 0x02}}, link.Sent())

	res, err = tl.loadPreset(context.Background(), callRequest(map[string]any{"bank": "user", "program": 129}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tl.loadPreset(context.Background(), callRequest(map[string]any{"bank": "nope", "program": 1}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Len(t, link.Sent(), 3)
}

func TestMCPListParameters(t *testing.T) {
	a, _ := newTestApp(t, "")
	tl := &tools{app: a}

	res, err := tl.listParameters(context.Background(), callRequest(map[string]any{"prefix": "analog."}))
	require.NoError(t, err)

	var got []parameterInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.NotEmpty(t, got)
	for _, p := range got {
		assert.Contains(t, string(p.ID), "analog.")
	}
	assert.Equal(t, "analog.amp_level", string(got[0].ID))
	assert.Equal(t, "19 42 00 2C", got[0].Address)
	assert.Equal(t, 127, got[0].Max)
}

func TestMCPIdentifyAndDoc(t *testing.T) {
	a, link := newTestApp(t, "")
	link.Respond(answer(0))
	tl := &tools{app: a}

	res, err := tl.identify(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "family 0E 03")

	res, err = tl.describeSysex(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "F0 41 dev 00 00 00 0E 12")
}

func TestMCPServerRegistersTools(t *testing.T) {
	a, _ := newTestApp(t, "")
	assert.NotNil(t, newMCPServer(a))
}
