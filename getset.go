package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"jdximcp/param"
)

// parseTarget splits "id" or "id:partial". Partials are zero-based.
func parseTarget(s string) (param.ID, int, error) {
	id, p, ok := strings.Cut(strings.TrimSpace(s), ":")
	if id == "" {
		return "", 0, errors.New("missing parameter id")
	}
	if !ok {
		return param.ID(id), param.NoPartial, nil
	}
	partial, err := strconv.Atoi(p)
	if err != nil || partial < 0 {
		return "", 0, fmt.Errorf("bad partial %q", p)
	}
	return param.ID(id), partial, nil
}

func formatTarget(id param.ID, partial int) string {
	if partial == param.NoPartial {
		return string(id)
	}
	return fmt.Sprintf("%s:%d", id, partial)
}

func cmdSet(ctx context.Context, a *app, w io.Writer, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set <id>[:partial] <value>")
	}
	id, partial, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	v := param.ParseValue(args[1])
	if err := a.ctrl.SetParameter(ctx, id, partial, v); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = %s\n", formatTarget(id, partial), v)
	return nil
}

func cmdGet(ctx context.Context, a *app, w io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <id>[:partial]")
	}
	id, partial, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	v, err := a.ctrl.GetParameter(ctx, id, partial)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = %s\n", formatTarget(id, partial), v)
	return nil
}

func cmdLoad(ctx context.Context, a *app, w io.Writer, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: load <bank> <program>")
	}
	bank, err := a.cfg.Bank(args[0])
	if err != nil {
		return err
	}
	program, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("program %q: %w", args[1], err)
	}
	if err := a.ctrl.LoadPreset(ctx, bank, program); err != nil {
		return err
	}
	fmt.Fprintf(w, "loaded bank %d program %d\n", bank, program)
	return nil
}

// describeRange is "min..max" in display units, or the labels.
func describeRange(s param.Spec) string {
	if s.Kind == param.Enumerated {
		return strings.Join(s.Labels, "|")
	}
	return fmt.Sprintf("%d..%d", s.DisplayMin, s.DisplayMax)
}

func listParameters(w io.Writer, reg *param.Registry, prefix string) error {
	for _, id := range reg.IDs() {
		if !strings.HasPrefix(string(id), prefix) {
			continue
		}
		e, err := reg.Lookup(id)
		if err != nil {
			return err
		}
		partials := "-"
		if e.Scope.Scoped() {
			partials = fmt.Sprintf("0..%d", len(e.Scope.Offsets)-1)
		}
		fmt.Fprintf(w, "%-40s %s  %-8s %-5s %s\n", id, e.Base, e.Spec.Kind, partials, describeRange(e.Spec))
	}
	return nil
}
