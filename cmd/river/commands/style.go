// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/river/lib/synchronizer"
)

// styles renders for one writer. Colors are dropped automatically when
// the writer is not a color terminal.
type styles struct {
	heading lipgloss.Style
	key     lipgloss.Style
	faint   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	author  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	renderer := lipgloss.NewRenderer(w)
	return styles{
		heading: renderer.NewStyle().Bold(true),
		key:     renderer.NewStyle().Foreground(lipgloss.Color("6")),
		faint:   renderer.NewStyle().Faint(true),
		good:    renderer.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    renderer.NewStyle().Foreground(lipgloss.Color("3")),
		bad:     renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		author:  renderer.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	}
}

func (s styles) syncState(state synchronizer.SyncState) string {
	switch state {
	case synchronizer.Subscribed:
		return s.good.Render(state.String())
	case synchronizer.RoomFailed:
		return s.bad.Render(state.String())
	case synchronizer.Putting, synchronizer.Subscribing:
		return s.warn.Render(state.String())
	default:
		return s.faint.Render(state.String())
	}
}

func (s styles) connection(status synchronizer.Status) string {
	switch status.Connection {
	case synchronizer.Connected:
		return s.good.Render(status.Connection.String())
	case synchronizer.ConnectionFailed:
		return s.bad.Render(describeConnection(status))
	default:
		return s.warn.Render(status.Connection.String())
	}
}

func describeConnection(status synchronizer.Status) string {
	if status.Reason != "" {
		return fmt.Sprintf("%s: %s", status.Connection, status.Reason)
	}
	return status.Connection.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
