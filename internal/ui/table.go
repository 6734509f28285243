package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mindmesh/roomcall/internal/session"
)

// RenderPeerTable renders the live peer links as a table.
func RenderPeerTable(peers []session.Peer) string {
	if len(peers) == 0 {
		return MutedStyle.Render("Nobody else is here yet.")
	}

	headers := []string{"Name", "State", "Role", "Audio", "Video"}

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		rows = append(rows, []string{
			name,
			renderState(p.State),
			p.Role.String(),
			renderFlag(p.AudioEnabled),
			renderFlag(p.VideoEnabled),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...)

	return t.Render()
}

func renderState(s session.State) string {
	switch s {
	case session.StateConnected:
		return SuccessStyle.Render(s.String())
	case session.StateClosed:
		return ErrorStyle.Render(s.String())
	default:
		return WarningStyle.Render(s.String())
	}
}

func renderFlag(on bool) string {
	if on {
		return SuccessStyle.Render("on")
	}
	return MutedStyle.Render("off")
}
