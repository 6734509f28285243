package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mindmesh/roomcall/internal/session"
)

const maxNotices = 5

// CallScreen is the interactive in-call view: a live table of peer links
// plus the shared mute/video toggles. Keys: m mute, v video, q leave.
type CallScreen struct {
	mgr       *session.Manager
	roomID    string
	localName string

	peers    []session.Peer
	notices  []string
	audioOn  bool
	videoOn  bool
	ended    bool
	endedMsg string

	spin spinner.Model
}

type sessionEventMsg session.Event

type sessionDoneMsg struct{}

// RunCallScreen blocks until the user leaves or the session ends.
func RunCallScreen(mgr *session.Manager, roomID, localName string) error {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &CallScreen{
		mgr:       mgr,
		roomID:    roomID,
		localName: localName,
		audioOn:   true,
		videoOn:   true,
		spin:      s,
	}

	_, err := tea.NewProgram(model).Run()
	return err
}

func (m *CallScreen) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitEvent())
}

// waitEvent bridges the session's observer channel into the tea loop.
func (m *CallScreen) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.mgr.Events()
		if !ok {
			return sessionDoneMsg{}
		}
		return sessionEventMsg(ev)
	}
}

func (m *CallScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "m":
			m.audioOn = !m.audioOn
			m.mgr.SetAudioEnabled(m.audioOn)
			return m, nil
		case "v":
			m.videoOn = !m.videoOn
			m.mgr.SetVideoEnabled(m.videoOn)
			return m, nil
		case "q", "ctrl+c":
			m.ended = true
			m.endedMsg = "You left the room."
			m.mgr.Close()
			return m, tea.Quit
		}

	case sessionEventMsg:
		m.applyEvent(session.Event(msg))
		m.peers = m.mgr.Snapshot()
		if m.ended {
			return m, tea.Quit
		}
		return m, m.waitEvent()

	case sessionDoneMsg:
		m.ended = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *CallScreen) applyEvent(ev session.Event) {
	name := ev.RemoteName
	if name == "" {
		name = ev.RemoteID
	}

	switch ev.Kind {
	case session.EventPeerJoined:
		m.notice(fmt.Sprintf("%s joined", name))
	case session.EventPeerConnected:
		m.notice(fmt.Sprintf("%s connected", name))
	case session.EventPeerLeft:
		m.notice(fmt.Sprintf("%s left", name))
	case session.EventPeerFailed:
		m.notice(ErrorStyle.Render(fmt.Sprintf("connection to %s failed", name)))
	case session.EventPeerMuteChanged:
		state := "unmuted"
		if !ev.AudioEnabled {
			state = "muted"
		}
		m.notice(fmt.Sprintf("%s %s", name, state))
	case session.EventServerError:
		m.notice(ErrorStyle.Render("server: " + ev.Message))
	case session.EventChannelLost:
		m.ended = true
		m.endedMsg = "Connection to the signaling server was lost."
	}
}

func (m *CallScreen) notice(s string) {
	m.notices = append(m.notices, s)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *CallScreen) View() string {
	if m.ended {
		if m.endedMsg != "" {
			return m.endedMsg + "\n"
		}
		return ""
	}

	header := TitleStyle.Render(fmt.Sprintf("Room %s", m.roomID)) + "\n"

	var body string
	if len(m.peers) == 0 {
		body = fmt.Sprintf("%s %s\n", m.spin.View(), MutedStyle.Render("Waiting for others to join..."))
	} else {
		body = RenderPeerTable(m.peers) + "\n"
	}

	status := fmt.Sprintf("%s mic %s   %s cam %s",
		BoldStyle.Render(m.localName),
		renderFlag(m.audioOn),
		" ",
		renderFlag(m.videoOn),
	)

	var notices string
	for _, n := range m.notices {
		notices += MutedStyle.Render("· ") + n + "\n"
	}

	help := MutedStyle.Render("m: mute  v: video  q: leave")

	return header + body + "\n" + status + "\n\n" + notices + help + "\n"
}
