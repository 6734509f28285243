package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mindmesh/roomcall/internal/config"
	"github.com/mindmesh/roomcall/internal/logging"
	"github.com/mindmesh/roomcall/internal/media"
	"github.com/mindmesh/roomcall/internal/protocol"
	"github.com/mindmesh/roomcall/internal/rtc"
	"github.com/mindmesh/roomcall/internal/session"
	"github.com/mindmesh/roomcall/internal/sigclient"
	"github.com/mindmesh/roomcall/internal/ui"
)

var (
	flagServer    string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagRelay     bool
	flagName      string
	flagRoom      string
	flagNoVideo   bool
	flagNoAudio   bool
	flagSynthetic bool
)

var joinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j"},
	Short:   "Join a room and call everyone in it",
	Long: `Join a room on the signaling server. Everyone already in the room will
call you; anyone joining later gets called by you.

Examples:
  roomcall join --room team-standup --name Alice
  roomcall join --room r1 --name Bob --server wss://calls.example.com/ws
  roomcall join --room r1 --name Carol --no-video`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagName == "" || flagRoom == "" {
			return fmt.Errorf("both --name and --room are required")
		}
		return joinRoom()
	},
}

func joinRoom() error {
	cfg, err := config.Load(config.Options{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	// Keep transport logs off the interactive screen unless asked for.
	level := zerolog.ErrorLevel
	if os.Getenv("LOG_LEVEL") != "" {
		level = logging.LevelFromEnv()
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(level)

	stream, err := acquireMedia(log)
	if err != nil {
		return err
	}
	defer stream.Close()

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	channel := sigclient.NewChannel(cfg.ServerURL)
	if err := channel.Connect(); err != nil {
		return err
	}
	defer channel.Close()

	handler := sigclient.NewHandler(channel, log)
	go handler.Start()

	localID, err := join(channel, handler)
	if err != nil {
		return err
	}
	stopSpinner()

	ui.RenderRoomInfo(flagRoom, localID)

	engine := rtc.NewPionEngine(cfg.ICEServers(), cfg.ForceRelay, log)
	mgr := session.NewManager(session.Config{
		LocalID:            localID,
		LocalName:          flagName,
		Engine:             engine,
		Stream:             stream,
		Sender:             channel,
		Inbox:              handler,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Log:                log,
	})
	go mgr.Run()
	defer mgr.Close()

	return ui.RunCallScreen(mgr, flagRoom, flagName)
}

// acquireMedia opens the camera/microphone. The permission gate can hang on
// user interaction, so an interrupt aborts the join cleanly.
func acquireMedia(log zerolog.Logger) (*media.Stream, error) {
	stopSpinner := ui.RunSpinner("Requesting camera and microphone...")
	defer stopSpinner()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var capture media.Capture = &media.FFmpegCapture{Log: log}
	if flagSynthetic {
		capture = media.SyntheticCapture{}
	}

	stream, err := capture.Acquire(ctx, media.Constraints{
		Video: !flagNoVideo,
		Audio: !flagNoAudio,
	})
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		return nil, fmt.Errorf("camera and microphone access was refused; allow access and try again")
	case errors.Is(err, media.ErrDeviceUnavailable):
		return nil, fmt.Errorf("no usable camera or microphone found (install ffmpeg and check the device, or use --synthetic)")
	case err != nil:
		return nil, err
	}
	return stream, nil
}

// join announces the local participant to the room and waits for the ack
// carrying the server-assigned id.
func join(channel *sigclient.Channel, handler *sigclient.Handler) (string, error) {
	err := channel.Send(protocol.EventJoinRoom, protocol.JoinRoomPayload{
		UserName: flagName,
		RoomID:   flagRoom,
	})
	if err != nil {
		return "", err
	}

	select {
	case ack := <-handler.Joined:
		return ack.UserID, nil
	case msg := <-handler.Errors:
		return "", fmt.Errorf("join rejected: %s", msg)
	case <-handler.Lost:
		return "", session.ErrChannelLost
	case <-time.After(10 * time.Second):
		return "", fmt.Errorf("timed out waiting for join ack")
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name")
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room to join")
	joinCmd.Flags().StringVar(&flagServer, "server", "", "Signaling server websocket URL")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagRelay, "relay", false, "Force relay mode")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join without camera")
	joinCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Join without microphone")
	joinCmd.Flags().BoolVar(&flagSynthetic, "synthetic", false, "Use synthetic media instead of real devices")
}
