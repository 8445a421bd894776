// Studify attend — terminal meeting attendee.
//
// Joins a meeting by code, connects the signaling channel and the WebRTC
// mesh, and takes slash commands on stdin:
//
//	/mic on|off    toggle the microphone
//	/cam on|off    toggle the camera
//	/screen on|off share the screen instead of the camera
//	/hand up|down  raise or lower the hand
//	/who           list remote participants
//	/end           end the meeting (host only)
//	/leave         leave the meeting
//
// Any other input line is sent as a chat message.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/config"
	"github.com/Rudra9905/Studify/internal/domain"
	"github.com/Rudra9905/Studify/internal/media"
	"github.com/Rudra9905/Studify/internal/meet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := flag.String("code", "", "Meeting code to join")
	userID := flag.String("user", "", "Your user id")
	name := flag.String("name", "", "Display name shown in chat")
	apiURL := flag.String("api", "", "Meetings API base URL (default from config)")
	wsURL := flag.String("ws", "", "Signaling websocket URL (default from config)")
	noMedia := flag.Bool("no-media", false, "Join receive-only, without capture devices")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *code == "" || *userID == "" {
		pterm.Error.Println("both -code and -user are required")
		os.Exit(1)
	}
	if *name == "" {
		*name = *userID
	}

	cfg := config.Default()
	if *apiURL == "" {
		*apiURL = cfg.APIBaseURL
	}
	if *wsURL == "" {
		*wsURL = cfg.SignalingURL
	}

	var src meet.MediaSource
	if !*noMedia {
		devices, err := media.NewDevices()
		if err != nil {
			pterm.Warning.Println("capture devices unavailable, joining receive-only:", err)
		} else {
			src = devices
		}
	}

	sess, err := newAttendance(*code, *userID, *name, *apiURL, *wsURL, cfg.STUNServers, src)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("Joining meeting %s as %s", *code, *name))
	if err := sess.Join(ctx); err != nil {
		pterm.Error.Println("join failed:", err)
		os.Exit(1)
	}

	go readCommands(sess)

	<-ctx.Done()
	sess.Leave()
	pterm.Info.Println("Left the meeting")
}

func newAttendance(code, userID, name, apiURL, wsURL string, stun []string, src meet.MediaSource) (*meet.Session, error) {
	return meet.NewSession(meet.Options{
		MeetingCode:  code,
		LocalID:      userID,
		DisplayName:  name,
		SignalingURL: wsURL,
		STUNServers:  stun,
		Authorizer:   meet.NewHTTPAuthorizer(apiURL),
		Media:        src,
		Events: meet.Events{
			OnStateChange: func(from, to meet.State) {
				pterm.Debug.Println("state:", from.String(), "->", to.String())
				if to == meet.StateActive {
					pterm.Success.Println("Connected. Type a message, or /mic, /cam, /hand, /who, /leave.")
				}
			},
			OnParticipantJoined: func(id string) {
				pterm.Info.Println(id, "joined")
			},
			OnParticipantLeft: func(id string) {
				pterm.Info.Println(id, "left")
			},
			OnRemoteTrack: func(id string, track *webrtc.TrackRemote) {
				pterm.Info.Println(id, "is sending", track.Kind().String())
				go drainTrack(track)
			},
			OnRaiseHand: func(id string, raised bool) {
				if raised {
					pterm.Warning.Println(id, "raised their hand")
				} else {
					pterm.Info.Println(id, "lowered their hand")
				}
			},
			OnChat: func(m domain.ChatMessage) {
				pterm.Println(fmt.Sprintf("[%s] %s: %s",
					m.SentAt.Format("15:04"), m.SenderName, m.Body))
			},
			OnMicState: func(id string, on bool) {
				pterm.Debug.Println(id, "mic:", on)
			},
			OnCamState: func(id string, on bool) {
				pterm.Debug.Println(id, "cam:", on)
			},
			OnMeetingEnded: func() {
				pterm.Warning.Println("Meeting ended by host")
			},
			OnError: func(err error) {
				pterm.Error.Println(err)
			},
		},
	})
}

// drainTrack keeps the remote track's RTP flowing; a terminal attendee has
// nowhere to render it.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func readCommands(sess *meet.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			sess.SendChat(line)
			continue
		}
		cmd, arg, _ := strings.Cut(line[1:], " ")
		switch cmd {
		case "mic":
			sess.ToggleMic(arg == "on")
		case "cam":
			sess.ToggleCam(arg == "on")
		case "screen":
			sess.ShareScreen(arg == "on")
		case "hand":
			sess.RaiseHand(arg != "down")
		case "who":
			for _, p := range sess.Participants() {
				pterm.Println(" -", string(p.ID))
			}
		case "end":
			sess.EndMeeting()
		case "leave":
			sess.Leave()
			time.Sleep(200 * time.Millisecond)
			os.Exit(0)
		default:
			pterm.Warning.Println("unknown command:", cmd)
		}
	}
}
