// Package media opens local capture devices and hands their tracks to the
// meeting session. Encoding is fixed to VP8 for video and Opus for audio.
package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	// Driver registration, required for device discovery.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
)

const (
	videoBitRate = 500_000
	videoWidth   = 640
	videoHeight  = 480
	videoFPS     = 30
	sampleRate   = 48000
)

// Devices acquires microphone, camera and screen tracks on demand. Streams
// stay open until Close so a re-enabled track keeps its device.
type Devices struct {
	selector *mediadevices.CodecSelector

	mu      sync.Mutex
	streams []mediadevices.MediaStream
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, &AcquisitionError{Kind: "video", Reason: ReasonUnknown, Err: err}
	}
	vpxParams.BitRate = videoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, &AcquisitionError{Kind: "audio", Reason: ReasonUnknown, Err: err}
	}

	return &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Populate registers the selected codecs on the engine backing the peer
// connections. Must run before any track is attached.
func (d *Devices) Populate(me *webrtc.MediaEngine) error {
	d.selector.Populate(me)
	return nil
}

func (d *Devices) AudioTrack() (webrtc.TrackLocal, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(sampleRate)
			c.ChannelCount = prop.Int(1)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, &AcquisitionError{Kind: "audio", Reason: classify(err), Err: err}
	}
	return d.firstTrack(stream, "audio", stream.GetAudioTracks())
}

func (d *Devices) VideoTrack() (webrtc.TrackLocal, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(videoWidth)
			c.Height = prop.Int(videoHeight)
			c.FrameRate = prop.Float(videoFPS)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, &AcquisitionError{Kind: "video", Reason: classify(err), Err: err}
	}
	return d.firstTrack(stream, "video", stream.GetVideoTracks())
}

func (d *Devices) ScreenTrack() (webrtc.TrackLocal, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameRate = prop.Float(videoFPS)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, &AcquisitionError{Kind: "screen", Reason: classify(err), Err: err}
	}
	return d.firstTrack(stream, "screen", stream.GetVideoTracks())
}

func (d *Devices) firstTrack(stream mediadevices.MediaStream, kind string, tracks []mediadevices.Track) (webrtc.TrackLocal, error) {
	if len(tracks) == 0 {
		return nil, &AcquisitionError{Kind: kind, Reason: ReasonNotFound}
	}
	d.mu.Lock()
	d.streams = append(d.streams, stream)
	d.mu.Unlock()
	log.Debug().Str("module", "media").Str("kind", kind).
		Str("track", tracks[0].ID()).Msg("capture opened")
	return tracks[0], nil
}

// Close releases every device this source opened.
func (d *Devices) Close() error {
	d.mu.Lock()
	streams := d.streams
	d.streams = nil
	d.mu.Unlock()
	for _, s := range streams {
		for _, t := range s.GetTracks() {
			if err := t.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("close track")
			}
		}
	}
	return nil
}
