// Package rtc holds the pion/webrtc wiring shared by every peer session:
// ICE server configuration and an API handle that routes pion's internal
// logs through zerolog.
package rtc

import (
	"github.com/pion/webrtc/v4"
)

// Configuration builds the peer connection config from the configured STUN
// URLs. An empty list still yields a usable config for loopback tests.
func Configuration(stunServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return cfg
}

// NewAPI returns a webrtc API whose engine logs via zerolog. The optional
// populate hook registers codecs on the media engine; without one the pion
// defaults are used.
func NewAPI(populate func(*webrtc.MediaEngine) error) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory()

	me := &webrtc.MediaEngine{}
	if populate != nil {
		if err := populate(me); err != nil {
			return nil, err
		}
	} else if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se), webrtc.WithMediaEngine(me)), nil
}
