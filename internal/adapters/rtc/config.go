// Package rtc holds the WebRTC vocabulary the server hands to clients. Media
// never flows through this process.
package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

var ErrBadICEServer = errors.New("ice server url must use stun, stuns, turn or turns")

var schemes = []string{"stun:", "stuns:", "turn:", "turns:"}

// ValidateICEServers checks the configured STUN/TURN urls.
func ValidateICEServers(urls []string) error {
	for _, u := range urls {
		ok := false
		for _, s := range schemes {
			if strings.HasPrefix(u, s) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrBadICEServer, u)
		}
	}
	return nil
}

// Configuration is the peer-connection config clients should use.
func Configuration(urls []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return cfg
}
