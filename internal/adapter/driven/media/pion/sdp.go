package pion

import (
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/sdp/v3"
)

// parseDescription parses the SDP before pion sees it, so a malformed peer
// is reported as a negotiation error with a readable cause. It returns the
// m-line kinds in order.
func parseDescription(desc domain.SessionDescription) ([]string, error) {
	if desc.Type != domain.SDPOffer && desc.Type != domain.SDPAnswer {
		return nil, fmt.Errorf("%w: unsupported description type %q", domain.ErrNegotiation, desc.Type)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return nil, fmt.Errorf("%w: malformed %s: %w", domain.ErrNegotiation, desc.Type, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: %s has no media sections", domain.ErrNegotiation, desc.Type)
	}

	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, m := range parsed.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}
