package origin

import (
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the JSON wrapper sound endpoints respond with. Value carries a
// base64 audio payload when Type is EnvelopeTypeEmbedded.
type envelope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func extractEnvelope(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode sound envelope: %w", err)
	}
	if env.Type != EnvelopeTypeEmbedded {
		return nil, ErrNotPresent
	}
	if strings.TrimSpace(env.Value) == "" {
		return nil, fmt.Errorf("sound envelope has empty payload")
	}
	return []byte(env.Value), nil
}
