package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeUnsubscribe = "UNSUBSCRIBE"
	TypePriceUpdate = "PRICE_UPDATE"
)

var errSymbolsShape = errors.New("data must be a string or a list of strings")

// ControlMessage is a client -> server frame.
type ControlMessage struct {
	Type string  `json:"type"`
	Data Symbols `json:"data"`
}

// Symbols accepts either a single JSON string or a list of strings.
type Symbols []string

func (s *Symbols) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = Symbols{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errSymbolsShape
	}
	*s = many
	return nil
}

// PriceUpdateMessage is the server -> client data frame.
type PriceUpdateMessage struct {
	Type string               `json:"type"`
	Data []models.QuoteUpdate `json:"data"`
}

// ParseControl decodes a SUBSCRIBE or UNSUBSCRIBE frame. Anything else, including malformed
// JSON, reports ok=false and is meant to be ignored.
func ParseControl(payload []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMessage{}, false
	}
	if msg.Type != TypeSubscribe && msg.Type != TypeUnsubscribe {
		return ControlMessage{}, false
	}
	msg.Data = Normalize(msg.Data)
	return msg, true
}

// Normalize trims symbols, dropping empties and duplicates. Case is left alone: symbols are
// opaque here.
func Normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
