package tautulli

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// historyResponse est l'enveloppe de cmd=get_history.
type historyResponse struct {
	Response struct {
		Result  string  `json:"result"`
		Message *string `json:"message,omitempty"`
		Data    struct {
			RecordsFiltered int               `json:"recordsFiltered"`
			RecordsTotal    int               `json:"recordsTotal"`
			Data            []json.RawMessage `json:"data"`
		} `json:"data"`
	} `json:"response"`
}

type historyRecord struct {
	Date             int64   `json:"date"`
	User             string  `json:"user"`
	FriendlyName     string  `json:"friendly_name"`
	MediaType        string  `json:"media_type"`
	GrandparentTitle *string `json:"grandparent_title"`
	MediaIndex       flexInt `json:"media_index"`
}

// flexInt accepte un entier, une chaîne numérique, "" ou null :
// Tautulli renvoie "" pour media_index sur les films.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("media index %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type pingResponse struct {
	Response struct {
		Result  string  `json:"result"`
		Message *string `json:"message,omitempty"`
	} `json:"response"`
}
