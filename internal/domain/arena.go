package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxArenaIDDigits bounds an arena id below 10^20.
const maxArenaIDDigits = 20

// ArenaID is the battle-session identifier as decimal text.
// Ids above the int64 range are legal, so the raw digits are kept.
type ArenaID string

func ParseArenaID(s string) ArenaID { return ArenaID(strings.TrimSpace(s)) }

func ArenaIDFromUint(v uint64) ArenaID { return ArenaID(strconv.FormatUint(v, 10)) }

func (id ArenaID) String() string { return string(id) }

// Valid reports whether id is a positive integer below 10^20.
func (id ArenaID) Valid() bool {
	s := string(id)
	if len(s) == 0 || len(s) > maxArenaIDDigits || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (id *ArenaID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("arena id: %w", err)
		}
		*id = ParseArenaID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("arena id: %w", err)
	}
	*id = ArenaID(n.String())
	return nil
}

// MarshalJSON writes valid ids as numbers and anything else as a string,
// so a corrupt value survives a round trip until it is purged.
func (id ArenaID) MarshalJSON() ([]byte, error) {
	if id.Valid() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
