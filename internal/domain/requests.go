package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength = 30
	maxLimit      = 50
)

var difficulties = map[string]struct{}{"easy": {}, "medium": {}, "hard": {}}

// ParseJoinRequest decodes a join payload. It first tries GameOptions and falls back to
// RoomCodeOptions; when neither validates the error is ErrInvalidInput. A non-empty
// verifiedUID replaces any uid supplied by the client.
func ParseJoinRequest(raw []byte, verifiedUID string) (JoinRequest, error) {
	var opts GameOptions
	gameErr := decodeStrict(raw, &opts)
	if gameErr == nil {
		if verifiedUID != "" {
			opts.UID = verifiedUID
		}
		gameErr = opts.Validate()
	}
	if gameErr == nil {
		return JoinRequest{Game: &opts}, nil
	}

	var code RoomCodeOptions
	codeErr := decodeStrict(raw, &code)
	if codeErr == nil {
		if verifiedUID != "" {
			code.UID = verifiedUID
		}
		codeErr = code.Validate()
	}
	if codeErr == nil {
		return JoinRequest{RoomCode: &code}, nil
	}
	return JoinRequest{}, InvalidInput(errors.Join(gameErr, codeErr))
}

// Validate requires exactly one of filter criteria or a stored quiz id.
func (o *GameOptions) Validate() error {
	name, err := validName(o.Name)
	if err != nil {
		return err
	}
	o.Name = name
	if o.MaxPlayers < 1 {
		return errors.New("max_players must be at least 1")
	}
	if o.IsStoredQuiz() {
		if o.hasFilter() {
			return errors.New("quiz_id cannot be combined with filter criteria")
		}
		if o.UID == "" {
			return errors.New("quiz_id requires the owner uid")
		}
		return nil
	}
	if !o.hasFilter() {
		return errors.New("either filter criteria or quiz_id is required")
	}
	if o.Limit < 0 || o.Limit > maxLimit {
		return fmt.Errorf("limit must be between 0 and %d", maxLimit)
	}
	if o.Difficulty != "" {
		if _, ok := difficulties[o.Difficulty]; !ok {
			return fmt.Errorf("unknown difficulty %q", o.Difficulty)
		}
	}
	for _, tag := range o.Tags {
		if strings.TrimSpace(tag) == "" {
			return errors.New("tags cannot be blank")
		}
	}
	for _, category := range o.Categories {
		if strings.TrimSpace(category) == "" {
			return errors.New("categories cannot be blank")
		}
	}
	return nil
}

// Validate checks that a room code request names a room and a player.
func (o *RoomCodeOptions) Validate() error {
	name, err := validName(o.Name)
	if err != nil {
		return err
	}
	o.Name = name
	o.Room = strings.TrimSpace(o.Room)
	if o.Room == "" {
		return errors.New("room is required")
	}
	return nil
}

type answerWire struct {
	Answer *string  `json:"answer"`
	Time   *float64 `json:"time"`
}

// ParseGameAnswer decodes an answer payload; both fields are required.
func ParseGameAnswer(raw []byte) (GameAnswer, error) {
	var wire answerWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return GameAnswer{}, InvalidInput(err)
	}
	if wire.Answer == nil || wire.Time == nil {
		return GameAnswer{}, InvalidInput(errors.New("answer and time are required"))
	}
	if math.IsNaN(*wire.Time) || math.IsInf(*wire.Time, 0) {
		return GameAnswer{}, InvalidInput(errors.New("time must be finite"))
	}
	return GameAnswer{Answer: *wire.Answer, Time: *wire.Time}, nil
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("name longer than %d characters", maxNameLength)
	}
	return name, nil
}

func decodeStrict(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
