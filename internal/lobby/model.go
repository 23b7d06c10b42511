// Package lobby coordinates multiplayer game sessions: players join a session by
// join code, each receives a continent unique within that session, and every
// committed roster or stage change is published to the session's live connections.
package lobby

import "time"

// Continent is the resource token held by a participant. At most one participant
// of a session holds a given continent.
type Continent string

const (
	Europe   Continent = "Europe"
	Asia     Continent = "Asia"
	Africa   Continent = "Africa"
	Americas Continent = "Americas"
)

// Continents is the default pool, in declaration order.
var Continents = []Continent{Europe, Asia, Africa, Americas}

// Session is a game lobby identified by its join code.
//
// Invariant: Stage never decreases; JoinCode is unique among stored sessions.
type Session struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	HostName  string    `json:"host_name"`
	JoinCode  string    `json:"join_code"`
	Stage     int       `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	// Participants is ordered by join time.
	Participants []Participant `json:"participants"`
}

// Participant is a joined player within a session.
type Participant struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"is_host"`
	Continent Continent `json:"continent"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Event types published to a session's live connections.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventStageAdvanced     = "stage_advanced"
	EventCountdown         = "countdown"
	EventChatMessage       = "chat_message"
)

// Event is the {type, data} envelope delivered over the live channel.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StageAdvanced is the payload of a stage_advanced event.
type StageAdvanced struct {
	Stage        int           `json:"stage"`
	Participants []Participant `json:"participants"`
}
