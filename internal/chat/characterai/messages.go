package characterai

import "encoding/json"

// Commands exchanged over the chat websocket.
const (
	cmdCreateChat         = "create_chat"
	cmdCreateChatResponse = "create_chat_response"
	cmdCreateAndGenerate  = "create_and_generate_turn"
	cmdAddTurn            = "add_turn"
	cmdUpdateTurn         = "update_turn"
	cmdNeoError           = "neo_error"
)

type request struct {
	Command   string `json:"command"`
	RequestID string `json:"request_id"`
	Payload   any    `json:"payload"`
	OriginID  string `json:"origin_id"`
}

type response struct {
	Command   string    `json:"command"`
	RequestID string    `json:"request_id,omitempty"`
	Turn      *turn     `json:"turn,omitempty"`
	Chat      *chatInfo `json:"chat,omitempty"`
	Comment   string    `json:"comment,omitempty"`
}

type chatInfo struct {
	ChatID      string `json:"chat_id"`
	CreatorID   string `json:"creator_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	CharacterID string `json:"character_id,omitempty"`
	Type        string `json:"type,omitempty"`
}

type turnKey struct {
	ChatID string `json:"chat_id"`
	TurnID string `json:"turn_id"`
}

type author struct {
	AuthorID string `json:"author_id"`
	Name     string `json:"name,omitempty"`
	IsHuman  bool   `json:"is_human,omitempty"`
}

type candidate struct {
	CandidateID string `json:"candidate_id"`
	RawContent  string `json:"raw_content"`
	IsFinal     bool   `json:"is_final,omitempty"`
}

type turn struct {
	TurnKey            turnKey     `json:"turn_key"`
	Author             author      `json:"author"`
	Candidates         []candidate `json:"candidates"`
	PrimaryCandidateID string      `json:"primary_candidate_id,omitempty"`
}

// primary returns the candidate the server marked as primary, falling back
// to the first one.
func (t *turn) primary() (candidate, bool) {
	if t == nil || len(t.Candidates) == 0 {
		return candidate{}, false
	}
	for _, c := range t.Candidates {
		if c.CandidateID == t.PrimaryCandidateID {
			return c, true
		}
	}
	return t.Candidates[0], true
}

type createChatPayload struct {
	Chat         chatInfo `json:"chat"`
	WithGreeting bool     `json:"with_greeting"`
}

type generateTurnPayload struct {
	NumCandidates    int    `json:"num_candidates"`
	TTSEnabled       bool   `json:"tts_enabled"`
	SelectedLanguage string `json:"selected_language"`
	CharacterID      string `json:"character_id"`
	UserName         string `json:"user_name"`
	Turn             turn   `json:"turn"`
}

// accountResponse is the body of GET /chat/user/.
type accountResponse struct {
	User struct {
		User struct {
			ID       json.Number `json:"id"`
			Username string      `json:"username"`
		} `json:"user"`
		Name string `json:"name"`
	} `json:"user"`
}

// characterResponse is the body of POST /chat/character/info/.
type characterResponse struct {
	Status    string `json:"status"`
	Character struct {
		ExternalID string `json:"external_id"`
		Name       string `json:"name"`
		Title      string `json:"title"`
		Greeting   string `json:"greeting"`
	} `json:"character"`
}
