package bot

import "encoding/json"

// Typed payloads for the inbound event vocabulary. Each built-in handler
// decodes its own record at the dispatcher boundary; raw maps never
// reach channel state.

type userMetaData struct {
	AFK         bool     `json:"afk"`
	Muted       bool     `json:"muted"`
	SMuted      bool     `json:"smuted"`
	IP          string   `json:"ip"`
	UncloakedIP string   `json:"uncloaked_ip"`
	Aliases     []string `json:"aliases"`
}

type userData struct {
	Name    string         `json:"name"`
	Rank    float64        `json:"rank"`
	Profile map[string]any `json:"profile"`
	Meta    userMetaData   `json:"meta"`
}

type userLeaveData struct {
	Name string `json:"name"`
}

type setUserMetaData struct {
	Name string       `json:"name"`
	Meta userMetaData `json:"meta"`
}

type setUserRankData struct {
	Name string  `json:"name"`
	Rank float64 `json:"rank"`
}

type setAFKData struct {
	Name string `json:"name"`
	AFK  bool   `json:"afk"`
}

type mediaData struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Seconds float64 `json:"seconds"`
}

type itemData struct {
	UID     int       `json:"uid"`
	Temp    bool      `json:"temp"`
	QueueBy string    `json:"queueby"`
	Media   mediaData `json:"media"`
}

type queueData struct {
	Item itemData `json:"item"`
	// After is a uid, or a non-numeric placement marker that means
	// append.
	After json.RawMessage `json:"after"`
}

type deleteData struct {
	UID int `json:"uid"`
}

type setTempData struct {
	UID  int  `json:"uid"`
	Temp bool `json:"temp"`
}

type moveVideoData struct {
	From  int `json:"from"`
	After int `json:"after"`
}

type playlistMetaData struct {
	RawTime int `json:"rawTime"`
}

type mediaUpdateData struct {
	CurrentTime float64 `json:"currentTime"`
	Paused      *bool   `json:"paused"`
}

type voteskipData struct {
	Count int `json:"count"`
	Need  int `json:"need"`
}

type cssJSData struct {
	CSS string `json:"css"`
	JS  string `json:"js"`
}

type serverMessageData struct {
	Msg string `json:"msg"`
}

type loginResultData struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Error   string `json:"error"`
}

// ChatMessage is the server's echo of a chat line.
type ChatMessage struct {
	Username string         `json:"username"`
	Msg      string         `json:"msg"`
	Time     int64          `json:"time"`
	Meta     map[string]any `json:"meta"`
}

// PrivateMessage is the server's echo of a private message.
type PrivateMessage struct {
	Username string         `json:"username"`
	To       string         `json:"to"`
	Msg      string         `json:"msg"`
	Time     int64          `json:"time"`
	Meta     map[string]any `json:"meta"`
}

// parseAfter extracts a uid from a queue event's "after" field; nil
// means append.
func parseAfter(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil {
		return nil
	}
	return &uid
}
