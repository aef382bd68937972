package battledto

type RegisterRequest struct {
	AccountID int64  `json:"AccountId"`
	Nickname  string `json:"Nickname"`
	Region    string `json:"Region"`
}

type RegisterResponse struct {
	Token string `json:"Token"`
}

// APIMessage is the generic acknowledgement body of the collection API.
type APIMessage struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (m APIMessage) Text() string {
	if m.Message != "" {
		return m.Message
	}
	if m.Error != "" {
		return m.Error
	}
	return "unknown"
}
