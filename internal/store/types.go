package store

import "github.com/kairoshq/kairos/internal/model"

// --- Index files (users.json / requests.json / sessions.json) ---

type UserIndex struct {
	Users map[string]model.User `json:"users"`
}

type RequestIndex struct {
	Requests map[string]model.MeetingRequest `json:"requests"`
}

type SessionIndex struct {
	Sessions map[string]model.SessionRecord `json:"sessions"`
}
