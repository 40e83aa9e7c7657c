package dto

// UserDoc is the document stored in the users search index.
type UserDoc struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	FullName    string `json:"full_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type SearchQuery struct {
	Query string `form:"q" binding:"required,max=100"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

// UserHit is a search result annotated for the caller.
type UserHit struct {
	UserDoc
	Pending bool `json:"pending"`
	Friend  bool `json:"friend"`
}

type SearchResponse struct {
	Query string    `json:"query"`
	Hits  []UserHit `json:"hits"`
}
