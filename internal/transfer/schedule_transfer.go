package transfer

type ActiveProfileRequest struct {
	ProfileID string `json:"profile_id"`
}

type PublishNowPayload struct {
	ProfileID string `json:"profile_id"`
	PostID    string `json:"post_id"`
}
