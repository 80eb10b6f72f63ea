package models

type ProfileRunStatus string

const (
	ProfileSkipped   ProfileRunStatus = "skipped"
	ProfileSuccess   ProfileRunStatus = "success"
	ProfileCompleted ProfileRunStatus = "completed"
	ProfileError     ProfileRunStatus = "error"
)

type PostRunStatus string

const (
	PostRunSuccess   PostRunStatus = "success"
	PostRunError     PostRunStatus = "error"
	PostRunSyncError PostRunStatus = "sync_error"
)

type PostResult struct {
	RowIndex    int           `json:"rowIndex"`
	PostID      string        `json:"postId"`
	Status      PostRunStatus `json:"status"`
	PublishedID string        `json:"publishedId,omitempty"`
	Message     string        `json:"message,omitempty"`
}

type ProfileResult struct {
	Profile string           `json:"profile"`
	Status  ProfileRunStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	Results []PostResult     `json:"results,omitempty"`
}

type SweepReport struct {
	Results []ProfileResult `json:"results"`
}
