package models

import (
	"strings"
	"time"
)

type MediaKind string

const (
	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

type MediaItem struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusDue        PostStatus = "due"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusProcessing PostStatus = "processing" // view only, never stored
)

// MaxMediaItems is the largest carousel the Graph API accepts.
const MaxMediaItems = 10

type ScheduledPost struct {
	ID            string      `json:"id"`
	RowIndex      int         `json:"row_index"`
	Day           string      `json:"day"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	Theme         string      `json:"theme"`
	Title         string      `json:"title"`
	Caption       string      `json:"caption"`
	Script        string      `json:"script"`
	CTA           string      `json:"cta"`
	MediaItems    []MediaItem `json:"media_items"`
	StoredStatus  PostStatus  `json:"stored_status"`
	Status        PostStatus  `json:"status"`
}

// NewPost is what the form path appends to a schedule tab.
type NewPost struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	Theme         string    `json:"theme"`
	Title         string    `json:"title"`
	Caption       string    `json:"caption"`
	Script        string    `json:"script"`
	CTA           string    `json:"cta"`
	MediaURLs     []string  `json:"media_urls"`
}

// RowError reports a schedule row that could not be parsed. The row is left
// out of every due computation until it is fixed in the sheet.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// NormalizeStatus maps a raw status cell onto the stored status values.
// Anything unrecognised counts as pending.
func NormalizeStatus(raw string) PostStatus {
	switch PostStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case PostStatusPublished:
		return PostStatusPublished
	case PostStatusFailed:
		return PostStatusFailed
	default:
		return PostStatusPending
	}
}

// DeriveStatus computes the effective status of a post. A stored
// "published" always wins; otherwise a post is due once its time has come,
// even if the sheet says failed, so a manual reset re-arms it.
func DeriveStatus(stored PostStatus, scheduled, now time.Time) PostStatus {
	if stored == PostStatusPublished {
		return PostStatusPublished
	}
	if !scheduled.After(now) {
		return PostStatusDue
	}
	if stored == "" || stored == PostStatusDue || stored == PostStatusProcessing {
		return PostStatusPending
	}
	return stored
}

func (p *ScheduledPost) IsCarousel() bool {
	return len(p.MediaItems) > 1
}
