package domain

// AudioQueueItem is a pending audio announcement for a user. Deduplicated by
// Path within a user's queue.
type AudioQueueItem struct {
	Path        string `json:"path"`
	TalkgroupID int64  `json:"talkgroupId"`
}
