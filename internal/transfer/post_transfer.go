package transfer

// PostCreation is the multipart form of a manual post.
type PostCreation struct {
	Text          string `form:"text" validate:"required,max=63206"`
	Hashtags      string `form:"hashtags" validate:"max=2000"`
	ContentType   string `form:"content_type" validate:"omitempty,oneof=promotional educational behind_scenes product_showcase customer_story tips news"`
	ScheduledTime string `form:"scheduled_time" validate:"required"`
	Timezone      string `form:"timezone" validate:"omitempty,timezone"`
	// Platforms is a JSON array of platform names, e.g. ["facebook","twitter"].
	Platforms string `form:"platforms" validate:"required"`
}

type RetryFailedRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"omitempty,max=64"`
}

type RemovePostRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}
