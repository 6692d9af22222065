package validator

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const (
	MaxContentLength = 4000
	MaxStoryBytes    = 10 << 20
)

var messageTypes = map[string]bool{"text": true, "image": true, "audio": true, "video": true, "gif": true}

var storyMediaTypes = map[string]bool{"image": true, "video": true}

func ValidateSendMessage(messageType, content string, mediaURL *string) ValidationErrors {
	errs := make(ValidationErrors)

	if !messageTypes[messageType] {
		errs.Add("message_type", "Message type must be text, image, audio, video, or gif")
		return errs
	}

	if len(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Content must be at most %d characters", MaxContentLength))
	}

	if messageType == "text" {
		if strings.TrimSpace(content) == "" {
			errs.Add("content", "Message content is required")
		}
		if mediaURL != nil {
			errs.Add("media_url", "Text messages cannot carry media")
		}
		return errs
	}

	if mediaURL == nil || strings.TrimSpace(*mediaURL) == "" {
		errs.Add("media_url", "Media URL is required")
	} else if u, err := url.Parse(*mediaURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs.Add("media_url", "Media URL must be an absolute http(s) URL")
	}

	return errs
}

func ValidateStory(mediaType string, media []byte) ValidationErrors {
	errs := make(ValidationErrors)

	if !storyMediaTypes[mediaType] {
		errs.Add("media_type", "Media type must be image or video")
	}

	if len(media) == 0 {
		errs.Add("media", "Media is required")
	} else if len(media) > MaxStoryBytes {
		errs.Add("media", "Media is too large")
	}

	return errs
}
