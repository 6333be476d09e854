package calendar

import "errors"

var (
	ErrFeedUnavailable = errors.New("calendar: feed unavailable")
	ErrFeedMalformed   = errors.New("calendar: feed malformed")
)
