package model

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrAbsent is returned by Item accessors when the message has no value for the field.
	ErrAbsent = errors.New("value not present")
	// ErrUnsupportedFormat is returned by SaveAs when the backend cannot produce the requested format.
	ErrUnsupportedFormat = errors.New("unsupported save format")
)

// ItemClass discriminates mail messages from the other item kinds a folder may hold.
type ItemClass string

const (
	ClassMail           ItemClass = "mail"
	ClassMeetingRequest ItemClass = "meeting_request"
	ClassContact        ItemClass = "contact"
	ClassTask           ItemClass = "task"
	ClassReport         ItemClass = "report"
	ClassUnknown        ItemClass = "unknown"
)

// SaveFormat selects the on-disk container produced by Item.SaveAs.
type SaveFormat string

const (
	// SaveFormatRFC822 writes the raw message as received from the store.
	SaveFormatRFC822 SaveFormat = "rfc822"
)

// Item is a single message-like entry in a folder.
type Item interface {
	Class() (ItemClass, error)
	Subject() (string, error)
	ReceivedTime() (time.Time, error)
	SaveAs(path string, format SaveFormat) error
}

// ClassifyMediaType maps the top-level media type of a message to an item class.
func ClassifyMediaType(mediaType string) ItemClass {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case mediaType == "":
		return ClassMail
	case mediaType == "text/calendar", mediaType == "application/ics":
		return ClassMeetingRequest
	case mediaType == "text/vcard", mediaType == "text/x-vcard", mediaType == "text/directory":
		return ClassContact
	case mediaType == "text/x-vtodo":
		return ClassTask
	case mediaType == "multipart/report", mediaType == "message/delivery-status", mediaType == "message/disposition-notification":
		return ClassReport
	case strings.HasPrefix(mediaType, "text/"), strings.HasPrefix(mediaType, "multipart/"),
		strings.HasPrefix(mediaType, "message/"), strings.HasPrefix(mediaType, "application/"),
		strings.HasPrefix(mediaType, "image/"), strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"):
		return ClassMail
	default:
		return ClassUnknown
	}
}
