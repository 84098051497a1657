package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/mblog/internal/device"
	"github.com/srg/mblog/internal/session"
)

// FormatUserError turns internal errors into messages suitable for the
// terminal, with remediation hints where the cause is usually environmental.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound):
		if notFound.Resource == "device" {
			return fmt.Sprintf("%s - is the micro:bit powered on and advertising?", notFound.Error())
		}
		return notFound.Error()
	case errors.Is(err, session.ErrNoSubscriptions):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return err.Error()
	}
}
