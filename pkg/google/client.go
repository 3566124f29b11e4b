// Package google holds the two external service adapters: one for the
// Calendar service, one for the Tasks service. Both share the same shape:
// cached per-user clients, per-workspace containers, idempotent upsert
// keyed by a dedup marker, incremental fetch, and a health check.
package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

// tokenSource wraps caller-supplied bearer credentials. The engine consumes
// already-valid tokens; refresh is the caller's problem.
func tokenSource(creds model.Credentials) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	})
}

func newCalendarService(ctx context.Context, creds model.Credentials, extra []option.ClientOption) (*calendar.Service, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(tokenSource(creds))}, extra...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to build Calendar client for %s: %w", creds.UserID, err)
	}
	return srv, nil
}

func newTasksService(ctx context.Context, creds model.Credentials, extra []option.ClientOption) (*tasks.Service, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(tokenSource(creds))}, extra...)
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to build Tasks client for %s: %w", creds.UserID, err)
	}
	return srv, nil
}
