package wisdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/3-electric-sheep/wisdk-go/pkg/api"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
)

// Params are optional query parameters for list calls (paging, distance,
// units and the like).
type Params map[string]string

func withQuery(path string, params Params) string {
	if len(params) == 0 {
		return path
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return path + "?" + q.Encode()
}

type listResponse struct {
	api.Envelope
	Data json.RawMessage `json:"data"`
}

func (a *App) list(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var resp listResponse
	if err := a.api.CallAPI(ctx, method, path, body, &resp, api.RequireAuth); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListLiveEvents returns the live events targeted at this device.
func (a *App) ListLiveEvents(ctx context.Context, params Params) (json.RawMessage, error) {
	path := fmt.Sprintf("geodevice/%s/live-events", a.sessions.Session().DeviceToken)
	return a.list(ctx, http.MethodGet, withQuery(path, params), nil)
}

// ListAlertedEvents returns the events this device has been alerted on.
func (a *App) ListAlertedEvents(ctx context.Context, params Params) (json.RawMessage, error) {
	path := fmt.Sprintf("geodevice/%s/alerted-events", a.sessions.Session().DeviceToken)
	return a.list(ctx, http.MethodGet, withQuery(path, params), nil)
}

// ListSearchEvents returns live events near a point. Distance, units and
// result count travel in params.
func (a *App) ListSearchEvents(ctx context.Context, latitude, longitude float64, params Params) (json.RawMessage, error) {
	path := fmt.Sprintf("geopos/%v,%v/live-events", longitude, latitude)
	return a.list(ctx, http.MethodGet, withQuery(path, params), nil)
}

// ListAcknowledgedLiveEvents returns events the user has acknowledged.
func (a *App) ListAcknowledgedLiveEvents(ctx context.Context, params Params) (json.RawMessage, error) {
	return a.list(ctx, http.MethodGet, withQuery("events/acknowledged", params), nil)
}

// ListFollowedLiveEvents returns events the user follows.
func (a *App) ListFollowedLiveEvents(ctx context.Context, params Params) (json.RawMessage, error) {
	return a.list(ctx, http.MethodGet, withQuery("events/following", params), nil)
}

// UpdateEventAck marks an event acknowledged or not.
func (a *App) UpdateEventAck(ctx context.Context, eventID string, ack bool) error {
	path := fmt.Sprintf("events/%s/ack", eventID)
	_, err := a.list(ctx, http.MethodPut, path, map[string]bool{"ack": ack})
	return err
}

// UpdateEventEnacted marks an event enacted or not.
func (a *App) UpdateEventEnacted(ctx context.Context, eventID string, enacted bool) error {
	path := fmt.Sprintf("events/%s/enact", eventID)
	_, err := a.list(ctx, http.MethodPut, path, map[string]bool{"enact": enacted})
	return err
}

// AckMessage acknowledges the event a notification advertises, if any.
// Failures are reported through the listener and dropped.
func (a *App) AckMessage(ctx context.Context, msg push.Message) {
	id := msg.EventID()
	if id == "" {
		return
	}
	if err := a.UpdateEventAck(ctx, id, true); err != nil {
		a.listener.OnError("event ack fail", err)
	}
}

// ImageURL builds the authenticated URL of an event image.
func (a *App) ImageURL(imageID string) string {
	return a.api.URL(fmt.Sprintf("/images/%s", imageID), true)
}

// Account profile endpoint.
const pathProfile = "account"

// AccountProfile returns the account profile of the registered or logged
// in user.
func (a *App) AccountProfile(ctx context.Context) (json.RawMessage, error) {
	return a.list(ctx, http.MethodGet, pathProfile, nil)
}

// UpdateAccountProfile updates the account profile.
func (a *App) UpdateAccountProfile(ctx context.Context, profile any) (json.RawMessage, error) {
	return a.list(ctx, http.MethodPut, pathProfile, profile)
}

// UpdateAccountProfilePassword changes the password. Only meaningful for
// non-anonymous users.
func (a *App) UpdateAccountProfilePassword(ctx context.Context, password, oldPassword string) error {
	body := map[string]string{
		"password":     password,
		"old_password": oldPassword,
	}
	_, err := a.list(ctx, http.MethodPut, pathProfile, body)
	return err
}
