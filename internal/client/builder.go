package client

import (
	"context"
	"strconv"

	"courier/internal/core"
	"courier/pkg/models"
)

const manualStackingKey = "ManualStackingKey"

// EventBuilder assembles one event. Setters with invalid input log a warning
// and leave the event unchanged.
type EventBuilder struct {
	Target  *models.Event
	Context *core.EventContext

	client *Client
}

func newEventBuilder(c *Client, ev *models.Event, ectx *core.EventContext) *EventBuilder {
	return &EventBuilder{Target: ev, Context: ectx, client: c}
}

func (b *EventBuilder) SetType(eventType string) *EventBuilder {
	b.Target.Type = eventType
	return b
}

func (b *EventBuilder) SetSource(source string) *EventBuilder {
	b.Target.Source = source
	return b
}

func (b *EventBuilder) SetMessage(message string) *EventBuilder {
	b.Target.Message = message
	return b
}

func (b *EventBuilder) SetGeo(latitude, longitude float64) *EventBuilder {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		b.client.log.Warnw("Ignoring out of range geo coordinates",
			"latitude", latitude,
			"longitude", longitude,
		)
		return b
	}
	b.Target.Geo = strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
	return b
}

func (b *EventBuilder) SetValue(value float64) *EventBuilder {
	b.Target.Value = &value
	return b
}

func (b *EventBuilder) SetReferenceID(id string) *EventBuilder {
	if err := models.ValidateIdentifier("reference_id", id); err != nil {
		b.client.log.Warnw("Ignoring reference id", "error", err)
		return b
	}
	b.Target.ReferenceID = id
	return b
}

// SetEventReference links this event to another one by its reference id.
func (b *EventBuilder) SetEventReference(name, id string) *EventBuilder {
	if name == "" {
		return b
	}
	if err := models.ValidateIdentifier("reference_id", id); err != nil {
		b.client.log.Warnw("Ignoring event reference", "name", name, "error", err)
		return b
	}
	b.Target.SetData(models.DataKeyEventReference+":"+name, id)
	return b
}

func (b *EventBuilder) SetUserIdentity(identity, name string) *EventBuilder {
	if identity == "" && name == "" {
		return b
	}
	b.Target.SetData(models.DataKeyUser, &models.UserInfo{Identity: identity, Name: name})
	return b
}

func (b *EventBuilder) SetUserDescription(email, description string) *EventBuilder {
	if email == "" && description == "" {
		return b
	}
	b.Target.SetData(models.DataKeyUserDescription, &models.UserDescription{
		EmailAddress: email,
		Description:  description,
	})
	return b
}

// SetManualStackingInfo groups events by signature instead of by content.
func (b *EventBuilder) SetManualStackingInfo(signature map[string]string, title string) *EventBuilder {
	if len(signature) == 0 {
		return b
	}
	b.Target.SetData(models.DataKeyManualStacking, &models.ManualStackingInfo{
		Title:     title,
		Signature: signature,
	})
	return b
}

func (b *EventBuilder) SetManualStackingKey(key, title string) *EventBuilder {
	if key == "" {
		return b
	}
	return b.SetManualStackingInfo(map[string]string{manualStackingKey: key}, title)
}

func (b *EventBuilder) AddTags(tags ...string) *EventBuilder {
	b.Target.AddTags(tags...)
	return b
}

// SetProperty stores value under name. Empty names and nil values are
// ignored.
func (b *EventBuilder) SetProperty(name string, value interface{}) *EventBuilder {
	if name == "" || value == nil {
		return b
	}
	b.Target.SetData(name, value)
	return b
}

func (b *EventBuilder) MarkAsCritical(critical bool) *EventBuilder {
	if critical && !b.Target.HasTag(models.TagCritical) {
		b.Target.AddTags(models.TagCritical)
	}
	return b
}

func (b *EventBuilder) Submit(ctx context.Context) *core.PluginContext {
	return b.client.SubmitEvent(ctx, b.Target, b.Context)
}
