package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// QuickbarToggleRequest is the quickbar_toggle service call.
type QuickbarToggleRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Alias    string `json:"alias"`
}

// Build validates the request into a command.
func (r QuickbarToggleRequest) Build() (Command, error) {
	cmd, err := NewQuickbarToggle(r.Alias)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// CameraToggleRequest is the camera_toggle service call.
type CameraToggleRequest struct {
	DeviceID     string           `json:"device_id,omitempty"`
	CameraAlias  Optional[string] `json:"camera_alias,omitzero"`
	CameraEntity Optional[string] `json:"camera_entity,omitzero"`
	RTSPURL      Optional[string] `json:"rtsp_url,omitzero"`
	Size         Optional[string] `json:"size,omitzero"`
	SizePx       Optional[Pixels] `json:"size_px,omitzero"`
	Position     Optional[string] `json:"position,omitzero"`
	ShowTitle    Optional[bool]   `json:"show_title,omitzero"`
	AutoHide     Optional[int]    `json:"auto_hide,omitzero"`
}

// Build validates the request into a command.
func (r CameraToggleRequest) Build() (Command, error) {
	cmd, err := NewCameraToggle(r)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// NewCameraToggle validates and builds a CameraToggle.
func NewCameraToggle(r CameraToggleRequest) (CameraToggle, error) {
	source, err := ResolveCameraSource(r.CameraAlias, r.CameraEntity, r.RTSPURL)
	if err != nil {
		return CameraToggle{}, err
	}
	size, err := ResolveCameraSize(r.Size, r.SizePx)
	if err != nil {
		return CameraToggle{}, err
	}
	position, err := mapOptional(r.Position, parsePosition)
	if err != nil {
		return CameraToggle{}, err
	}
	autoHide, err := mapOptional(r.AutoHide, normalizeAutoHide)
	if err != nil {
		return CameraToggle{}, err
	}

	return CameraToggle{
		source:    source,
		position:  position,
		size:      size,
		autoHide:  autoHide,
		showTitle: r.ShowTitle,
	}, nil
}

// normalizeAutoHide accepts 0 (never hide) or 5..300 seconds, raising 1..4 to 5.
func normalizeAutoHide(v int) (int, error) {
	if v < 0 || v > MaxAutoHide {
		return 0, fmt.Errorf("%w: auto_hide %d outside 0..%d", device.ErrInvalidConfiguration, v, MaxAutoHide)
	}
	if v > 0 && v < MinAutoHide {
		return MinAutoHide, nil
	}
	return v, nil
}

// NotifyRequest is the notify service call.
type NotifyRequest struct {
	DeviceID           string            `json:"device_id,omitempty"`
	CID                Optional[string]  `json:"cid,omitzero"`
	Title              Optional[string]  `json:"title,omitzero"`
	Message            string            `json:"message"`
	Actions            []Action          `json:"actions,omitempty"`
	Length             Optional[int]     `json:"length,omitzero"`
	Color              Optional[Color]   `json:"color,omitzero"`
	Transparency       Optional[float64] `json:"transparency,omitzero"`
	MDIIcon            Optional[string]  `json:"mdi_icon,omitzero"`
	Image              Optional[string]  `json:"image,omitzero"`
	ImageMedia         Optional[string]  `json:"image_media,omitzero"`
	Sound              Optional[string]  `json:"sound,omitzero"`
	SoundMedia         Optional[string]  `json:"sound_media,omitzero"`
	SoundVolumePercent Optional[int]     `json:"sound_volume_percent,omitzero"`
	Interrupt          Optional[bool]    `json:"interrupt,omitzero"`
	Position           Optional[string]  `json:"position,omitzero"`
}

// Build validates the request into a command.
func (r NotifyRequest) Build() (Command, error) {
	cmd, err := NewNotify(r)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// NewNotify validates and builds a Notify. A correlation id is generated
// when the request carries none.
func NewNotify(r NotifyRequest) (Notify, error) {
	message := strings.TrimSpace(r.Message)
	if message == "" {
		return Notify{}, fmt.Errorf("%w: message is required", device.ErrInvalidConfiguration)
	}

	actions, err := validateActions(r.Actions)
	if err != nil {
		return Notify{}, err
	}

	image, err := ResolveMedia("image", r.Image, r.ImageMedia)
	if err != nil {
		return Notify{}, err
	}
	sound, err := ResolveMedia("sound", r.Sound, r.SoundMedia)
	if err != nil {
		return Notify{}, err
	}

	if v, ok := r.SoundVolumePercent.Get(); ok && (v < 0 || v > MaxVolumePercent) {
		return Notify{}, fmt.Errorf("%w: sound_volume_percent %d outside 0..%d",
			device.ErrInvalidConfiguration, v, MaxVolumePercent)
	}
	if v, ok := r.Transparency.Get(); ok && (v < 0 || v > 1) {
		return Notify{}, fmt.Errorf("%w: transparency %v outside 0..1", device.ErrInvalidConfiguration, v)
	}

	position, err := mapOptional(r.Position, parsePosition)
	if err != nil {
		return Notify{}, err
	}
	length := mapSet(r.Length, func(v int) int { return min(max(v, MinLength), MaxLength) })
	color := mapSet(r.Color, Color.Value)

	icon := None[string]()
	if v, ok := nonEmpty(r.MDIIcon); ok {
		icon = Some(v)
	}

	cid, ok := nonEmpty(r.CID)
	if !ok {
		cid = newCID()
	}

	return Notify{
		cid:                cid,
		title:              r.Title,
		message:            message,
		actions:            actions,
		length:             length,
		color:              color,
		transparency:       r.Transparency,
		icon:               icon,
		image:              image,
		sound:              sound,
		soundVolumePercent: r.SoundVolumePercent,
		interrupt:          r.Interrupt,
		position:           position,
	}, nil
}

func validateActions(in []Action) ([]Action, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]Action, 0, len(in))
	for i, a := range in {
		a.ID = strings.TrimSpace(a.ID)
		a.Label = strings.TrimSpace(a.Label)
		if a.ID == "" || a.Label == "" {
			return nil, fmt.Errorf("%w: actions[%d] needs id and label", device.ErrInvalidConfiguration, i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: duplicate action id %q", device.ErrInvalidConfiguration, a.ID)
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, nil
}

// Request is a decoded service call of any kind.
type Request interface {
	Build() (Command, error)
}

// Decode parses a service call body for kind. It returns the built command
// and the target device id, which is empty for a broadcast.
func Decode(kind Kind, body []byte) (Command, string, error) {
	var (
		req      Request
		deviceID *string
	)
	switch kind {
	case KindQuickbarToggle:
		r := &QuickbarToggleRequest{}
		req, deviceID = r, &r.DeviceID
	case KindCameraToggle:
		r := &CameraToggleRequest{}
		req, deviceID = r, &r.DeviceID
	case KindNotify:
		r := &NotifyRequest{}
		req, deviceID = r, &r.DeviceID
	default:
		return nil, "", fmt.Errorf("%w: unknown service %q", device.ErrInvalidConfiguration, kind)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return nil, "", fmt.Errorf("%w: decoding %s: %v", device.ErrInvalidConfiguration, kind, err)
	}

	cmd, err := req.Build()
	if err != nil {
		return nil, "", err
	}
	return cmd, strings.TrimSpace(*deviceID), nil
}
