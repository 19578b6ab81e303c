package command

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FrameTypeCommand is the frame type of every outbound command.
const FrameTypeCommand = "command"

// Frame is the JSON text frame written to the TV's channel.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Command Kind   `json:"command"`
	Payload any    `json:"payload"`
}

type quickbarPayload struct {
	Alias string `json:"alias"`
}

type cameraPayload struct {
	CameraAlias  string             `json:"camera_alias,omitempty"`
	CameraEntity string             `json:"camera_entity,omitempty"`
	RTSPURL      string             `json:"rtsp_url,omitempty"`
	Position     Optional[Position] `json:"position,omitzero"`
	Size         Optional[string]   `json:"size,omitzero"`
	SizePx       Optional[Pixels]   `json:"size_px,omitzero"`
	AutoHide     Optional[int]      `json:"auto_hide,omitzero"`
	ShowTitle    Optional[bool]     `json:"show_title,omitzero"`
}

type notifyPayload struct {
	CID                string             `json:"cid"`
	Title              Optional[string]   `json:"title,omitzero"`
	Message            string             `json:"message"`
	Actions            []Action           `json:"actions,omitempty"`
	Duration           Optional[int]      `json:"duration,omitzero"`
	Position           Optional[Position] `json:"position,omitzero"`
	Color              Optional[string]   `json:"color,omitzero"`
	Transparency       Optional[float64]  `json:"transparency,omitzero"`
	Interrupt          Optional[bool]     `json:"interrupt,omitzero"`
	ImageURL           Optional[string]   `json:"image_url,omitzero"`
	SoundURL           Optional[string]   `json:"sound_url,omitzero"`
	SoundVolumePercent Optional[int]      `json:"sound_volume_percent,omitzero"`
	IconURL            Optional[string]   `json:"icon_url,omitzero"`
	IconSVGDataURI     Optional[string]   `json:"icon_svg_data_uri,omitzero"`
}

func (c QuickbarToggle) payload(string) any {
	return quickbarPayload{Alias: c.alias}
}

func (c CameraToggle) payload(string) any {
	p := cameraPayload{
		Position:  c.position,
		AutoHide:  c.autoHide,
		ShowTitle: c.showTitle,
	}
	switch c.source.kind {
	case SourceAlias:
		p.CameraAlias = c.source.value
	case SourceEntity:
		p.CameraEntity = c.source.value
	case SourceRTSP:
		p.RTSPURL = c.source.value
	}
	if size, ok := c.size.Get(); ok {
		if preset, ok := size.Preset(); ok {
			p.Size = Some(string(preset))
		} else {
			p.SizePx = Some(size.pixels)
		}
	}
	return p
}

func (n Notify) payload(base string) any {
	resolve := func(m Media) string { return m.resolve(base) }

	return notifyPayload{
		CID:                n.cid,
		Title:              n.title,
		Message:            n.message,
		Actions:            n.actions,
		Duration:           n.length,
		Position:           n.position,
		Color:              n.color,
		Transparency:       n.transparency,
		Interrupt:          n.interrupt,
		ImageURL:           mapSet(n.image, resolve),
		SoundURL:           mapSet(n.sound, resolve),
		SoundVolumePercent: n.soundVolumePercent,
		IconURL:            mapSet(n.icon, iconURL),
		IconSVGDataURI:     n.iconData,
	}
}

// Encoder turns commands into wire frames.
type Encoder struct {
	baseURL string
}

// NewEncoder returns an encoder resolving relative media against baseURL,
// the hub address reachable from the TV.
func NewEncoder(baseURL string) *Encoder {
	return &Encoder{baseURL: baseURL}
}

// Encode builds a frame with a fresh id and returns the id and JSON bytes.
func (e *Encoder) Encode(cmd Command) (string, []byte, error) {
	if cmd == nil {
		return "", nil, fmt.Errorf("encoding frame: nil command")
	}
	id := uuid.NewString()
	data, err := json.Marshal(Frame{
		Type:    FrameTypeCommand,
		ID:      id,
		Command: cmd.Kind(),
		Payload: cmd.payload(e.baseURL),
	})
	if err != nil {
		return "", nil, fmt.Errorf("encoding %s frame: %w", cmd.Kind(), err)
	}
	return id, data, nil
}
