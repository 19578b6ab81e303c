package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// Kind names a command as it appears in service calls and on the wire.
type Kind string

// Command kinds.
const (
	KindQuickbarToggle Kind = "quickbar_toggle"
	KindCameraToggle   Kind = "camera_toggle"
	KindNotify         Kind = "notify"
)

// Kinds lists every command kind.
var Kinds = []Kind{KindQuickbarToggle, KindCameraToggle, KindNotify}

// Field limits.
const (
	MaxAutoHide      = 300
	MinAutoHide      = 5
	MinLength        = 3
	MaxLength        = 120
	MaxVolumePercent = 200
	iconifyBaseURL   = "https://api.iconify.design"
)

// Command is one of QuickbarToggle, CameraToggle or Notify.
type Command interface {
	Kind() Kind

	// payload builds the wire payload. base is the hub URL that relative
	// media references resolve against.
	payload(base string) any
}

// QuickbarToggle opens or closes a QuickBar on the TV.
type QuickbarToggle struct {
	alias string
}

// NewQuickbarToggle validates and builds a QuickbarToggle.
func NewQuickbarToggle(alias string) (QuickbarToggle, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return QuickbarToggle{}, fmt.Errorf("%w: alias is required", device.ErrInvalidConfiguration)
	}
	return QuickbarToggle{alias: alias}, nil
}

// Kind implements Command.
func (QuickbarToggle) Kind() Kind { return KindQuickbarToggle }

// Alias returns the QuickBar alias.
func (c QuickbarToggle) Alias() string { return c.alias }

// CameraToggle shows or hides a camera picture-in-picture overlay.
type CameraToggle struct {
	source    CameraSource
	position  Optional[Position]
	size      Optional[CameraSize]
	autoHide  Optional[int]
	showTitle Optional[bool]
}

// Kind implements Command.
func (CameraToggle) Kind() Kind { return KindCameraToggle }

// Source returns the camera the overlay shows.
func (c CameraToggle) Source() CameraSource { return c.source }

// Position returns the overlay corner, if set.
func (c CameraToggle) Position() Optional[Position] { return c.position }

// Size returns the overlay size, if set.
func (c CameraToggle) Size() Optional[CameraSize] { return c.size }

// AutoHide returns the auto-hide delay in seconds, if set. Zero means never.
func (c CameraToggle) AutoHide() Optional[int] { return c.autoHide }

// ShowTitle returns whether the camera name is shown, if set.
func (c CameraToggle) ShowTitle() Optional[bool] { return c.showTitle }

// Action is a button shown on a notification. Pressing it produces an
// action event carrying ID.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Notify shows a notification on the TV.
type Notify struct {
	cid                string
	title              Optional[string]
	message            string
	actions            []Action
	length             Optional[int]
	color              Optional[string]
	transparency       Optional[float64]
	icon               Optional[string]
	iconData           Optional[string]
	image              Optional[Media]
	sound              Optional[Media]
	soundVolumePercent Optional[int]
	interrupt          Optional[bool]
	position           Optional[Position]
}

// Kind implements Command.
func (Notify) Kind() Kind { return KindNotify }

// CID returns the correlation id echoed back by action events.
func (n Notify) CID() string { return n.cid }

// Title returns the notification title, if set.
func (n Notify) Title() Optional[string] { return n.title }

// Message returns the notification body.
func (n Notify) Message() string { return n.message }

// Actions returns a copy of the action buttons.
func (n Notify) Actions() []Action {
	return append([]Action(nil), n.actions...)
}

// Length returns the display time in seconds, if set.
func (n Notify) Length() Optional[int] { return n.length }

// Color returns the overlay color, if set: "#rrggbb" or a color name as
// given.
func (n Notify) Color() Optional[string] { return n.color }

// Image returns the image reference, if set.
func (n Notify) Image() Optional[Media] { return n.image }

// Sound returns the sound reference, if set.
func (n Notify) Sound() Optional[Media] { return n.sound }

// Color is a color as accepted in a notify request: "#rrggbb", "#rgb",
// an [r, g, b] list, an {"r", "g", "b"} object, or any other string such
// as "red", which the TV app interprets.
type Color struct {
	value string
}

// Value returns the color sent to the TV. Hex and RGB inputs are
// normalized to lowercase "#rrggbb"; other strings pass through trimmed.
func (c Color) Value() string { return c.value }

// UnmarshalJSON implements json.Unmarshaler.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%w: color is empty", device.ErrInvalidConfiguration)
		}
		if hex, ok := normalizeHex(s); ok {
			c.value = hex
		} else {
			c.value = s
		}
		return nil
	}

	var list []float64
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != 3 {
			return fmt.Errorf("%w: color list must have 3 components", device.ErrInvalidConfiguration)
		}
		c.value = rgbHex(list[0], list[1], list[2])
		return nil
	}

	var obj struct {
		R *float64 `json:"r"`
		G *float64 `json:"g"`
		B *float64 `json:"b"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.R != nil && obj.G != nil && obj.B != nil {
		c.value = rgbHex(*obj.R, *obj.G, *obj.B)
		return nil
	}
	return fmt.Errorf("%w: unsupported color %s", device.ErrInvalidConfiguration, data)
}

// normalizeHex expands "#rgb" and lowercases "#rrggbb". The "#" is
// optional. It reports false for anything else.
func normalizeHex(s string) (string, bool) {
	h := strings.ToLower(strings.TrimPrefix(s, "#"))
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return "", false
	}
	if _, err := strconv.ParseUint(h, 16, 32); err != nil {
		return "", false
	}
	return "#" + h, true
}

func rgbHex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", clamp8(r), clamp8(g), clamp8(b))
}

func clamp8(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return int(v)
}

// iconURL maps an icon name such as "mdi:bell" to a fetchable SVG.
func iconURL(icon string) string {
	return iconURLAt(iconifyBaseURL, icon)
}

func iconURLAt(base, icon string) string {
	return base + "/" + strings.ReplaceAll(icon, ":", "%3A") + ".svg"
}

// newCID returns a correlation id for a notification.
func newCID() string {
	return uuid.NewString()
}
