package command

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// Position is a screen corner for an overlay.
type Position string

// Overlay positions.
const (
	PositionTopLeft     Position = "top_left"
	PositionTopRight    Position = "top_right"
	PositionBottomLeft  Position = "bottom_left"
	PositionBottomRight Position = "bottom_right"
)

func parsePosition(s string) (Position, error) {
	switch p := Position(s); p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown position %q", device.ErrInvalidConfiguration, s)
}

// SourceKind identifies which arm of a CameraSource is populated.
type SourceKind int

// Camera source arms.
const (
	SourceAlias SourceKind = iota + 1
	SourceEntity
	SourceRTSP
)

// CameraSource is the stream a CameraToggle shows: a saved-entity alias, a
// home-automation entity id, or an RTSP URL. Exactly one arm is populated.
type CameraSource struct {
	kind  SourceKind
	value string
}

// Kind returns the populated arm.
func (s CameraSource) Kind() SourceKind { return s.kind }

// Value returns the alias, entity id or URL.
func (s CameraSource) Value() string { return s.value }

// AliasSource returns a source naming a camera by its TV-side alias.
func AliasSource(alias string) CameraSource {
	return CameraSource{kind: SourceAlias, value: alias}
}

// EntitySource returns a source naming a camera by entity id.
func EntitySource(entityID string) CameraSource {
	return CameraSource{kind: SourceEntity, value: entityID}
}

// RTSPSource returns a source pointing the TV straight at a stream.
func RTSPSource(uri string) CameraSource {
	return CameraSource{kind: SourceRTSP, value: uri}
}

// ResolveCameraSource picks the camera source from the three request fields.
// An RTSP URL wins over the others. Alias and entity together are rejected,
// as is supplying none of the three.
func ResolveCameraSource(alias, entity, rtsp Optional[string]) (CameraSource, error) {
	a, hasAlias := nonEmpty(alias)
	e, hasEntity := nonEmpty(entity)
	r, hasRTSP := nonEmpty(rtsp)

	switch {
	case hasRTSP:
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "rtsp" && u.Scheme != "rtsps") || u.Host == "" {
			return CameraSource{}, fmt.Errorf("%w: rtsp_url %q is not an rtsp:// URL", device.ErrInvalidConfiguration, r)
		}
		return RTSPSource(r), nil
	case hasAlias && hasEntity:
		return CameraSource{}, fmt.Errorf("%w: camera_alias and camera_entity", device.ErrMutuallyExclusiveFields)
	case hasAlias:
		return AliasSource(a), nil
	case hasEntity:
		if !validEntityID(e) {
			return CameraSource{}, fmt.Errorf("%w: camera_entity %q is not an entity id", device.ErrInvalidConfiguration, e)
		}
		return EntitySource(e), nil
	}
	return CameraSource{}, fmt.Errorf("%w: one of camera_alias, camera_entity or rtsp_url is required", device.ErrInvalidConfiguration)
}

// SizePreset is a named camera overlay size.
type SizePreset string

// Size presets.
const (
	SizeSmall  SizePreset = "small"
	SizeMedium SizePreset = "medium"
	SizeLarge  SizePreset = "large"
)

// Pixel bounds for a custom overlay size.
const (
	MinPixels       = 48
	MaxPixelsWidth  = 3840
	MaxPixelsHeight = 2160
)

// Pixels is a custom overlay size.
type Pixels struct {
	W int `json:"w"`
	H int `json:"h"`
}

// CameraSize is either a preset or a pixel size.
type CameraSize struct {
	preset SizePreset
	pixels Pixels
}

// Preset returns the preset and true when the size is a preset.
func (s CameraSize) Preset() (SizePreset, bool) { return s.preset, s.preset != "" }

// Pixels returns the pixel size and true when the size is custom.
func (s CameraSize) Pixels() (Pixels, bool) { return s.pixels, s.preset == "" }

// ResolveCameraSize picks the size from the size and size_px fields. Both
// unset yields an unset size for the TV to default.
func ResolveCameraSize(preset Optional[string], px Optional[Pixels]) (Optional[CameraSize], error) {
	if preset.IsSet() && px.IsSet() {
		return None[CameraSize](), fmt.Errorf("%w: size and size_px", device.ErrMutuallyExclusiveFields)
	}
	if p, ok := preset.Get(); ok {
		switch sp := SizePreset(p); sp {
		case SizeSmall, SizeMedium, SizeLarge:
			return Some(CameraSize{preset: sp}), nil
		}
		return None[CameraSize](), fmt.Errorf("%w: unknown size %q", device.ErrInvalidConfiguration, p)
	}
	if p, ok := px.Get(); ok {
		if p.W < MinPixels || p.W > MaxPixelsWidth || p.H < MinPixels || p.H > MaxPixelsHeight {
			return None[CameraSize](), fmt.Errorf("%w: size_px %dx%d out of range", device.ErrInvalidConfiguration, p.W, p.H)
		}
		return Some(CameraSize{pixels: p}), nil
	}
	return None[CameraSize](), nil
}

// MediaKind identifies which arm of a Media is populated.
type MediaKind int

// Media arms.
const (
	MediaURL MediaKind = iota + 1
	MediaContent
)

const (
	localPrefix       = "/local/"
	mediaSourcePrefix = "media-source://media_source/local/"
)

// Media is an image or sound reference: a direct URL (absolute, or a
// /local/ path on the hub) or a media-source content id.
type Media struct {
	kind MediaKind
	ref  string
}

// Kind returns the populated arm.
func (m Media) Kind() MediaKind { return m.kind }

// Ref returns the reference as supplied.
func (m Media) Ref() string { return m.ref }

// ResolveMedia picks between a direct reference and a media-source id.
// field names the pair in error messages ("image" or "sound").
func ResolveMedia(field string, direct, content Optional[string]) (Optional[Media], error) {
	d, hasDirect := nonEmpty(direct)
	c, hasContent := nonEmpty(content)

	switch {
	case hasDirect && hasContent:
		return None[Media](), fmt.Errorf("%w: %s and %s_media", device.ErrMutuallyExclusiveFields, field, field)
	case hasDirect:
		if !isAbsoluteURL(d) && !strings.HasPrefix("/"+strings.TrimPrefix(d, "/"), localPrefix) {
			return None[Media](), fmt.Errorf("%w: %s %q is neither a URL nor a /local/ path", device.ErrInvalidConfiguration, field, d)
		}
		return Some(Media{kind: MediaURL, ref: d}), nil
	case hasContent:
		if !strings.HasPrefix(c, mediaSourcePrefix) || len(c) == len(mediaSourcePrefix) {
			return None[Media](), fmt.Errorf("%w: %s_media %q is not a local media-source id", device.ErrInvalidConfiguration, field, c)
		}
		return Some(Media{kind: MediaContent, ref: c}), nil
	}
	return None[Media](), nil
}

// resolve turns the reference into a URL the TV can fetch.
func (m Media) resolve(base string) string {
	switch m.kind {
	case MediaContent:
		return joinBase(base, "local/"+strings.TrimPrefix(m.ref, mediaSourcePrefix))
	default:
		if isAbsoluteURL(m.ref) {
			return m.ref
		}
		return joinBase(base, strings.TrimPrefix(m.ref, "/"))
	}
}

func joinBase(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func nonEmpty(o Optional[string]) (string, bool) {
	v, ok := o.Get()
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func validEntityID(id string) bool {
	domain, object, ok := strings.Cut(id, ".")
	return ok && domain != "" && object != "" && !strings.ContainsAny(id, " /")
}
