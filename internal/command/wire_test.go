package command

import (
	"encoding/json"
	"testing"
)

func encodePayload(t *testing.T, kind Kind, body string) map[string]any {
	t.Helper()
	cmd, _, err := Decode(kind, []byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	id, data, err := NewEncoder("http://192.168.1.20:8123/").Encode(cmd)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var frame struct {
		Type    string         `json:"type"`
		ID      string         `json:"id"`
		Command Kind           `json:"command"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if frame.Type != FrameTypeCommand || frame.ID != id || frame.Command != kind {
		t.Errorf("frame header = %s/%s/%s, want command/%s/%s", frame.Type, frame.ID, frame.Command, id, kind)
	}
	return frame.Payload
}

func TestEncode_CameraOmitsUnsetFields(t *testing.T) {
	p := encodePayload(t, KindCameraToggle, `{"camera_alias":"door"}`)
	if len(p) != 1 || p["camera_alias"] != "door" {
		t.Errorf("payload = %v, want only camera_alias", p)
	}
}

func TestEncode_CameraExplicitZeroValuesKept(t *testing.T) {
	p := encodePayload(t, KindCameraToggle,
		`{"camera_entity":"camera.door","auto_hide":0,"show_title":false,"size_px":{"w":640,"h":360},"position":"bottom_right"}`)

	if v, ok := p["auto_hide"]; !ok || v != float64(0) {
		t.Errorf("auto_hide = %v (present %v), want explicit 0", v, ok)
	}
	if v, ok := p["show_title"]; !ok || v != false {
		t.Errorf("show_title = %v (present %v), want explicit false", v, ok)
	}
	if _, ok := p["size"]; ok {
		t.Error("size present alongside size_px")
	}
	px, _ := p["size_px"].(map[string]any)
	if px["w"] != float64(640) || px["h"] != float64(360) {
		t.Errorf("size_px = %v, want 640x360", p["size_px"])
	}
	if p["position"] != "bottom_right" || p["camera_entity"] != "camera.door" {
		t.Errorf("payload = %v", p)
	}
}

func TestEncode_NotifyResolvesMediaAndIcon(t *testing.T) {
	p := encodePayload(t, KindNotify, `{
		"message": "Someone is at the door",
		"cid": "door-1",
		"mdi_icon": "mdi:doorbell",
		"image_media": "media-source://media_source/local/snapshots/door.jpg",
		"sound": "/local/sounds/ding.mp3",
		"color": [255, 0, 0],
		"length": 1,
		"actions": [{"id": "open_door", "label": "Open"}]
	}`)

	checks := map[string]any{
		"cid":       "door-1",
		"message":   "Someone is at the door",
		"icon_url":  "https://api.iconify.design/mdi%3Adoorbell.svg",
		"image_url": "http://192.168.1.20:8123/local/snapshots/door.jpg",
		"sound_url": "http://192.168.1.20:8123/local/sounds/ding.mp3",
		"color":     "#ff0000",
		"duration":  float64(3),
	}
	for k, want := range checks {
		if p[k] != want {
			t.Errorf("payload[%q] = %v, want %v", k, p[k], want)
		}
	}
	for _, absent := range []string{"title", "position", "interrupt", "transparency", "sound_volume_percent", "icon_svg_data_uri"} {
		if _, ok := p[absent]; ok {
			t.Errorf("payload[%q] present, want omitted", absent)
		}
	}
	actions, _ := p["actions"].([]any)
	if len(actions) != 1 {
		t.Errorf("actions = %v, want one", p["actions"])
	}
}

func TestEncode_AbsoluteMediaPassesThrough(t *testing.T) {
	p := encodePayload(t, KindNotify, `{"message":"m","image":"https://cdn.example.com/a.png"}`)
	if p["image_url"] != "https://cdn.example.com/a.png" {
		t.Errorf("image_url = %v, want unchanged URL", p["image_url"])
	}
}

func TestEncode_FreshIDs(t *testing.T) {
	cmd, _ := NewQuickbarToggle("lights")
	e := NewEncoder("http://hub:8123")
	id1, _, _ := e.Encode(cmd)
	id2, _, _ := e.Encode(cmd)
	if id1 == "" || id1 == id2 {
		t.Errorf("frame ids = %q, %q; want distinct non-empty", id1, id2)
	}
}
