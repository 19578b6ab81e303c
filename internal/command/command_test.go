package command

import (
	"errors"
	"testing"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

func TestDecode_Validation(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		body    string
		wantErr error
	}{
		{"quickbar ok", KindQuickbarToggle, `{"alias":"lights"}`, nil},
		{"quickbar without alias", KindQuickbarToggle, `{}`, device.ErrInvalidConfiguration},
		{"unknown field", KindQuickbarToggle, `{"alias":"x","colour":"red"}`, device.ErrInvalidConfiguration},
		{"unknown service", Kind("reboot"), `{}`, device.ErrInvalidConfiguration},

		{"camera alias", KindCameraToggle, `{"camera_alias":"door"}`, nil},
		{"camera entity", KindCameraToggle, `{"camera_entity":"camera.door"}`, nil},
		{"camera rtsp wins", KindCameraToggle, `{"camera_alias":"door","camera_entity":"camera.door","rtsp_url":"rtsp://10.0.0.9/live"}`, nil},
		{"camera alias and entity", KindCameraToggle, `{"camera_alias":"door","camera_entity":"camera.door"}`, device.ErrMutuallyExclusiveFields},
		{"camera without source", KindCameraToggle, `{"position":"top_left"}`, device.ErrInvalidConfiguration},
		{"camera bad entity", KindCameraToggle, `{"camera_entity":"door"}`, device.ErrInvalidConfiguration},
		{"camera bad rtsp", KindCameraToggle, `{"rtsp_url":"http://10.0.0.9/live"}`, device.ErrInvalidConfiguration},
		{"camera size and size_px", KindCameraToggle, `{"camera_alias":"door","size":"small","size_px":{"w":640,"h":360}}`, device.ErrMutuallyExclusiveFields},
		{"camera bad size", KindCameraToggle, `{"camera_alias":"door","size":"huge"}`, device.ErrInvalidConfiguration},
		{"camera size_px too small", KindCameraToggle, `{"camera_alias":"door","size_px":{"w":10,"h":360}}`, device.ErrInvalidConfiguration},
		{"camera size_px too tall", KindCameraToggle, `{"camera_alias":"door","size_px":{"w":640,"h":2161}}`, device.ErrInvalidConfiguration},
		{"camera bad position", KindCameraToggle, `{"camera_alias":"door","position":"center"}`, device.ErrInvalidConfiguration},
		{"camera auto_hide too long", KindCameraToggle, `{"camera_alias":"door","auto_hide":301}`, device.ErrInvalidConfiguration},
		{"camera negative auto_hide", KindCameraToggle, `{"camera_alias":"door","auto_hide":-1}`, device.ErrInvalidConfiguration},

		{"notify ok", KindNotify, `{"message":"Doorbell"}`, nil},
		{"notify without message", KindNotify, `{"title":"Hi"}`, device.ErrInvalidConfiguration},
		{"notify blank message", KindNotify, `{"message":"   "}`, device.ErrInvalidConfiguration},
		{"notify volume high", KindNotify, `{"message":"m","sound_volume_percent":201}`, device.ErrInvalidConfiguration},
		{"notify volume negative", KindNotify, `{"message":"m","sound_volume_percent":-1}`, device.ErrInvalidConfiguration},
		{"notify volume max", KindNotify, `{"message":"m","sound_volume_percent":200}`, nil},
		{"notify transparency", KindNotify, `{"message":"m","transparency":1.5}`, device.ErrInvalidConfiguration},
		{"notify image and image_media", KindNotify, `{"message":"m","image":"https://x/y.png","image_media":"media-source://media_source/local/y.png"}`, device.ErrMutuallyExclusiveFields},
		{"notify sound and sound_media", KindNotify, `{"message":"m","sound":"/local/ding.mp3","sound_media":"media-source://media_source/local/ding.mp3"}`, device.ErrMutuallyExclusiveFields},
		{"notify foreign media source", KindNotify, `{"message":"m","image_media":"media-source://dlna/abc"}`, device.ErrInvalidConfiguration},
		{"notify relative image", KindNotify, `{"message":"m","image":"pics/door.png"}`, device.ErrInvalidConfiguration},
		{"notify blank color", KindNotify, `{"message":"m","color":"  "}`, device.ErrInvalidConfiguration},
		{"notify color number", KindNotify, `{"message":"m","color":7}`, device.ErrInvalidConfiguration},
		{"notify short color list", KindNotify, `{"message":"m","color":[1,2]}`, device.ErrInvalidConfiguration},
		{"notify action without label", KindNotify, `{"message":"m","actions":[{"id":"ok"}]}`, device.ErrInvalidConfiguration},
		{"notify duplicate actions", KindNotify, `{"message":"m","actions":[{"id":"ok","label":"OK"},{"id":"ok","label":"Yes"}]}`, device.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := Decode(tt.kind, []byte(tt.body))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				if cmd.Kind() != tt.kind {
					t.Errorf("Kind() = %q, want %q", cmd.Kind(), tt.kind)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if cmd != nil {
				t.Errorf("Decode() returned a command alongside an error")
			}
		})
	}
}

func TestDecode_DeviceID(t *testing.T) {
	_, id, err := Decode(KindQuickbarToggle, []byte(`{"device_id":" tv-1 ","alias":"x"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if id != "tv-1" {
		t.Errorf("device id = %q, want tv-1", id)
	}

	_, id, _ = Decode(KindQuickbarToggle, []byte(`{"alias":"x"}`))
	if id != "" {
		t.Errorf("device id = %q, want empty for broadcast", id)
	}
}

func TestNewCameraToggle_Normalization(t *testing.T) {
	tests := []struct {
		autoHide int
		want     int
	}{
		{0, 0},
		{1, 5},
		{4, 5},
		{5, 5},
		{300, 300},
	}
	for _, tt := range tests {
		ct, err := NewCameraToggle(CameraToggleRequest{CameraAlias: Some("door"), AutoHide: Some(tt.autoHide)})
		if err != nil {
			t.Fatalf("NewCameraToggle(auto_hide=%d) error = %v", tt.autoHide, err)
		}
		if got, _ := ct.AutoHide().Get(); got != tt.want {
			t.Errorf("auto_hide %d normalized to %d, want %d", tt.autoHide, got, tt.want)
		}
	}

	ct, err := NewCameraToggle(CameraToggleRequest{
		CameraAlias:  Some("door"),
		CameraEntity: Some("camera.door"),
		RTSPURL:      Some("rtsps://cam.local:322/stream"),
	})
	if err != nil {
		t.Fatalf("NewCameraToggle() error = %v", err)
	}
	if ct.Source().Kind() != SourceRTSP {
		t.Errorf("Source().Kind() = %v, want SourceRTSP", ct.Source().Kind())
	}
	if ct.Size().IsSet() || ct.Position().IsSet() || ct.ShowTitle().IsSet() {
		t.Error("unset fields were filled")
	}
}

func TestNewNotify_Normalization(t *testing.T) {
	tests := []struct {
		name      string
		req       NotifyRequest
		wantLen   Optional[int]
		wantColor Optional[string]
	}{
		{name: "nothing set", req: NotifyRequest{Message: "m"}},
		{name: "length clamped low", req: NotifyRequest{Message: "m", Length: Some(1)}, wantLen: Some(3)},
		{name: "length clamped high", req: NotifyRequest{Message: "m", Length: Some(600)}, wantLen: Some(120)},
		{name: "length kept", req: NotifyRequest{Message: "m", Length: Some(10)}, wantLen: Some(10)},
		{name: "color carried", req: NotifyRequest{Message: "m", Color: Some(Color{value: "#112233"})}, wantColor: Some("#112233")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNotify(tt.req)
			if err != nil {
				t.Fatalf("NewNotify() error = %v", err)
			}
			if n.Length() != tt.wantLen {
				t.Errorf("Length() = %+v, want %+v", n.Length(), tt.wantLen)
			}
			if n.Color() != tt.wantColor {
				t.Errorf("Color() = %+v, want %+v", n.Color(), tt.wantColor)
			}
			if n.CID() == "" {
				t.Error("CID() is empty, want a generated id")
			}
		})
	}

	n, err := NewNotify(NotifyRequest{Message: "m", CID: Some("door-42")})
	if err != nil {
		t.Fatalf("NewNotify() error = %v", err)
	}
	if n.CID() != "door-42" {
		t.Errorf("CID() = %q, want the supplied door-42", n.CID())
	}
}

func TestColor_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"#FF8800"`, "#ff8800"},
		{`"ff8800"`, "#ff8800"},
		{`"#f80"`, "#ff8800"},
		{`[255, 136, 0]`, "#ff8800"},
		{`[300, -5, 16]`, "#ff0010"},
		{`{"r": 0, "g": 128, "b": 255}`, "#0080ff"},
		{`" red "`, "red"},
		{`"rgb(255, 0, 0)"`, "rgb(255, 0, 0)"},
		{`"#ff88"`, "#ff88"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c Color
			if err := c.UnmarshalJSON([]byte(tt.in)); err != nil {
				t.Fatalf("UnmarshalJSON() error = %v", err)
			}
			if c.Value() != tt.want {
				t.Errorf("Value() = %q, want %q", c.Value(), tt.want)
			}
		})
	}
}
