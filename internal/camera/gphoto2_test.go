package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const listing = `/main/actions/autofocusdrive
Label: Drive Canon DSLR Autofocus
Readonly: 0
Type: TOGGLE
Current: 0
END
/main/imgsettings/imageformat
Label: Image Format
Readonly: 0
Type: RADIO
Current: RAW + Large Fine JPEG
Choice: 0 Large Fine JPEG
Choice: 1 RAW
Choice: 2 RAW + Large Fine JPEG
END
/main/capturesettings/capturesizeclass
Label: Capture Size Class
Readonly: 0
Type: RADIO
Current: Full Image
Choice: 0 Full Image
Choice: 1 Thumbnail
Choice: 2 Compatibility Mode
END
/main/status/serialnumber
Label: Serial Number
Readonly: 1
Type: TEXT
Current: 0123456789
END
`

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output map[string][]byte
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range args {
		if out, ok := f.output[a]; ok {
			return out, nil
		}
	}
	return nil, nil
}

func newTestGPhoto2(t *testing.T, command string) (*GPhoto2, *fakeRunner) {
	t.Helper()
	g, err := NewGPhoto2(command, time.Second)
	require.NoError(t, err)
	f := &fakeRunner{output: map[string][]byte{
		"--list-all-config": []byte(listing),
		"--summary":         []byte("Camera summary:\nManufacturer: Canon Inc.\nModel: Canon EOS 350D\n"),
		"--capture-preview": []byte{0xff, 0xd8, 0xff},
	}}
	g.run = f.run
	return g, f
}

func TestParseConfigListing(t *testing.T) {
	root, err := ParseConfigListing([]byte(listing))
	require.NoError(t, err)

	format, err := root.ChildByName("imageformat")
	require.NoError(t, err)
	require.Equal(t, "Image Format", format.Label)
	require.Equal(t, WidgetRadio, format.Type)
	require.Equal(t, "RAW + Large Fine JPEG", format.Value)
	require.Equal(t, []string{"Large Fine JPEG", "RAW", "RAW + Large Fine JPEG"}, format.Choices)
	require.Equal(t, "/main/imgsettings/imageformat", format.Path())

	serial, err := root.ChildByName("/main/status/serialnumber")
	require.NoError(t, err)
	require.True(t, serial.ReadOnly)

	_, err = root.ChildByName("eosviewfinder")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestParseConfigListingMalformed(t *testing.T) {
	_, err := ParseConfigListing([]byte("/main/x\nnonsense\nEND\n"))
	require.Error(t, err)

	_, err = ParseConfigListing([]byte("/main/x\nChoice: a b\nEND\n"))
	require.Error(t, err)
}

func TestNewGPhoto2SplitsCommand(t *testing.T) {
	g, f := newTestGPhoto2(t, `gphoto2 --port "usb:001,004"`)

	_, err := g.CapturePreview(context.Background())
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	require.Equal(t, "gphoto2", f.calls[0].name)
	require.Equal(t, []string{"--port", "usb:001,004", "--capture-preview", "--stdout"}, f.calls[0].args)
}

func TestNewGPhoto2RejectsBadCommand(t *testing.T) {
	_, err := NewGPhoto2("", time.Second)
	require.Error(t, err)

	_, err = NewGPhoto2(`gphoto2 "unterminated`, time.Second)
	require.Error(t, err)
}

func TestGPhoto2SetConfigWritesChanged(t *testing.T) {
	g, f := newTestGPhoto2(t, "gphoto2")
	ctx := context.Background()

	root, err := g.GetConfig(ctx)
	require.NoError(t, err)

	// nothing changed, nothing run
	require.NoError(t, g.SetConfig(ctx, root))
	require.Len(t, f.calls, 1)

	w, err := root.ChildByName("capturesizeclass")
	require.NoError(t, err)
	v, err := w.Choice(2)
	require.NoError(t, err)
	require.NoError(t, w.SetValue(v))

	require.NoError(t, g.SetConfig(ctx, root))
	require.Len(t, f.calls, 2)
	require.Equal(t, []string{"--set-config", "/main/capturesettings/capturesizeclass=Compatibility Mode"}, f.calls[1].args)
	require.False(t, w.Changed())
}

func TestGPhoto2CaptureError(t *testing.T) {
	g, f := newTestGPhoto2(t, "gphoto2")
	f.err = errors.New("exit status 1")

	_, err := g.CapturePreview(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to capture preview")
}

func TestGPhoto2ClosedAfterExit(t *testing.T) {
	g, f := newTestGPhoto2(t, "gphoto2")
	ctx := context.Background()

	require.NoError(t, g.Init(ctx))
	require.NoError(t, g.Exit(ctx))

	_, err := g.CapturePreview(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, g.Exit(ctx), ErrClosed)
	require.Len(t, f.calls, 1)
}
