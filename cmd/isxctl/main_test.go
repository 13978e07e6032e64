package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/isxgo/internal/app"
	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/normalize"
	"github.com/skobkin/isxgo/internal/notifications"
	"github.com/skobkin/isxgo/internal/platform"
	"github.com/skobkin/isxgo/internal/protocol"
	"github.com/skobkin/isxgo/internal/transport"
	"github.com/skobkin/isxgo/internal/transport/transporttest"
)

const testPort = "/dev/ttyACM0"

// analyzer acknowledges every command and emits spectra*points results on start.
func analyzer(points int) transporttest.Responder {
	return func(written []byte) []byte {
		cmd, err := protocol.DecodeCommand(written)
		if err != nil {
			return []byte{0x18, 0x01, 0x82, 0x18}
		}

		switch c := cmd.(type) {
		case protocol.MeasurementStart:
			var out []byte
			for i := 0; i < int(c.Spectra)*points; i++ {
				frame := protocol.EncodeMeasurementResult(protocol.MeasurementResult{
					FrequencyID: uint16(i % points),
					Real:        float32(i),
					Imaginary:   0.5,
				})
				out = append(out, frame[:]...)
			}
			return out
		case protocol.SoftwareReset:
			return []byte{0x18, 0x01, 0x04, 0x18}
		default:
			return []byte{0x18, 0x01, 0x83, 0x18}
		}
	}
}

type recordingSender struct {
	sent []notifications.Payload
}

func (s *recordingSender) Send(p notifications.Payload) { s.sent = append(s.sent, p) }

type harness struct {
	dir    string
	cfg    string
	port   *transporttest.Port
	opener *transporttest.Opener
	sender *recordingSender
}

func newHarness(t *testing.T, points int) *harness {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))

	cfg := config.Default()
	cfg.Measurement.CaptureTimeout = 2 * time.Second
	cfg.Measurement.SettleDelay = 0
	cfg.Logging.Level = "error"
	cfg.Output.SQLitePath = filepath.Join(dir, "runs.db")
	cfgPath := filepath.Join(dir, "isx3.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	port := transporttest.NewPort(analyzer(points))
	return &harness{
		dir:  dir,
		cfg:  cfgPath,
		port: port,
		opener: &transporttest.Opener{
			Known: []transport.PortInfo{
				{Name: testPort, IsUSB: true, VID: "0483", PID: "5740", SerialNumber: "ISX3-17", Product: "ISX-3"},
				{Name: "/dev/ttyS0"},
			},
			Port: port,
		},
		sender: &recordingSender{},
	}
}

func (h *harness) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd(deps{
		newOpener:   func(config.ConnectionConfig) transport.Opener { return h.opener },
		newNotifier: func(*slog.Logger) notifications.Sender { return h.sender },
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", h.cfg}, args...))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t, 1)

	out, err := h.exec(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "isxgo "), out)
}

func TestPortsCommand(t *testing.T) {
	h := newHarness(t, 1)

	out, err := h.exec(t, "ports")
	require.NoError(t, err)
	assert.Contains(t, out, "0483:5740")
	assert.Contains(t, out, "ISX3-17")
	assert.Regexp(t, regexp.MustCompile(`/dev/ttyS0\s+no\s+-`), out)
}

func TestDeviceCommandsRequirePort(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.exec(t, "reset")
	require.ErrorContains(t, err, "--port")
}

func TestFrontendCommand(t *testing.T) {
	h := newHarness(t, 1)

	out, err := h.exec(t, "--port", testPort, "frontend", "--points", "2", "--channel", "Port 1")
	require.NoError(t, err)
	assert.Contains(t, out, "frame: B0")
	assert.Contains(t, out, "ack:")
	assert.NotContains(t, out, "warning:")

	writes := h.port.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0xB0, 0x03, 0xFF, 0xFF, 0xFF, 0xB0}, writes[0])
	assert.True(t, h.port.Closed())
}

func TestFrontendCommandReportsWarnings(t *testing.T) {
	h := newHarness(t, 1)

	out, err := h.exec(t, "--port", testPort, "frontend", "--current-range", "3A")
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
}

func TestRunCommandExportsEverywhere(t *testing.T) {
	h := newHarness(t, 4)
	csvPath := filepath.Join(h.dir, "sweep.csv")

	out, err := h.exec(t, "--port", testPort, "run", "--count", "4", "--spectra", "2", "--csv", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "results:  8 of 8")
	assert.NotContains(t, out, "timed out")

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 9, strings.Count(string(raw), "\n"))

	out, err = h.exec(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, testPort)
	assert.Contains(t, out, "8/8")

	id := regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f-]{27}`).FindString(out)
	require.NotEmpty(t, id)
	out, err = h.exec(t, "runs", "show", id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Frequency ID,Real Part,Imaginary Part\n0,0,0.5\n"), out)

	_, err = h.exec(t, "runs", "clear")
	require.NoError(t, err)
	out, err = h.exec(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs stored")
}

func TestMeasureCommandPrintsResults(t *testing.T) {
	h := newHarness(t, 2)

	out, err := h.exec(t, "--port", testPort, "measure", "--count", "2", "-n", "1", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "results:  2 of 2")
	assert.Contains(t, out, "Frequency ID,Real Part,Imaginary Part\n0,0,0.5\n1,1,0.5\n")

	for _, w := range h.port.Writes() {
		assert.NotEqual(t, byte(protocol.FamilyFrontendSettings), w[0], "measure must not touch the frontend")
	}
	assert.Empty(t, h.sender.sent)
}

func TestRunCommandNotifies(t *testing.T) {
	h := newHarness(t, 1)
	cfg, err := config.Load(h.cfg)
	require.NoError(t, err)
	cfg.Output.Notify = true
	require.NoError(t, config.Save(h.cfg, cfg))

	_, err = h.exec(t, "--port", testPort, "run", "--count", "1", "-n", "1")
	require.NoError(t, err)
	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "1 of 1 results received", h.sender.sent[0].Content)
}

func TestResetAndStatusCommands(t *testing.T) {
	h := newHarness(t, 1)

	out, err := h.exec(t, "--port", testPort, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "0x04")
	assert.Equal(t, []byte{0xA1, 0x00, 0xA1}, h.port.Writes()[0])

	h.opener.Port = transporttest.NewPort(nil)
	out, err = h.exec(t, "--port", testPort, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no system message")
}

func TestDeviceCommandsRespectPortLock(t *testing.T) {
	h := newHarness(t, 1)

	lock, err := platform.AcquirePortLock(app.Name, testPort)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Release() })

	_, err = h.exec(t, "--port", testPort, "status")
	require.ErrorIs(t, err, platform.ErrPortBusy)
	assert.Empty(t, h.opener.Opened)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	h := newHarness(t, 1)
	path := filepath.Join(h.dir, "fresh.yaml")

	root := func(args ...string) error {
		r := newRootCmd(deps{})
		r.SetOut(&bytes.Buffer{})
		r.SetArgs(append([]string{"--config", path}, args...))
		return r.ExecuteContext(context.Background())
	}

	require.NoError(t, root("config", "init"))
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.ErrorContains(t, root("config", "init"), "already exists")
	require.NoError(t, root("config", "init", "--force"))
}

func TestFlagExamplesResolve(t *testing.T) {
	root := newRootCmd(deps{})
	lookup := func(cmd, flag string) string {
		t.Helper()
		sub, _, err := root.Find([]string{cmd})
		require.NoError(t, err)
		f := sub.Flags().Lookup(flag)
		require.NotNil(t, f, "%s --%s", cmd, flag)
		return f.Usage
	}

	channels := regexp.MustCompile(`"([^"]+)"`).FindAllStringSubmatch(lookup("frontend", "channel"), -1)
	require.NotEmpty(t, channels)
	for _, m := range channels {
		_, ok := normalize.MeasurementChannel(m[1])
		assert.True(t, ok, "channel %q is not in the channel table", m[1])
	}

	usage := lookup("setup", "scale")
	for name, want := range map[string]byte{"linear": 0x00, "log": 0x01} {
		require.Contains(t, usage, name)
		code, warn := normalize.Scale(name)
		assert.Nil(t, warn)
		assert.Equal(t, want, code, name)
	}
	assert.NotRegexp(t, regexp.MustCompile(`\blin\b`), usage)
}
