package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/hubflow/internal/runtime"
	"github.com/drblury/hubflow/internal/runtime/config"
	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	"github.com/drblury/hubflow/internal/runtime/logging"
	transportpkg "github.com/drblury/hubflow/internal/runtime/transport"
	"github.com/drblury/hubflow/transport"
	"github.com/drblury/hubflow/transport/memory"
)

func sharedHubDeps(hub *memory.Hub) runtime.ServiceDependencies {
	return runtime.ServiceDependencies{
		TransportFactory: transportpkg.FactoryFunc(func(_ context.Context, _ *config.Config, logger watermill.LoggerAdapter) (transport.Client, error) {
			return memory.NewClient(hub, logger), nil
		}),
	}
}

func run(t *testing.T, deps runtime.ServiceDependencies, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(deps)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSendThenListen(t *testing.T) {
	hub := memory.NewHub(memory.WithPartitions(2), memory.WithAutoCreate())
	deps := sharedHubDeps(hub)

	out, err := run(t, deps, "send", "orders",
		"--type", "orders.OrderPlaced",
		"--data", `{"order_id":"o-1"}`,
		"--key", "acme",
		"--header", "tenant=acme",
	)
	require.NoError(t, err)

	var sent sendResult
	require.NoError(t, jsoncodec.Unmarshal([]byte(out), &sent))
	assert.Equal(t, "orders", sent.Address)
	assert.Equal(t, "orders.OrderPlaced", sent.MessageType)
	assert.Equal(t, "acme", sent.PartitionKey)
	assert.NotEmpty(t, sent.ID)

	out, err = run(t, deps, "listen", "eventhub://orders?group=cli", "--limit", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var got map[string]any
	require.NoError(t, jsoncodec.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, sent.ID, got["id"])
	assert.Equal(t, "orders.OrderPlaced", got["message_type"])
	assert.Equal(t, "acme", got["partition_key"])
	assert.Equal(t, map[string]any{"tenant": "acme"}, got["headers"])
	assert.Equal(t, map[string]any{"order_id": "o-1"}, got["data"])
	assert.Equal(t, "eventhub://orders?group=cli&mode=buffered", got["destination"])
}

func TestSendReadsDataFile(t *testing.T) {
	hub := memory.NewHub(memory.WithAutoCreate())
	path := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	_, err := run(t, sharedHubDeps(hub), "send", "notes", "--type", "notes.Added", "--data", "@"+path, "--content-type", "text/plain")
	require.NoError(t, err)

	out, err := run(t, sharedHubDeps(hub), "listen", "notes", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"data":"plain text"`)
	assert.Contains(t, out, `"content_type":"text/plain"`)
}

func TestSendValidation(t *testing.T) {
	deps := sharedHubDeps(memory.NewHub(memory.WithAutoCreate()))

	_, err := run(t, deps, "send", "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"type" not set`)

	_, err = run(t, deps, "send", "orders", "--type", "x", "--header", "novalue")
	assert.ErrorContains(t, err, "invalid --header")

	_, err = run(t, deps, "send", "orders", "--type", "x", "--data", "@/does/not/exist")
	assert.ErrorContains(t, err, "read --data file")

	_, err = run(t, deps, "send", "kafka://orders", "--type", "x")
	assert.ErrorIs(t, err, errspkg.ErrInvalidEndpoint)

	_, err = run(t, deps, "send", "orders", "--type", "x", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestCheckAndSetup(t *testing.T) {
	hub := memory.NewHub()
	deps := sharedHubDeps(hub)

	_, err := run(t, deps, "check", "orders")
	assert.ErrorIs(t, err, errspkg.ErrStreamNotFound)

	out, err := run(t, deps, "setup", "orders", "--environment", "production", "--auto-provision")
	require.NoError(t, err)
	assert.Contains(t, out, "ok eventhub://orders")
	_, err = run(t, deps, "check", "orders")
	assert.ErrorIs(t, err, errspkg.ErrStreamNotFound, "setup is gated outside development")

	_, err = run(t, deps, "setup", "orders", "eventhub://payments?group=billing", "--environment", "dev", "--auto-provision")
	require.NoError(t, err)

	out, err = run(t, deps, "check", "orders", "payments")
	require.NoError(t, err)
	assert.Equal(t, "ok eventhub://orders?group=%24Default&mode=buffered\nok eventhub://payments?group=%24Default&mode=buffered\n", out)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelTrace, level)

	level, err = parseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, "ERROR", level.String())

	_, err = parseLevel("loud")
	assert.Error(t, err)
}
