package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_OneJSONObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := Open(path)
	require.NoError(t, err)
	sink.now = func() time.Time { return time.UnixMilli(1700000000000).UTC() }

	require.NoError(t, sink.Record(Event{
		Action: "login",
		IP:     "10.0.0.1",
		Fields: map[string]any{"user": "alice", "success": true},
	}))
	require.NoError(t, sink.Record(Event{
		Action: "trash",
		IP:     "10.0.0.1",
		Fields: map[string]any{"path": "/notes.txt"},
	}))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		lines = append(lines, obj)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	assert.Equal(t, "login", lines[0]["action"])
	assert.Equal(t, "alice", lines[0]["user"])
	assert.Equal(t, "10.0.0.1", lines[0]["ip"])
	assert.NotEmpty(t, lines[0]["ts"])
	assert.Equal(t, "/notes.txt", lines[1]["path"])
}

func TestRecord_FixedKeysWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, sink.Record(Event{
		Action: "list",
		IP:     "real",
		Fields: map[string]any{"ip": "spoofed", "action": "other"},
	}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "list", obj["action"])
	assert.Equal(t, "real", obj["ip"])
}

func TestRecord_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Record(Event{Action: "list", IP: "127.0.0.1"})
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj), "interleaved write corrupted a line")
		count++
	}
	assert.Equal(t, 20, count)
}

func TestAppendAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	sink, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, sink.Record(Event{Action: "one"}))
	require.NoError(t, sink.Close())

	sink, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, sink.Record(Event{Action: "two"}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"one"`)
	assert.Contains(t, string(data), `"two"`)
}
