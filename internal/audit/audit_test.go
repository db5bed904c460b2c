package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-wm/tessera/internal/wire"
	"github.com/tessera-wm/tessera/internal/windowsystem"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Append(Record{Kind: KindPluginFault, Detail: "boom"}))

	records, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestTailReturnsNewestFirst(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Append(Record{Kind: KindPluginFault, Detail: "first"}))
	require.NoError(t, l.Append(Record{Kind: KindPluginFault, Detail: "second"}))
	require.NoError(t, l.Append(Record{Kind: KindPluginFault, Detail: "third"}))

	records, err := l.Tail(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Detail)
	assert.Equal(t, "second", records[1].Detail)
}

func TestRecordCommandSubscribe(t *testing.T) {
	l := newTestLog(t)
	cmd := windowsystem.SubscribeCommand(wire.WindowAddSub())
	require.NoError(t, l.RecordCommand(cmd))

	records, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindSubscribe, records[0].Kind)
}

func TestRecordCommandConfigureWindow(t *testing.T) {
	l := newTestLog(t)
	cmd := windowsystem.Command{Kind: windowsystem.CommandConfigureWindow, WindowID: 42}
	require.NoError(t, l.RecordCommand(cmd))

	records, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindConfigureWindow, records[0].Kind)
	assert.Contains(t, records[0].Detail, "42")
}

func TestRecordPluginFault(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.RecordPluginFault("bad-plugin", "handle trapped"))

	records, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bad-plugin", records[0].PluginID)
}

func TestExplicitTimestampIsPreserved(t *testing.T) {
	l := newTestLog(t)
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(Record{Kind: KindPluginFault, Timestamp: ts}))

	records, err := l.Tail(1)
	require.NoError(t, err)
	assert.True(t, ts.Equal(records[0].Timestamp))
}
