package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Message{
		Kind: KindCellUpdate,
		Pos:  Int(0),
		Val:  Int(0),
	}
	require.NoError(t, Encode(&buf, in))
	require.True(t, strings.HasSuffix(buf.String(), "\n"), "line must be newline-terminated")

	out, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, KindCellUpdate, out.Kind)
	// 0 is a legal position and a legal (erased) value, both must survive.
	require.NotNil(t, out.Pos)
	require.NotNil(t, out.Val)
	assert.Equal(t, 0, *out.Pos)
	assert.Equal(t, 0, *out.Val)
}

func TestDecodeKindZero(t *testing.T) {
	// Chat is kind 0; a present-but-zero discriminator is not a missing one.
	msg, err := Decode([]byte(`{"message":0,"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, KindChat, msg.Kind)
	assert.Equal(t, "hi", msg.Text)
}

func TestDecodeRejectsKindlessLines(t *testing.T) {
	cases := []string{
		`{"text":"no kind here"}`,
		`{}`,
		`not json at all`,
		``,
		`[1,2,3]`,
	}
	for _, line := range cases {
		_, err := Decode([]byte(line))
		assert.Error(t, err, "line %q should not decode", line)
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Message{Kind: KindDisconnectOK}))
	assert.Equal(t, `{"message":3}`, strings.TrimSpace(buf.String()))
}

func TestNegativeFocusPosition(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Message{Kind: KindFocus, ID: 2, Pos: Int(-1)}))
	out, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.NotNil(t, out.Pos)
	assert.Equal(t, -1, *out.Pos)
	assert.Equal(t, 2, out.ID)
}

func TestStatusChanges(t *testing.T) {
	var buf bytes.Buffer
	in := &Message{
		Kind: KindStatus,
		Changes: []StatusChange{
			{Name: "Alice", Count: 12, Done: false},
			{Name: "Team red: Bob, Carol", Count: 3, Done: true},
		},
		CountTotal: 51,
	}
	require.NoError(t, Encode(&buf, in))
	out, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, in.Changes, out.Changes)
	assert.Equal(t, 51, out.CountTotal)
}
