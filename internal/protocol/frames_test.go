package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Notification
		wantErr error
	}{
		{
			name: "duel request",
			in:   `{"type":"duel_request","duelId":"42","requesterId":"4","requesterName":"Ana"}`,
			want: DuelRequest{DuelID: "42", RequesterID: "4", RequesterName: "Ana"},
		},
		{
			name: "welcome",
			in:   `{"type":"welcome","message":"hi"}`,
			want: Welcome{Message: "hi"},
		},
		{
			name:    "duel request without id",
			in:      `{"type":"duel_request","requesterId":"4"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown kind",
			in:      `{"type":"ranking_update"}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "not json",
			in:      `{"type":`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing type",
			in:      `{"duelId":"1"}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeNotification([]byte(tc.in))
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "want %v, got %v", tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeServerFrame(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    ServerFrame
		wantErr error
	}{
		{
			name: "question",
			in:   `{"type":"question","data":{"id":"q1","text":"2+2?","options":["3","4","5"]}}`,
			want: Question{Data: QuestionData{ID: "q1", Text: "2+2?", Options: []string{"3", "4", "5"}}},
		},
		{
			name: "question with server limits",
			in:   `{"type":"question","data":{"id":"q2","text":"?","options":["a"],"total":8,"timeLimit":15}}`,
			want: Question{Data: QuestionData{ID: "q2", Text: "?", Options: []string{"a"}, Total: 8, TimeLimit: 15}},
		},
		{
			name: "opponent progress",
			in:   `{"type":"opponent_progress","progress":3,"playerId":"7"}`,
			want: OpponentProgress{Progress: 3, PlayerID: "7"},
		},
		{
			name: "opponent progress zero",
			in:   `{"type":"opponent_progress","progress":0}`,
			want: OpponentProgress{Progress: 0},
		},
		{
			name: "server error",
			in:   `{"type":"error","message":"duel not found"}`,
			want: ServerError{Message: "duel not found"},
		},
		{
			name:    "question without options",
			in:      `{"type":"question","data":{"id":"q1","text":"?","options":[]}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "question without data",
			in:      `{"type":"question"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "progress missing",
			in:      `{"type":"opponent_progress"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "notification kind on duel socket",
			in:      `{"type":"welcome"}`,
			wantErr: ErrUnknownType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeServerFrame([]byte(tc.in))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeAnswer_WireShape(t *testing.T) {
	payload, err := Encode(Answer{QuestionID: "q1", Answer: "4"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, map[string]any{"type": "answer", "questionId": "q1", "answer": "4"}, got)

	back, err := DecodeAnswer(payload)
	require.NoError(t, err)
	assert.Equal(t, Answer{QuestionID: "q1", Answer: "4"}, back)
}

func TestEncodeOpponentProgress_KeepsZero(t *testing.T) {
	payload, err := Encode(OpponentProgress{Progress: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"opponent_progress","progress":0}`, string(payload))
}

func TestDecodeAnswer_Rejects(t *testing.T) {
	_, err := DecodeAnswer([]byte(`{"type":"answer","answer":"4"}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeAnswer([]byte(`{"type":"question"}`))
	require.ErrorIs(t, err, ErrUnknownType)
}
