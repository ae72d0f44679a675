package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestLink(t *testing.T) {
	tests := []struct {
		name     string
		paperID  string
		fallback string
		expected string
	}{
		{
			name:     "doi identifier",
			paperID:  "doi:10.1038/s41586-025-0001-2",
			expected: "https://doi.org/10.1038/s41586-025-0001-2",
		},
		{
			name:     "arxiv identifier",
			paperID:  "arxiv:2501.01234",
			expected: "https://arxiv.org/abs/2501.01234",
		},
		{
			name:     "pubmed identifier",
			paperID:  "pmid:38012345",
			expected: "https://pubmed.ncbi.nlm.nih.gov/38012345/",
		},
		{
			name:     "opaque identifier falls back",
			paperID:  "sha1:abc123",
			fallback: "https://example.org/paper",
			expected: "https://example.org/paper",
		},
		{
			name:     "opaque identifier with no fallback",
			paperID:  "whatever",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BestLink(tt.paperID, tt.fallback))
		})
	}
}

func TestJobStatus_CanAccept(t *testing.T) {
	assert.True(t, JobStatusIdle.CanAccept())
	assert.True(t, JobStatusDone.CanAccept())
	assert.True(t, JobStatusError.CanAccept())
	assert.False(t, JobStatusRunning.CanAccept())
}

func TestReport_IsEmpty(t *testing.T) {
	assert.True(t, Report{}.IsEmpty())
	assert.False(t, Report{Summary: "s"}.IsEmpty())
	assert.False(t, Report{Scores: &ScoreCard{}}.IsEmpty())
	assert.False(t, Report{Extra: map[string]json.RawMessage{"x": json.RawMessage(`1`)}}.IsEmpty())
}

func TestReport_JSONRoundTripPreservesUnknownFields(t *testing.T) {
	raw := `{
		"summary": "short take",
		"main_conclusion": "it works",
		"tags": ["nlp", "retrieval"],
		"legacy_notes": {"author": "ops", "pinned": true},
		"custom_rank": 7
	}`

	var r Report
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, "short take", r.Summary)
	assert.Equal(t, "it works", r.MainConclusion)
	assert.Equal(t, []string{"nlp", "retrieval"}, r.Tags)
	require.Contains(t, r.Extra, "legacy_notes")
	require.Contains(t, r.Extra, "custom_rank")

	out, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `{"author": "ops", "pinned": true}`, string(decoded["legacy_notes"]))
	assert.Equal(t, "7", string(decoded["custom_rank"]))
	assert.JSONEq(t, `"short take"`, string(decoded["summary"]))
}

func TestReport_UnmarshalMalformed(t *testing.T) {
	var r Report
	err := json.Unmarshal([]byte(`{"summary": `), &r)
	assert.Error(t, err)
}

func TestErrorWrapping(t *testing.T) {
	nf := NewNotFoundError("run", "2026-02-14")
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.Contains(t, nf.Error(), "run not found")

	ve := NewValidationError("date", "must be YYYY-MM-DD")
	assert.True(t, errors.Is(ve, ErrInvalidInput))

	var target *NotFoundError
	assert.True(t, errors.As(error(nf), &target))
}

func TestExternalAPIError_IsTransient(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := NewExternalAPIError("openai", tt.status, "boom", nil)
		assert.Equal(t, tt.transient, err.IsTransient(), "status %d", tt.status)
	}
}
