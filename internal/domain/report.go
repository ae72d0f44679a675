package domain

import (
	"encoding/json"
	"fmt"
)

// Report is the structured analysis attached to a paper. An all-zero Report
// is a valid state meaning "no report generated yet", not an error.
//
// Stored report JSON may carry fields written by other tools or by earlier
// schema revisions; those are preserved in Extra and round-tripped verbatim
// on marshal so the archive never drops data it does not understand.
type Report struct {
	Summary         string     `json:"-"`
	MainConclusion  string     `json:"-"`
	MethodsDetailed string     `json:"-"`
	FutureDirection string     `json:"-"`
	ValueAssessment string     `json:"-"`
	Document        string     `json:"-"`
	Tags            []string   `json:"-"`
	Scores          *ScoreCard `json:"-"`
	Degraded        bool       `json:"-"`

	// Extra holds unrecognized fields from stored JSON, keyed by their
	// original names.
	Extra map[string]json.RawMessage `json:"-"`
}

// IsEmpty reports whether the report carries no analysis at all.
func (r Report) IsEmpty() bool {
	return r.Summary == "" && r.MainConclusion == "" && r.MethodsDetailed == "" &&
		r.FutureDirection == "" && r.ValueAssessment == "" && r.Document == "" &&
		len(r.Tags) == 0 && r.Scores == nil && len(r.Extra) == 0
}

// reportWire mirrors Report's persisted field names.
type reportWire struct {
	Summary         string     `json:"summary,omitempty"`
	MainConclusion  string     `json:"main_conclusion,omitempty"`
	MethodsDetailed string     `json:"methods_detailed,omitempty"`
	FutureDirection string     `json:"future_direction,omitempty"`
	ValueAssessment string     `json:"value_assessment,omitempty"`
	Document        string     `json:"document,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Scores          *ScoreCard `json:"scores,omitempty"`
	Degraded        bool       `json:"degraded,omitempty"`
}

var reportKnownKeys = map[string]struct{}{
	"summary": {}, "main_conclusion": {}, "methods_detailed": {},
	"future_direction": {}, "value_assessment": {}, "document": {},
	"tags": {}, "scores": {}, "degraded": {},
}

// MarshalJSON serializes the known fields and merges Extra back in. Known
// fields win over a colliding Extra key.
func (r Report) MarshalJSON() ([]byte, error) {
	wire := reportWire{
		Summary:         r.Summary,
		MainConclusion:  r.MainConclusion,
		MethodsDetailed: r.MethodsDetailed,
		FutureDirection: r.FutureDirection,
		ValueAssessment: r.ValueAssessment,
		Document:        r.Document,
		Tags:            r.Tags,
		Scores:          r.Scores,
		Degraded:        r.Degraded,
	}
	if len(r.Extra) == 0 {
		return json.Marshal(wire)
	}
	known, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(r.Extra)+len(reportKnownKeys))
	for k, v := range r.Extra {
		if _, ok := reportKnownKeys[k]; !ok {
			merged[k] = v
		}
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// UnmarshalJSON fills the known fields and stashes everything else in Extra.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("report json: %w", err)
	}
	var wire reportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("report json: %w", err)
	}
	*r = Report{
		Summary:         wire.Summary,
		MainConclusion:  wire.MainConclusion,
		MethodsDetailed: wire.MethodsDetailed,
		FutureDirection: wire.FutureDirection,
		ValueAssessment: wire.ValueAssessment,
		Document:        wire.Document,
		Tags:            wire.Tags,
		Scores:          wire.Scores,
		Degraded:        wire.Degraded,
	}
	for k, v := range raw {
		if _, ok := reportKnownKeys[k]; ok {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}
