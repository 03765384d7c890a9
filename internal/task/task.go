// Package task defines the validated unit of work flowing through the
// pipeline. Raw inbound payloads are parsed and validated exactly once here;
// downstream components only ever see a Task value.
package task

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// maxAttachmentBytes caps a single decoded attachment. Larger blobs are
// dropped rather than failing the whole task.
const maxAttachmentBytes = 8 << 20

// Payload is the raw inbound request body, including the shared secret.
// It mirrors the contract of the submitting evaluation server.
type Payload struct {
	Email         string              `json:"email"`
	Secret        string              `json:"secret"`
	Task          string              `json:"task"`
	Round         int                 `json:"round"`
	Nonce         string              `json:"nonce"`
	Brief         string              `json:"brief"`
	Checks        []string            `json:"checks,omitempty"`
	EvaluationURL string              `json:"evaluation_url"`
	Attachments   []PayloadAttachment `json:"attachments,omitempty"`
}

// PayloadAttachment is an attachment reference as submitted: a name plus a
// data-URI encoded blob.
type PayloadAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Attachment is a decoded attachment ready for model context and persistence.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// IsImage reports whether the attachment can be used as multimodal model input.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIME, "image/")
}

// Task is the validated unit of work. The shared secret is checked at the
// boundary and never carried along.
type Task struct {
	ID            string
	Round         int
	RepoName      string
	Description   string
	Attachments   []Attachment
	CallbackURL   string
	Email         string
	Nonce         string
	Checks        []string
}

// ParsePayload decodes the JSON body of an inbound task request.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ferrors.ValidationError("malformed task payload").WithCause(err).Build()
	}
	return &p, nil
}

// FromPayload validates the payload and builds the Task, decoding attachments.
// Attachments that cannot be decoded or exceed the size cap are dropped, and
// their names returned in the second value for the caller to log.
func FromPayload(p *Payload) (*Task, []string, error) {
	if strings.TrimSpace(p.Task) == "" {
		return nil, nil, ferrors.ValidationError("task id must not be empty").Build()
	}
	if p.Round < 1 {
		return nil, nil, ferrors.ValidationError("round must be a positive integer").
			WithContext("round", p.Round).Build()
	}
	if strings.TrimSpace(p.Brief) == "" {
		return nil, nil, ferrors.ValidationError("brief must not be empty").Build()
	}
	if strings.TrimSpace(p.EvaluationURL) == "" {
		return nil, nil, ferrors.ValidationError("evaluation_url must not be empty").Build()
	}

	t := &Task{
		ID:          p.Task,
		Round:       p.Round,
		RepoName:    RepoNameFor(p.Task),
		Description: p.Brief,
		CallbackURL: p.EvaluationURL,
		Email:       p.Email,
		Nonce:       p.Nonce,
		Checks:      p.Checks,
	}

	var dropped []string
	for _, raw := range p.Attachments {
		att, err := decodeAttachment(raw)
		if err != nil {
			dropped = append(dropped, raw.Name)
			continue
		}
		t.Attachments = append(t.Attachments, att)
	}
	return t, dropped, nil
}

// RepoNameFor derives the stable repository name for a task lineage.
func RepoNameFor(taskID string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(taskID), " ", "-"))
}

// decodeAttachment parses a data URI of the form data:<mime>;base64,<data>.
func decodeAttachment(raw PayloadAttachment) (Attachment, error) {
	if raw.Name == "" {
		return Attachment{}, fmt.Errorf("attachment without name")
	}
	rest, ok := strings.CutPrefix(raw.URL, "data:")
	if !ok {
		return Attachment{}, fmt.Errorf("attachment %s: not a data URI", raw.Name)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return Attachment{}, fmt.Errorf("attachment %s: malformed data URI", raw.Name)
	}
	mime, encoded := meta, false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		mime, encoded = m, true
	}
	if !encoded {
		return Attachment{}, fmt.Errorf("attachment %s: only base64 data URIs are supported", raw.Name)
	}
	blob, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Attachment{}, fmt.Errorf("attachment %s: invalid base64: %w", raw.Name, err)
	}
	if len(blob) > maxAttachmentBytes {
		return Attachment{}, fmt.Errorf("attachment %s: exceeds size cap", raw.Name)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return Attachment{Name: raw.Name, MIME: mime, Data: blob}, nil
}
