package worker

import (
	"encoding/json"
	"time"

	"renderhub/internal/pkg/errors"
	"renderhub/internal/render"
	"renderhub/internal/thumbnail"
)

// Job is one render request travelling through the queue. Exactly one copy
// exists in the transport at any time, so its attempts run sequentially.
type Job struct {
	ID         string
	Target     render.Target
	Type       thumbnail.Type
	EnqueuedAt time.Time
	// Attempt counts renderer calls made so far.
	Attempt int
	// LockToken owns the uniqueness lock; empty when the lock could not be
	// taken.
	LockToken string
}

type jobWire struct {
	ID         string          `json:"id"`
	Target     json.RawMessage `json:"target"`
	Type       thumbnail.Type  `json:"type"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempt    int             `json:"attempt"`
	LockToken  string          `json:"lock_token,omitempty"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	target, err := render.EncodeTarget(j.Target)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobWire{
		ID:         j.ID,
		Target:     target,
		Type:       j.Type,
		EnqueuedAt: j.EnqueuedAt,
		Attempt:    j.Attempt,
		LockToken:  j.LockToken,
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "job.decode", "invalid job payload")
	}
	typ, err := thumbnail.ParseType(string(w.Type))
	if err != nil {
		return err
	}
	target, err := render.DecodeTarget(w.Target)
	if err != nil {
		return err
	}
	*j = Job{
		ID:         w.ID,
		Target:     target,
		Type:       typ,
		EnqueuedAt: w.EnqueuedAt,
		Attempt:    w.Attempt,
		LockToken:  w.LockToken,
	}
	return nil
}

// DedupKey is "kind:id:type".
func (j Job) DedupKey() string {
	return render.DedupKey(j.Target, string(j.Type))
}

func (j Job) Ref() thumbnail.TargetRef {
	return thumbnail.TargetRef{Kind: string(j.Target.Kind()), ID: j.Target.ID()}
}
