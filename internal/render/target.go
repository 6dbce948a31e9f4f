package render

import (
	"encoding/json"
	"fmt"

	"renderhub/internal/pkg/errors"
)

// Kind names a target variant. It is also the first component of the job
// dedup key.
type Kind string

const (
	KindUser Kind = "user"
	KindItem Kind = "item"
)

// Target is a snapshot of the entity being rendered, taken at enqueue time.
// Implementations are UserTarget and ItemTarget.
type Target interface {
	Kind() Kind
	ID() int64
	isTarget()
}

type BodyPart string

const (
	Head     BodyPart = "head"
	Torso    BodyPart = "torso"
	LeftLeg  BodyPart = "left_leg"
	RightLeg BodyPart = "right_leg"
	LeftArm  BodyPart = "left_arm"
	RightArm BodyPart = "right_arm"
)

type ItemSlot string

const (
	SlotFace   ItemSlot = "face"
	SlotTool   ItemSlot = "tool"
	SlotShirt  ItemSlot = "shirt"
	SlotPants  ItemSlot = "pants"
	SlotTShirt ItemSlot = "tshirt"
)

// Avatar is what a user is wearing. Missing colors fall back to
// DefaultBodyColor; zero or missing items render as "none".
type Avatar struct {
	Colors map[BodyPart]string `json:"colors,omitempty"`
	Items  map[ItemSlot]int64  `json:"items,omitempty"`
	Hats   []int64             `json:"hats,omitempty"`
}

type UserTarget struct {
	UserID int64   `json:"id"`
	Avatar *Avatar `json:"avatar,omitempty"`
}

func (UserTarget) Kind() Kind { return KindUser }
func (u UserTarget) ID() int64 { return u.UserID }
func (UserTarget) isTarget() {}

type ItemTarget struct {
	ItemID   int64  `json:"id"`
	ItemType string `json:"item_type"`
}

func (ItemTarget) Kind() Kind { return KindItem }
func (i ItemTarget) ID() int64 { return i.ItemID }
func (ItemTarget) isTarget() {}

// envelope is the JSON form of a Target: {"kind":"item","item":{...}}.
type envelope struct {
	Kind Kind        `json:"kind"`
	User *UserTarget `json:"user,omitempty"`
	Item *ItemTarget `json:"item,omitempty"`
}

// EncodeTarget serializes t for the job transport.
func EncodeTarget(t Target) ([]byte, error) {
	var env envelope
	switch v := t.(type) {
	case UserTarget:
		env = envelope{Kind: KindUser, User: &v}
	case *UserTarget:
		if v == nil {
			return nil, unsupported(t)
		}
		env = envelope{Kind: KindUser, User: v}
	case ItemTarget:
		env = envelope{Kind: KindItem, Item: &v}
	case *ItemTarget:
		if v == nil {
			return nil, unsupported(t)
		}
		env = envelope{Kind: KindItem, Item: v}
	default:
		return nil, unsupported(t)
	}
	return json.Marshal(env)
}

// DecodeTarget is the inverse of EncodeTarget. Unknown kinds or a kind
// without its body yield an UNSUPPORTED_TARGET error.
func DecodeTarget(data []byte) (Target, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "render.decode_target", "invalid target json")
	}
	switch {
	case env.Kind == KindUser && env.User != nil:
		return *env.User, nil
	case env.Kind == KindItem && env.Item != nil:
		return *env.Item, nil
	}
	return nil, errors.New(errors.CodeUnsupportedTarget, "unsupported render target").
		WithField("kind", string(env.Kind))
}

// DedupKey identifies one (target, thumbnail type) pair, e.g. "item:42:item_icon".
func DedupKey(t Target, thumbType string) string {
	return fmt.Sprintf("%s:%d:%s", t.Kind(), t.ID(), thumbType)
}

func unsupported(t Target) *errors.Error {
	return errors.New(errors.CodeUnsupportedTarget, "unsupported render target").
		WithField("target_type", fmt.Sprintf("%T", t))
}
