package render

import (
	"net/url"
	"strconv"

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
)

// DefaultBodyColor is used for any body part the avatar leaves unset.
const DefaultBodyColor = "f3b700"

// Sentinels for errors.Is. BuildParams returns fresh errors carrying the
// same codes.
var (
	ErrNoAvatar          = errors.New(errors.CodeNoAvatar, "user has no avatar")
	ErrUnsupportedTarget = errors.New(errors.CodeUnsupportedTarget, "unsupported render target")
)

// Params is the renderer query for one attempt.
type Params map[string]string

func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

var colorParams = []struct {
	part  BodyPart
	param string
}{
	{Head, contract.ParamHeadColor},
	{Torso, contract.ParamTorsoColor},
	{LeftLeg, contract.ParamLeftLegColor},
	{RightLeg, contract.ParamRightLegColor},
	{LeftArm, contract.ParamLeftArmColor},
	{RightArm, contract.ParamRightArmColor},
}

var slotParams = []struct {
	slot  ItemSlot
	param string
}{
	{SlotFace, contract.ParamFace},
	{SlotTool, contract.ParamTool},
	{SlotShirt, contract.ParamShirt},
	{SlotPants, contract.ParamPants},
	{SlotTShirt, contract.ParamTShirt},
}

// BuildParams maps a target and the attempt's fresh UUID to renderer
// parameters. It has no side effects.
func BuildParams(target Target, newUUID string) (Params, error) {
	switch t := target.(type) {
	case UserTarget:
		return userParams(t, newUUID)
	case *UserTarget:
		if t == nil {
			return nil, unsupported(target)
		}
		return userParams(*t, newUUID)
	case ItemTarget:
		return itemParams(t, newUUID), nil
	case *ItemTarget:
		if t == nil {
			return nil, unsupported(target)
		}
		return itemParams(*t, newUUID), nil
	default:
		return nil, unsupported(target)
	}
}

func userParams(u UserTarget, newUUID string) (Params, error) {
	if u.Avatar == nil {
		return nil, errors.New(errors.CodeNoAvatar, "user has no avatar").WithField("user_id", u.UserID)
	}
	a := u.Avatar

	p := Params{
		contract.ParamRenderType: contract.RenderTypeUser,
		contract.ParamHash:       newUUID,
	}
	for _, c := range colorParams {
		color := a.Colors[c.part]
		if color == "" {
			color = DefaultBodyColor
		}
		p[c.param] = color
	}
	for _, s := range slotParams {
		p[s.param] = slotValue(a.Items[s.slot])
	}
	for i := 0; i < contract.HatSlots; i++ {
		var id int64
		if i < len(a.Hats) {
			id = a.Hats[i]
		}
		p[contract.ParamHatPrefix+strconv.Itoa(i+1)] = slotValue(id)
	}
	return p, nil
}

func itemParams(i ItemTarget, newUUID string) Params {
	return Params{
		contract.ParamRenderType: contract.RenderTypeItem,
		contract.ParamItem:       strconv.FormatInt(i.ItemID, 10),
		contract.ParamItemHash:   newUUID,
		contract.ParamItemType:   i.ItemType,
	}
}

func slotValue(id int64) string {
	if id == 0 {
		return contract.None
	}
	return strconv.FormatInt(id, 10)
}
