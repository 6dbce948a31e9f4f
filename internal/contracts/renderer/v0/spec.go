// Package v0 is the wire contract of the external avatar/item renderer.
//
// The renderer answers GET requests with the parameters in the query string
// (persistent thumbnails) and POST requests with a JSON body (item previews).
// Either way it writes the PNG to the shared store and replies 2xx with no
// useful body.
package v0

// AccessKeyHeader carries the shared secret on every call.
const AccessKeyHeader = "Aeo-Access-Key"

const (
	RenderTypeUser = "user"
	RenderTypeItem = "item"
)

// Query parameter names.
const (
	ParamRenderType = "RenderType"
	ParamHash       = "hash"
	ParamItem       = "item"
	ParamItemHash   = "itemhash"
	ParamItemType   = "itemtype"

	ParamHeadColor     = "head_color"
	ParamTorsoColor    = "torso_color"
	ParamLeftLegColor  = "leftLeg_color"
	ParamRightLegColor = "rightLeg_color"
	ParamLeftArmColor  = "leftArm_color"
	ParamRightArmColor = "rightArm_color"

	ParamFace   = "face"
	ParamTool   = "tool"
	ParamShirt  = "shirt"
	ParamPants  = "pants"
	ParamTShirt = "tshirt"

	// ParamHatPrefix is followed by 1..HatSlots.
	ParamHatPrefix = "hat_"
)

const HatSlots = 6

// None marks an empty avatar slot.
const None = "none"

// PreviewBody is the POST body of a preview render. Item holds the preview
// session hash; the renderer reads uploads/{Item}.png and uploads/{Item}.obj
// and writes thumbnails/{Item}.png.
type PreviewBody struct {
	RenderType string `json:"RenderType"`
	Item       string `json:"item"`
	ItemType   string `json:"itemtype"`
}

// Item slot types the renderer knows how to place.
var itemTypes = map[string]struct{}{
	"face":   {},
	"hat":    {},
	"tool":   {},
	"shirt":  {},
	"tshirt": {},
	"pants":  {},
}

func ValidItemType(t string) bool {
	_, ok := itemTypes[t]
	return ok
}

// Shared store layout.
const (
	UploadsPrefix    = "uploads/"
	ThumbnailsPrefix = "thumbnails/"
)

func TextureKey(hash string) string   { return UploadsPrefix + hash + ".png" }
func MeshKey(hash string) string      { return UploadsPrefix + hash + ".obj" }
func ThumbnailKey(hash string) string { return ThumbnailsPrefix + hash + ".png" }
