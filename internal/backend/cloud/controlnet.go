package cloud

import "github.com/gioelecerati/daydream-ndi-bridge/internal/domain"

type ControlNet struct {
	ModelID            string         `json:"model_id"`
	ConditioningScale  float64        `json:"conditioning_scale"`
	Preprocessor       string         `json:"preprocessor"`
	PreprocessorParams map[string]any `json:"preprocessor_params"`
	Enabled            bool           `json:"enabled"`
}

type controlNetModel struct {
	modelID      string
	preprocessor string
}

type controlNetKind string

const (
	depth controlNetKind = "depth"
	canny controlNetKind = "canny"
	tile  controlNetKind = "tile"
)

var controlNetSupport = map[string]map[controlNetKind]controlNetModel{
	"stabilityai/sdxl-turbo": {
		depth: {"xinsir/controlnet-depth-sdxl-1.0", "depth_tensorrt"},
		canny: {"xinsir/controlnet-canny-sdxl-1.0", "canny"},
		tile:  {"xinsir/controlnet-tile-sdxl-1.0", "feedback"},
	},
	"stabilityai/sd-turbo": {
		depth: {"thibaud/controlnet-sd21-depth-diffusers", "depth_tensorrt"},
		canny: {"thibaud/controlnet-sd21-canny-diffusers", "canny"},
	},
	"Lykon/dreamshaper-8": {
		depth: {"lllyasviel/control_v11f1p_sd15_depth", "depth_tensorrt"},
		canny: {"lllyasviel/control_v11p_sd15_canny", "canny"},
		tile:  {"lllyasviel/control_v11f1e_sd15_tile", "feedback"},
	},
}

// ControlNetsFor lists the ControlNets the model supports in depth, canny,
// tile order. Unless includeZero is set, ones with a zero scale are left out.
func ControlNetsFor(params domain.StreamParams, includeZero bool) []ControlNet {
	support, ok := controlNetSupport[params.ModelID]
	if !ok {
		return nil
	}

	scales := []struct {
		kind  controlNetKind
		scale float64
	}{
		{depth, params.DepthScale},
		{canny, params.CannyScale},
		{tile, params.TileScale},
	}

	var out []ControlNet
	for _, s := range scales {
		model, ok := support[s.kind]
		if !ok || (!includeZero && s.scale <= 0) {
			continue
		}
		out = append(out, ControlNet{
			ModelID:            model.modelID,
			ConditioningScale:  s.scale,
			Preprocessor:       model.preprocessor,
			PreprocessorParams: map[string]any{},
			Enabled:            true,
		})
	}
	return out
}
